package api

import (
	"fmt"
	"strings"

	"github.com/veildex/swap-engine/pkg/model"
)

func (r QuoteCreateRequest) Validate() error {
	if strings.TrimSpace(r.InputToken) == "" {
		return fmt.Errorf("input_token is required")
	}
	if strings.TrimSpace(r.OutputToken) == "" {
		return fmt.Errorf("output_token is required")
	}
	if !r.InputAmount.IsPositive() {
		return fmt.Errorf("input_amount must be greater than 0")
	}
	if r.SlippageBps < 0 || r.SlippageBps > 10000 {
		return fmt.Errorf("slippage_bps must be in [0, 10000]")
	}
	return nil
}

func (r SwapSubmitRequest) Validate() error {
	if strings.TrimSpace(r.UserAddress) == "" {
		return fmt.Errorf("user_address is required")
	}
	if strings.TrimSpace(r.InputToken) == "" {
		return fmt.Errorf("input_token is required")
	}
	if strings.TrimSpace(r.OutputToken) == "" {
		return fmt.Errorf("output_token is required")
	}
	if !r.InputAmount.IsPositive() {
		return fmt.Errorf("input_amount must be greater than 0")
	}
	if r.SlippageBps < 0 || r.SlippageBps > 10000 {
		return fmt.Errorf("slippage_bps must be in [0, 10000]")
	}
	return nil
}

func (r StageUpdateRequest) Validate() error {
	if !model.StageName(r.Stage).Valid() {
		return fmt.Errorf("unknown stage %q", r.Stage)
	}
	if !model.StageStatus(r.Status).Valid() {
		return fmt.Errorf("unknown stage status %q", r.Status)
	}
	return nil
}

func (r CompleteRequest) Validate() error {
	if strings.TrimSpace(r.TxHash) == "" {
		return fmt.Errorf("tx_hash is required")
	}
	if r.OutputAmount.IsNegative() {
		return fmt.Errorf("output_amount must not be negative")
	}
	return nil
}

func (r FailRequest) Validate() error {
	if strings.TrimSpace(r.Error) == "" {
		return fmt.Errorf("error is required")
	}
	return nil
}
