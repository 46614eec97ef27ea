package quote

import "github.com/veildex/swap-engine/pkg/model"

// supportedTokens is the fixed allow-list of tradable tokens. Pairs outside
// this list are rejected before any provider call.
var supportedTokens = []model.TokenInfo{
	{Symbol: "SOL", Mint: "So11111111111111111111111111111111111111112", Decimals: 9},
	{Symbol: "USDC", Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6},
	{Symbol: "USDT", Mint: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", Decimals: 6},
	{Symbol: "JUP", Mint: "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN", Decimals: 6},
	{Symbol: "BONK", Mint: "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", Decimals: 5},
}

// SupportedTokens returns the allow-list.
func SupportedTokens() []model.TokenInfo {
	out := make([]model.TokenInfo, len(supportedTokens))
	copy(out, supportedTokens)
	return out
}

// TokenSupported matches a token by symbol or mint address.
func TokenSupported(token string) bool {
	for _, t := range supportedTokens {
		if t.Symbol == token || t.Mint == token {
			return true
		}
	}
	return false
}
