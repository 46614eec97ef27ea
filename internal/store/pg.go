package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/veildex/swap-engine/pkg/model"
)

// PGStore is the pgx-backed Store implementation. See schema.sql for the
// expected tables.
type PGStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// PGPoolConfig tunes the pgx connection pool.
type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// NewPG connects to Postgres and returns the durable store.
func NewPG(ctx context.Context, pgURL string, poolCfg PGPoolConfig, logger *zap.Logger) (*PGStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := pgxpool.ParseConfig(pgURL)
	if err != nil {
		return nil, fmt.Errorf("invalid pg config: %w", err)
	}
	if poolCfg.MaxConns > 0 {
		cfg.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		cfg.MinConns = poolCfg.MinConns
	}
	if poolCfg.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = poolCfg.MaxConnLifetime
	}
	if poolCfg.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = poolCfg.MaxConnIdleTime
	}
	if poolCfg.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = poolCfg.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &PGStore{pool: pool, logger: logger}, nil
}

func (s *PGStore) EnsureUser(ctx context.Context, address string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO swap.user_account (address, created_at)
		VALUES ($1, NOW())
		ON CONFLICT (address) DO NOTHING;
	`, address)
	if err != nil {
		s.logger.Error("store.pg.ensure_user_failed", zap.Error(err))
		return fmt.Errorf("%w: ensure user: %v", model.ErrPersistence, err)
	}
	return nil
}

func (s *PGStore) CreateIntent(ctx context.Context, intent *model.SwapIntent, stages []model.SwapStage) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", model.ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO swap.intent (
			id, user_address, input_token, output_token, input_amount,
			fee_bps, privacy_mode, slippage_bps, status, version, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, intent.ID, intent.UserAddress, intent.InputToken, intent.OutputToken, intent.InputAmount,
		intent.FeeBps, intent.PrivacyMode, intent.SlippageBps, string(intent.Status), intent.Version, intent.CreatedAt)
	if err != nil {
		s.logger.Error("store.pg.insert_intent_failed", zap.Error(err))
		return fmt.Errorf("%w: insert intent: %v", model.ErrPersistence, err)
	}

	for i, stage := range stages {
		_, err = tx.Exec(ctx, `
			INSERT INTO swap.stage (swap_id, position, name, status)
			VALUES ($1, $2, $3, $4)
		`, intent.ID, i, string(stage.Name), string(stage.Status))
		if err != nil {
			s.logger.Error("store.pg.insert_stage_failed",
				zap.String("stage", string(stage.Name)),
				zap.Error(err))
			return fmt.Errorf("%w: insert stage: %v", model.ErrPersistence, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", model.ErrPersistence, err)
	}
	return nil
}

func (s *PGStore) GetIntent(ctx context.Context, id string) (*model.SwapIntent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_address, input_token, output_token, input_amount,
		       fee_bps, privacy_mode, slippage_bps, status, output_amount,
		       tx_hash, proof, computation_hash, error, version, created_at, settled_at
		FROM swap.intent
		WHERE id = $1;
	`, id)

	intent, err := scanIntent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("%w: get intent: %v", model.ErrPersistence, err)
	}
	return intent, nil
}

func (s *PGStore) GetStages(ctx context.Context, swapID string) ([]model.SwapStage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, swap_id, name, status, completed_at, COALESCE(error, '')
		FROM swap.stage
		WHERE swap_id = $1
		ORDER BY position;
	`, swapID)
	if err != nil {
		return nil, fmt.Errorf("%w: get stages: %v", model.ErrPersistence, err)
	}
	defer rows.Close()

	var stages []model.SwapStage
	for rows.Next() {
		var st model.SwapStage
		var name, status string
		if err := rows.Scan(&st.ID, &st.SwapID, &name, &status, &st.CompletedAt, &st.Error); err != nil {
			return nil, fmt.Errorf("%w: scan stage: %v", model.ErrPersistence, err)
		}
		st.Name = model.StageName(name)
		st.Status = model.StageStatus(status)
		stages = append(stages, st)
	}
	return stages, rows.Err()
}

func (s *PGStore) UpdateIntent(ctx context.Context, intent *model.SwapIntent) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE swap.intent
		SET status = $2,
		    output_amount = $3,
		    tx_hash = $4,
		    proof = $5,
		    computation_hash = $6,
		    error = $7,
		    settled_at = $8,
		    version = version + 1
		WHERE id = $1 AND version = $9;
	`, intent.ID, string(intent.Status), nullDecimal(intent.OutputAmount),
		intent.TxHash, intent.Proof, intent.ComputationHash, intent.Error,
		intent.SettledAt, intent.Version)
	if err != nil {
		s.logger.Error("store.pg.update_intent_failed",
			zap.String("swap_id", intent.ID),
			zap.Error(err))
		return fmt.Errorf("%w: update intent: %v", model.ErrPersistence, err)
	}

	if tag.RowsAffected() == 0 {
		// Distinguish a lost CAS race from a missing row.
		existing, err := s.GetIntent(ctx, intent.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return model.ErrNotFound
		}
		return model.ErrVersionConflict
	}

	intent.Version++
	return nil
}

func (s *PGStore) UpdateStage(ctx context.Context, swapID string, name model.StageName, status model.StageStatus, stageErr string, completedAt *time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE swap.stage
		SET status = $3,
		    error = $4,
		    completed_at = $5
		WHERE swap_id = $1 AND name = $2;
	`, swapID, string(name), string(status), stageErr, completedAt)
	if err != nil {
		s.logger.Error("store.pg.update_stage_failed",
			zap.String("swap_id", swapID),
			zap.String("stage", string(name)),
			zap.Error(err))
		return false, fmt.Errorf("%w: update stage: %v", model.ErrPersistence, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGStore) CompleteOpenStages(ctx context.Context, swapID string, completedAt time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE swap.stage
		SET status = 'COMPLETED',
		    completed_at = $2
		WHERE swap_id = $1
		  AND status NOT IN ('COMPLETED', 'FAILED');
	`, swapID, completedAt)
	if err != nil {
		return 0, fmt.Errorf("%w: complete open stages: %v", model.ErrPersistence, err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PGStore) ListPendingIntents(ctx context.Context) ([]model.SwapIntent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_address, input_token, output_token, input_amount,
		       fee_bps, privacy_mode, slippage_bps, status, output_amount,
		       tx_hash, proof, computation_hash, error, version, created_at, settled_at
		FROM swap.intent
		WHERE status = 'SUBMITTED'
		ORDER BY created_at;
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: list pending intents: %v", model.ErrPersistence, err)
	}
	defer rows.Close()

	var intents []model.SwapIntent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan intent: %v", model.ErrPersistence, err)
		}
		intents = append(intents, *intent)
	}
	return intents, rows.Err()
}

func (s *PGStore) CreateSession(ctx context.Context, sess model.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO swap.session (swap_id, user_address, auth_token, valid_until, created_at)
		VALUES ($1, $2, $3, $4, $5);
	`, sess.SwapID, sess.UserAddress, sess.AuthToken, sess.ValidUntil, sess.CreatedAt)
	if err != nil {
		s.logger.Error("store.pg.insert_session_failed", zap.Error(err))
		return fmt.Errorf("%w: insert session: %v", model.ErrPersistence, err)
	}
	return nil
}

func (s *PGStore) DeleteExpiredSessions(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM swap.session
		WHERE valid_until < NOW();
	`)
	if err != nil {
		return 0, fmt.Errorf("%w: delete expired sessions: %v", model.ErrPersistence, err)
	}
	return int(tag.RowsAffected()), nil
}

// RecordQuote inserts an immutable quote snapshot for audit and the expiry sweep.
func (s *PGStore) RecordQuote(ctx context.Context, req model.QuoteRequest, resp *model.QuoteResponse) error {
	expiresAt := resp.Timestamp.Add(time.Duration(resp.ValidFor) * time.Millisecond)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO swap.quote_snapshot (
			input_token, output_token, input_amount, output_amount,
			fee_bps, privacy_mode, slippage_bps, created_at, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`, req.InputToken, req.OutputToken, req.InputAmount, resp.OutputAmount,
		resp.Fee.TotalBps, req.PrivacyMode, req.SlippageBps, resp.Timestamp, expiresAt)
	if err != nil {
		s.logger.Error("store.pg.insert_quote_failed", zap.Error(err))
		return fmt.Errorf("%w: insert quote: %v", model.ErrPersistence, err)
	}
	return nil
}

func (s *PGStore) DeleteExpiredQuotes(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM swap.quote_snapshot
		WHERE expires_at < NOW();
	`)
	if err != nil {
		return 0, fmt.Errorf("%w: delete expired quotes: %v", model.ErrPersistence, err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PGStore) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntent(row rowScanner) (*model.SwapIntent, error) {
	var intent model.SwapIntent
	var status string
	var out decimal.NullDecimal
	if err := row.Scan(
		&intent.ID, &intent.UserAddress, &intent.InputToken, &intent.OutputToken, &intent.InputAmount,
		&intent.FeeBps, &intent.PrivacyMode, &intent.SlippageBps, &status, &out,
		&intent.TxHash, &intent.Proof, &intent.ComputationHash, &intent.Error,
		&intent.Version, &intent.CreatedAt, &intent.SettledAt,
	); err != nil {
		return nil, err
	}
	intent.Status = model.SwapStatus(status)
	if out.Valid {
		intent.OutputAmount = out.Decimal
	}
	return &intent, nil
}

func nullDecimal(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: !d.IsZero()}
}
