package sweeper

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veildex/swap-engine/internal/projection"
	"github.com/veildex/swap-engine/internal/swap"
	"github.com/veildex/swap-engine/pkg/model"
)

// --- In-memory store ---

type memStore struct {
	mu      sync.Mutex
	intents map[string]*model.SwapIntent
	stages  map[string][]model.SwapStage
}

func newMemStore() *memStore {
	return &memStore{
		intents: make(map[string]*model.SwapIntent),
		stages:  make(map[string][]model.SwapStage),
	}
}

func (m *memStore) seed(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intents[id] = &model.SwapIntent{
		ID:          id,
		UserAddress: "wallet-1",
		InputToken:  "SOL",
		OutputToken: "USDC",
		InputAmount: decimal.NewFromInt(1_000_000),
		FeeBps:      25,
		Status:      model.StatusSubmitted,
		CreatedAt:   time.Now().UTC(),
	}
	m.stages[id] = model.NewStages(id)
}

func (m *memStore) setStage(id string, name model.StageName, status model.StageStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stages := m.stages[id]
	for i := range stages {
		if stages[i].Name == name {
			stages[i].Status = status
		}
	}
}

func (m *memStore) EnsureUser(_ context.Context, _ string) error { return nil }

func (m *memStore) CreateIntent(_ context.Context, intent *model.SwapIntent, stages []model.SwapStage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *intent
	m.intents[intent.ID] = &cp
	m.stages[intent.ID] = append([]model.SwapStage(nil), stages...)
	return nil
}

func (m *memStore) GetIntent(_ context.Context, id string) (*model.SwapIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.intents[id]
	if !ok {
		return nil, nil
	}
	cp := *intent
	return &cp, nil
}

func (m *memStore) GetStages(_ context.Context, swapID string) ([]model.SwapStage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.SwapStage(nil), m.stages[swapID]...), nil
}

func (m *memStore) UpdateIntent(_ context.Context, intent *model.SwapIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.intents[intent.ID]
	if !ok {
		return fmt.Errorf("%w: swap %s", model.ErrNotFound, intent.ID)
	}
	if stored.Version != intent.Version {
		return fmt.Errorf("%w: swap %s", model.ErrVersionConflict, intent.ID)
	}
	cp := *intent
	cp.Version++
	m.intents[intent.ID] = &cp
	intent.Version = cp.Version
	return nil
}

func (m *memStore) UpdateStage(_ context.Context, swapID string, name model.StageName, status model.StageStatus, stageErr string, completedAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stages := m.stages[swapID]
	for i := range stages {
		if stages[i].Name == name {
			stages[i].Status = status
			stages[i].Error = stageErr
			stages[i].CompletedAt = completedAt
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CompleteOpenStages(_ context.Context, swapID string, completedAt time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	stages := m.stages[swapID]
	for i := range stages {
		if stages[i].Status != model.StageCompleted && stages[i].Status != model.StageFailed {
			stages[i].Status = model.StageCompleted
			at := completedAt
			stages[i].CompletedAt = &at
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListPendingIntents(_ context.Context) ([]model.SwapIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SwapIntent
	for _, intent := range m.intents {
		if intent.Status == model.StatusSubmitted {
			out = append(out, *intent)
		}
	}
	return out, nil
}

func (m *memStore) CreateSession(_ context.Context, _ model.Session) error { return nil }
func (m *memStore) DeleteExpiredSessions(_ context.Context) (int, error)   { return 2, nil }
func (m *memStore) RecordQuote(_ context.Context, _ model.QuoteRequest, _ *model.QuoteResponse) error {
	return nil
}
func (m *memStore) DeleteExpiredQuotes(_ context.Context) (int, error) { return 1, nil }
func (m *memStore) HealthCheck(_ context.Context) error                { return nil }
func (m *memStore) Close() error                                       { return nil }

// --- Scripted backend ---

type scriptedBackend struct {
	mu       sync.Mutex
	executed map[string][]model.StageName // swap ID -> stages run
	failOn   map[string]model.StageName   // swap ID -> stage to fail at
}

func newScriptedBackend() *scriptedBackend {
	return &scriptedBackend{
		executed: make(map[string][]model.StageName),
		failOn:   make(map[string]model.StageName),
	}
}

func (b *scriptedBackend) ExecuteStage(_ context.Context, intent model.SwapIntent, stage model.StageName) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.executed[intent.ID] = append(b.executed[intent.ID], stage)
	if fail, ok := b.failOn[intent.ID]; ok && fail == stage {
		return fmt.Errorf("simulated failure at %s", stage)
	}
	return nil
}

func (b *scriptedBackend) Settle(_ context.Context, intent model.SwapIntent) (*model.SettlementResult, error) {
	return &model.SettlementResult{
		OutputAmount: decimal.NewFromInt(997_500),
		TxHash:       "0x" + intent.ID,
	}, nil
}

func (b *scriptedBackend) ran(id string) []model.StageName {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.StageName(nil), b.executed[id]...)
}

// --- Helpers ---

func newTestSweeper(t *testing.T) (*Sweeper, *memStore, *scriptedBackend, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	proj := projection.NewWithClient(rdb, "", nil)

	st := newMemStore()
	engine := swap.NewEngine(st, proj, nil, nil, zap.NewNop(), swap.Config{
		MinSwapAmount: decimal.NewFromInt(1_000),
		MaxSwapAmount: decimal.NewFromInt(1_000_000_000_000),
	})
	backend := newScriptedBackend()
	sw := New(st, engine, backend, zap.NewNop(), time.Second, time.Minute, 2, 5*time.Second)
	return sw, st, backend, mr
}

// --- Tests ---

func TestProcessPendingSwapsSettles(t *testing.T) {
	ctx := context.Background()
	sw, st, backend, mr := newTestSweeper(t)
	defer mr.Close()

	st.seed("swap-a")

	settled, failed, err := sw.ProcessPendingSwaps(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)
	assert.Equal(t, 0, failed)

	intent, _ := st.GetIntent(ctx, "swap-a")
	assert.Equal(t, model.StatusEncryptedSettled, intent.Status)
	assert.Equal(t, "0xswap-a", intent.TxHash)

	// All three driveable stages ran in pipeline order.
	assert.Equal(t, []model.StageName{
		model.StageTokenWrapping,
		model.StageEncryptedComputation,
		model.StageSettlement,
	}, backend.ran("swap-a"))

	// Completion forces the remaining stages.
	stages, _ := st.GetStages(ctx, "swap-a")
	for _, stage := range stages {
		assert.Equal(t, model.StageCompleted, stage.Status, "stage %s", stage.Name)
	}
}

func TestProcessPendingSwapsResumesFromLastCompleted(t *testing.T) {
	ctx := context.Background()
	sw, st, backend, mr := newTestSweeper(t)
	defer mr.Close()

	st.seed("swap-a")
	// A previous run already finished the first driveable stage.
	st.setStage("swap-a", model.StageTokenWrapping, model.StageCompleted)

	settled, failed, err := sw.ProcessPendingSwaps(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)
	assert.Equal(t, 0, failed)

	assert.Equal(t, []model.StageName{
		model.StageEncryptedComputation,
		model.StageSettlement,
	}, backend.ran("swap-a"), "completed stage must not be re-executed")
}

func TestProcessPendingSwapsFailureIsolation(t *testing.T) {
	ctx := context.Background()
	sw, st, backend, mr := newTestSweeper(t)
	defer mr.Close()

	st.seed("swap-a")
	st.seed("swap-b")
	backend.failOn["swap-a"] = model.StageEncryptedComputation

	settled, failed, err := sw.ProcessPendingSwaps(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)
	assert.Equal(t, 1, failed)

	// swap-a is terminally failed; its failing stage is marked.
	a, _ := st.GetIntent(ctx, "swap-a")
	assert.Equal(t, model.StatusFailed, a.Status)
	assert.Contains(t, a.Error, "simulated failure")

	stagesA, _ := st.GetStages(ctx, "swap-a")
	for _, stage := range stagesA {
		if stage.Name == model.StageEncryptedComputation {
			assert.Equal(t, model.StageFailed, stage.Status)
		}
	}

	// swap-b settled despite the sibling failure.
	b, _ := st.GetIntent(ctx, "swap-b")
	assert.Equal(t, model.StatusEncryptedSettled, b.Status)
}

func TestProcessPendingSwapsEmptyBatch(t *testing.T) {
	ctx := context.Background()
	sw, _, _, mr := newTestSweeper(t)
	defer mr.Close()

	settled, failed, err := sw.ProcessPendingSwaps(ctx)
	require.NoError(t, err)
	assert.Zero(t, settled)
	assert.Zero(t, failed)
}

func TestSettledIntentsAreNotReswept(t *testing.T) {
	ctx := context.Background()
	sw, st, backend, mr := newTestSweeper(t)
	defer mr.Close()

	st.seed("swap-a")

	_, _, err := sw.ProcessPendingSwaps(ctx)
	require.NoError(t, err)

	ranOnce := len(backend.ran("swap-a"))

	settled, failed, err := sw.ProcessPendingSwaps(ctx)
	require.NoError(t, err)
	assert.Zero(t, settled)
	assert.Zero(t, failed)
	assert.Equal(t, ranOnce, len(backend.ran("swap-a")), "terminal intents must not be re-driven")
}

func TestCleanupDelegation(t *testing.T) {
	ctx := context.Background()
	sw, _, _, mr := newTestSweeper(t)
	defer mr.Close()

	sessions, err := sw.CleanupExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sessions)

	quotes, err := sw.CleanupExpiredQuotes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, quotes)
}
