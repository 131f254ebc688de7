package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// flakyStore fails GetUserPool on demand to exercise the error paths.
type flakyStore struct {
	*memory.Memory
	getUserPoolErr error
}

func (s *flakyStore) GetUserPool(ctx context.Context, userID, poolID string) (*leave.UserPool, error) {
	if s.getUserPoolErr != nil {
		return nil, s.getUserPoolErr
	}
	return s.Memory.GetUserPool(ctx, userID, poolID)
}

func newLedgerStore(t *testing.T) *flakyStore {
	t.Helper()
	store := &flakyStore{Memory: memory.New()}
	ctx := context.Background()

	require.NoError(t, store.SavePool(ctx, leave.Pool{
		ID:           "pool-rtt",
		Name:         "default",
		DateStart:    time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		DateEnd:      time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC),
		Status:       leave.PoolActive,
		VacationType: leave.TypeRTT,
		Country:      leave.CountryFR,
	}))
	return store
}

// =============================================================================
// USER POOL CREATION
// =============================================================================

func TestEnsureUserPool_CreatesZeroBalanceWhenAbsent(t *testing.T) {
	// GIVEN: A pool with no balance row for alice
	// WHEN: Ensuring her user pool
	// THEN: A zero balance row is created and returned

	store := newLedgerStore(t)
	ctx := context.Background()

	up, err := ledger.EnsureUserPool(ctx, store, "alice", "pool-rtt")
	require.NoError(t, err)
	assert.True(t, up.Amount.IsZero())

	got, err := store.GetUserPool(ctx, "alice", "pool-rtt")
	require.NoError(t, err)
	assert.Equal(t, up.ID, got.ID)
}

func TestEnsureUserPool_PropagatesStoreFailure(t *testing.T) {
	// GIVEN: A store whose balance lookup fails transiently
	// WHEN: Ensuring the user pool
	// THEN: The failure surfaces and no row is created

	store := newLedgerStore(t)
	ctx := context.Background()
	store.getUserPoolErr = errors.New("database is locked")

	_, err := ledger.EnsureUserPool(ctx, store, "alice", "pool-rtt")
	require.Error(t, err)
	assert.ErrorContains(t, err, "database is locked")

	store.getUserPoolErr = nil
	_, err = store.GetUserPool(ctx, "alice", "pool-rtt")
	assert.ErrorIs(t, err, leave.ErrNotFound)
}

// =============================================================================
// SNAPSHOT
// =============================================================================

func TestSnapshot_MissingRowIsZeroBalance(t *testing.T) {
	// GIVEN: An active pool alice never accrued into
	// WHEN: Snapshotting her balances
	// THEN: The pool appears with a zero amount

	store := newLedgerStore(t)
	ctx := context.Background()

	snap, err := ledger.Snapshot(ctx, store, "alice", leave.TypeRTT, leave.CountryFR, time.Now())
	require.NoError(t, err)
	require.Len(t, snap.Pools, 1)
	assert.True(t, snap.Pools[0].Amount.IsZero())
}

func TestSnapshot_PropagatesStoreFailure(t *testing.T) {
	// GIVEN: Alice holds a balance but the lookup fails transiently
	// WHEN: Snapshotting her balances
	// THEN: The failure surfaces instead of a zero-amount snapshot

	store := newLedgerStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveUserPool(ctx, leave.UserPool{
		ID: "up-1", UserID: "alice", PoolID: "pool-rtt",
		Amount: decimal.NewFromInt(5),
	}))
	store.getUserPoolErr = errors.New("database is locked")

	_, err := ledger.Snapshot(ctx, store, "alice", leave.TypeRTT, leave.CountryFR, time.Now())
	require.Error(t, err)
	assert.ErrorContains(t, err, "database is locked")
}
