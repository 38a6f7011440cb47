package redemption_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/decorluxe/backend-blinds/internal/redemption"
)

// recordingStore mimics the promotions tables: every commit bumps the durable
// per-source counter, like vendor_coupons.usage_count.
type recordingStore struct {
	mu      sync.Mutex
	commits []uuid.UUID
	counts  map[uuid.UUID]int32
}

func (s *recordingStore) CommitUsage(_ context.Context, sourceID uuid.UUID, _ *uuid.UUID, _ uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits = append(s.commits, sourceID)
	if s.counts == nil {
		s.counts = map[uuid.UUID]int32{}
	}
	s.counts[sourceID]++
	return nil
}

func (s *recordingStore) count(sourceID uuid.UUID) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[sourceID]
}

func newTestLedger(t *testing.T) (redemption.Ledger, *miniredis.Miniredis, *recordingStore) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := &recordingStore{}
	ledger := redemption.Ledger{
		R:          client,
		Store:      store,
		KeyPrefix:  "test:redemption",
		TTL:        time.Minute,
		MaxRetries: 3,
		RetryBase:  time.Millisecond,
	}
	return ledger, mr, store
}

func hold(sourceID uuid.UUID, limit, used int32) redemption.Hold {
	return redemption.Hold{
		SourceID:         sourceID,
		OrderID:          uuid.New(),
		UsageLimit:       limit,
		UsageCount:       used,
		PerCustomerLimit: -1,
	}
}

func customerHold(sourceID uuid.UUID, customerID uuid.UUID, limit, used, perLimit, perUsed int32) redemption.Hold {
	h := hold(sourceID, limit, used)
	h.CustomerID = &customerID
	h.PerCustomerLimit = perLimit
	h.PerCustomerUsed = perUsed
	return h
}

func TestReserveCommitRelease(t *testing.T) {
	ledger, _, store := newTestLedger(t)
	ctx := context.Background()
	couponID := uuid.New()

	rsv, err := ledger.Reserve(ctx, hold(couponID, 10, 0))
	require.NoError(t, err)
	require.NotEmpty(t, rsv.Token)

	held, err := ledger.Held(ctx, couponID)
	require.NoError(t, err)
	require.EqualValues(t, 1, held)

	require.NoError(t, ledger.Commit(ctx, rsv))
	require.Len(t, store.commits, 1)

	held, err = ledger.Held(ctx, couponID)
	require.NoError(t, err)
	require.Zero(t, held)

	committed, err := ledger.CommittedCount(ctx, couponID)
	require.NoError(t, err)
	require.EqualValues(t, 1, committed)

	// A second commit of the same reservation is a conflict, not a double spend.
	err = ledger.Commit(ctx, rsv)
	require.ErrorIs(t, err, redemption.ErrConflict)
	require.Len(t, store.commits, 1)
}

func TestReserveEnforcesLimit(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()
	couponID := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := ledger.Reserve(ctx, hold(couponID, 3, 0))
		require.NoError(t, err)
	}

	_, err := ledger.Reserve(ctx, hold(couponID, 3, 0))
	require.ErrorIs(t, err, redemption.ErrLimitExceeded)
}

// A coupon with budget K must grant exactly K redemptions even though every
// commit moves both the durable counter and the Redis mirror: the mirror is
// an absolute count synced from the database, never added on top of it.
func TestBudgetIsNotDoubleCounted(t *testing.T) {
	ledger, _, store := newTestLedger(t)
	ctx := context.Background()
	couponID := uuid.New()
	const limit = int32(4)

	for i := int32(0); i < limit; i++ {
		// Each round reads the durable count fresh, like a settlement does.
		rsv, err := ledger.Reserve(ctx, hold(couponID, limit, store.count(couponID)))
		require.NoError(t, err, "redemption %d of %d must fit the budget", i+1, limit)
		require.NoError(t, ledger.Commit(ctx, rsv))
	}
	require.EqualValues(t, limit, store.count(couponID))

	_, err := ledger.Reserve(ctx, hold(couponID, limit, store.count(couponID)))
	require.ErrorIs(t, err, redemption.ErrLimitExceeded)
}

func TestReserveCountsCommitsAgainstLimit(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()
	couponID := uuid.New()

	rsv, err := ledger.Reserve(ctx, hold(couponID, 2, 0))
	require.NoError(t, err)
	require.NoError(t, ledger.Commit(ctx, rsv))

	// One committed plus one held fills the budget of two, even while the
	// durable counter still reads zero.
	_, err = ledger.Reserve(ctx, hold(couponID, 2, 0))
	require.NoError(t, err)
	_, err = ledger.Reserve(ctx, hold(couponID, 2, 0))
	require.ErrorIs(t, err, redemption.ErrLimitExceeded)
}

func TestReserveSeedsMirrorFromDurableCount(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()
	couponID := uuid.New()

	// Redis is empty but the database already accounts for 99 of 100 uses.
	_, err := ledger.Reserve(ctx, hold(couponID, 100, 99))
	require.NoError(t, err)

	_, err = ledger.Reserve(ctx, hold(couponID, 100, 99))
	require.ErrorIs(t, err, redemption.ErrLimitExceeded)
}

func TestReserveEnforcesPerCustomerLimit(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()
	couponID := uuid.New()
	customerID := uuid.New()

	rsv, err := ledger.Reserve(ctx, customerHold(couponID, customerID, -1, 0, 1, 0))
	require.NoError(t, err)
	require.NoError(t, ledger.Commit(ctx, rsv))

	_, err = ledger.Reserve(ctx, customerHold(couponID, customerID, -1, 0, 1, 0))
	require.ErrorIs(t, err, redemption.ErrAlreadyRedeemed)

	// Another customer still fits.
	_, err = ledger.Reserve(ctx, customerHold(couponID, uuid.New(), -1, 0, 1, 0))
	require.NoError(t, err)
}

// Two concurrent reservations by the same customer must not both pass a
// per-customer cap of one: the guard runs inside the reserve script, not as
// a read at quote time.
func TestConcurrentSameCustomerReservationsRespectCap(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()
	couponID := uuid.New()
	customerID := uuid.New()

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Every attempt reads per-customer usage 0, like concurrent
			// settlements that all quoted before any committed.
			_, err := ledger.Reserve(ctx, customerHold(couponID, customerID, -1, 0, 1, 0))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var granted, rejected int
	for err := range results {
		switch {
		case err == nil:
			granted++
		case errors.Is(err, redemption.ErrAlreadyRedeemed):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, granted)
	require.Equal(t, attempts-1, rejected)
}

func TestReleaseFreesBudget(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()
	couponID := uuid.New()

	rsv, err := ledger.Reserve(ctx, hold(couponID, 1, 0))
	require.NoError(t, err)

	_, err = ledger.Reserve(ctx, hold(couponID, 1, 0))
	require.ErrorIs(t, err, redemption.ErrLimitExceeded)

	require.NoError(t, ledger.Release(ctx, rsv))

	_, err = ledger.Reserve(ctx, hold(couponID, 1, 0))
	require.NoError(t, err)
}

func TestReleaseFreesCustomerAllowance(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()
	couponID := uuid.New()
	customerID := uuid.New()

	rsv, err := ledger.Reserve(ctx, customerHold(couponID, customerID, -1, 0, 1, 0))
	require.NoError(t, err)

	_, err = ledger.Reserve(ctx, customerHold(couponID, customerID, -1, 0, 1, 0))
	require.ErrorIs(t, err, redemption.ErrAlreadyRedeemed)

	require.NoError(t, ledger.Release(ctx, rsv))

	_, err = ledger.Reserve(ctx, customerHold(couponID, customerID, -1, 0, 1, 0))
	require.NoError(t, err)
}

func TestExpiredReservationFreesBudget(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ledger.TTL = 50 * time.Millisecond
	ctx := context.Background()
	couponID := uuid.New()

	stale, err := ledger.Reserve(ctx, hold(couponID, 1, 0))
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	// The stale hold ages out, so the next reservation fits and the stale
	// token can no longer commit.
	_, err = ledger.Reserve(ctx, hold(couponID, 1, 0))
	require.NoError(t, err)
	require.ErrorIs(t, ledger.Commit(ctx, stale), redemption.ErrConflict)
}

func TestConcurrentReservationsNeverExceedLimit(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()
	couponID := uuid.New()

	const attempts = 20
	const limit = 5

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Reserve(ctx, hold(couponID, limit, 0))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var granted, rejected int
	for err := range results {
		switch {
		case err == nil:
			granted++
		case errors.Is(err, redemption.ErrLimitExceeded):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, limit, granted)
	require.Equal(t, attempts-limit, rejected)

	held, err := ledger.Held(ctx, couponID)
	require.NoError(t, err)
	require.EqualValues(t, limit, held)
}

func TestSweepPrunesExpiredHolds(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ledger.TTL = 50 * time.Millisecond
	ctx := context.Background()
	couponID := uuid.New()

	_, err := ledger.Reserve(ctx, hold(couponID, -1, 0))
	require.NoError(t, err)
	_, err = ledger.Reserve(ctx, hold(couponID, -1, 0))
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	pruned, err := ledger.Sweep(ctx, []uuid.UUID{couponID})
	require.NoError(t, err)
	require.EqualValues(t, 2, pruned)
}
