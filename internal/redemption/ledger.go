package redemption

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/decorluxe/backend-blinds/internal/obs"
	"github.com/decorluxe/backend-blinds/internal/resilience"
)

var (
	// ErrLimitExceeded means the coupon's total budget is spent.
	ErrLimitExceeded = errors.New("redemption: usage limit exceeded")
	// ErrAlreadyRedeemed means this customer has exhausted their per-customer
	// allowance for the coupon.
	ErrAlreadyRedeemed = errors.New("redemption: already redeemed by customer")
	// ErrConflict is returned after bounded retries against concurrent
	// reservations. Callers should surface it as retryable.
	ErrConflict = errors.New("redemption: concurrency conflict")
)

// Hold describes one requested coupon use. Limits are absolute; UsageCount
// and PerCustomerUsed carry the database counters read at quote time and seed
// the Redis mirrors, so a flushed Redis converges back to the durable counts.
// A negative limit means unlimited.
type Hold struct {
	SourceID         uuid.UUID
	OrderID          uuid.UUID
	CustomerID       *uuid.UUID
	UsageLimit       int32
	UsageCount       int32
	PerCustomerLimit int32
	PerCustomerUsed  int32
}

// Reservation is a short-lived hold on one coupon use. It is committed when
// the order settles or released when checkout is abandoned; unexpired holds
// count against the coupon's limits.
type Reservation struct {
	Token      string
	SourceID   uuid.UUID
	OrderID    uuid.UUID
	CustomerID *uuid.UUID
	ExpiresAt  time.Time
}

// CommitStore durably increments coupon usage counters once a reservation
// commits. Backed by the promotions tables.
type CommitStore interface {
	CommitUsage(ctx context.Context, sourceID uuid.UUID, customerID *uuid.UUID, orderID uuid.UUID) error
}

// Ledger arbitrates concurrent coupon redemptions through Redis. Reservations
// live in sorted sets scored by expiry so stale holds age out without a
// separate janitor in the hot path. Committed counts are mirrored in Redis,
// synced upward from the database counters on every reservation; the mirror
// is what makes the check-and-hold atomic, the database row is what survives.
type Ledger struct {
	R           *redis.Client
	Store       CommitStore
	KeyPrefix   string
	TTL         time.Duration
	MaxRetries  int
	RetryBase   time.Duration
	RetryJitter float64
}

// reserveScript atomically prunes expired holds, syncs the committed mirrors
// up to the database counts, checks committed plus live holds against the
// absolute limits and adds the new hold. The per-customer guard runs inside
// the same script so neither check can pass on a stale read.
// Returns 1 on success, 0 when the coupon budget is spent, -1 when the
// customer's allowance is spent.
const reserveScript = `
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
local limit = tonumber(ARGV[2])
if limit >= 0 then
  local committed = tonumber(redis.call("GET", KEYS[2]) or "-1")
  local seed = tonumber(ARGV[6])
  if committed < seed then
    committed = seed
    redis.call("SET", KEYS[2], seed)
  end
  if committed + redis.call("ZCARD", KEYS[1]) >= limit then
    return 0
  end
end
local perLimit = tonumber(ARGV[7])
if perLimit >= 0 then
  redis.call("ZREMRANGEBYSCORE", KEYS[3], "-inf", ARGV[1])
  local perCommitted = tonumber(redis.call("GET", KEYS[4]) or "-1")
  local perSeed = tonumber(ARGV[8])
  if perCommitted < perSeed then
    perCommitted = perSeed
    redis.call("SET", KEYS[4], perSeed)
  end
  if perCommitted + redis.call("ZCARD", KEYS[3]) >= perLimit then
    return -1
  end
  redis.call("ZADD", KEYS[3], ARGV[3], ARGV[4])
  redis.call("PEXPIRE", KEYS[3], ARGV[5])
end
redis.call("ZADD", KEYS[1], ARGV[3], ARGV[4])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
return 1
`

// commitScript removes the hold and bumps the committed mirrors only if the
// hold still existed, so an expired-then-swept reservation cannot commit twice.
const commitScript = `
local removed = redis.call("ZREM", KEYS[1], ARGV[1])
if removed == 1 then
  redis.call("INCR", KEYS[2])
  if redis.call("ZREM", KEYS[3], ARGV[1]) == 1 then
    redis.call("INCR", KEYS[4])
  end
  return 1
end
return 0
`

// Reserve places a hold on one use of the coupon for the given order. Both
// the coupon budget and the customer's allowance are checked and held in one
// atomic step; unlimited coupons still take a hold to fence double commits.
func (l Ledger) Reserve(ctx context.Context, h Hold) (Reservation, error) {
	if l.R == nil {
		return Reservation{}, errors.New("redemption: redis client not configured")
	}

	token := fmt.Sprintf("%s:%s", h.OrderID, uuid.NewString())
	ttl := l.ttl()
	attempts := l.maxRetries()
	perLimit := h.PerCustomerLimit
	if h.CustomerID == nil {
		perLimit = -1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		now := time.Now()
		expiresAt := now.Add(ttl)
		res, err := l.R.Eval(ctx, reserveScript,
			l.keysFor(h.SourceID, h.CustomerID),
			now.UnixMilli(),
			h.UsageLimit,
			expiresAt.UnixMilli(),
			token,
			ttl.Milliseconds(),
			h.UsageCount,
			perLimit,
			h.PerCustomerUsed,
		).Int64()
		if err == nil {
			switch res {
			case 0:
				incRedemption("limit_exceeded")
				return Reservation{}, ErrLimitExceeded
			case -1:
				incRedemption("already_redeemed")
				return Reservation{}, ErrAlreadyRedeemed
			}
			incRedemption("reserved")
			return Reservation{
				Token:      token,
				SourceID:   h.SourceID,
				OrderID:    h.OrderID,
				CustomerID: h.CustomerID,
				ExpiresAt:  expiresAt,
			}, nil
		}
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(resilience.Backoff(l.retryBase(), attempt, l.retryJitter()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return Reservation{}, ctx.Err()
		case <-timer.C:
		}
	}

	incRedemption("conflict")
	return Reservation{}, ErrConflict
}

// Commit converts the hold into a durable redemption. The Redis mirrors and
// the database counter all move; the database write is the source of truth
// and the mirrors keep the reserve fast path honest between reads.
func (l Ledger) Commit(ctx context.Context, rsv Reservation) error {
	res, err := l.R.Eval(ctx, commitScript,
		l.keysFor(rsv.SourceID, rsv.CustomerID),
		rsv.Token,
	).Int64()
	if err != nil {
		return fmt.Errorf("redemption commit: %w", err)
	}
	if res == 0 {
		incRedemption("conflict")
		return ErrConflict
	}
	if l.Store != nil {
		if err := l.Store.CommitUsage(ctx, rsv.SourceID, rsv.CustomerID, rsv.OrderID); err != nil {
			return fmt.Errorf("redemption commit usage: %w", err)
		}
	}
	incRedemption("committed")
	return nil
}

// Release drops the hold without consuming a use. Safe to call on an
// already-expired or already-released reservation.
func (l Ledger) Release(ctx context.Context, rsv Reservation) error {
	if err := l.R.ZRem(ctx, l.holdsKey(rsv.SourceID), rsv.Token).Err(); err != nil {
		return fmt.Errorf("redemption release: %w", err)
	}
	if rsv.CustomerID != nil {
		if err := l.R.ZRem(ctx, l.customerHoldsKey(rsv.SourceID, *rsv.CustomerID), rsv.Token).Err(); err != nil {
			return fmt.Errorf("redemption release: %w", err)
		}
	}
	incRedemption("released")
	return nil
}

// Held reports the number of live, unexpired holds on a coupon.
func (l Ledger) Held(ctx context.Context, sourceID uuid.UUID) (int64, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	return l.R.ZCount(ctx, l.holdsKey(sourceID), "("+now, "+inf").Result()
}

// Sweep prunes expired holds for the given coupons. The reserve script prunes
// lazily on each reservation; the worker calls Sweep so idle coupons converge
// too.
func (l Ledger) Sweep(ctx context.Context, sourceIDs []uuid.UUID) (int64, error) {
	var pruned int64
	max := strconv.FormatInt(time.Now().UnixMilli(), 10)
	for _, id := range sourceIDs {
		n, err := l.R.ZRemRangeByScore(ctx, l.holdsKey(id), "-inf", max).Result()
		if err != nil {
			return pruned, fmt.Errorf("redemption sweep %s: %w", id, err)
		}
		pruned += n
	}
	if pruned > 0 && obs.ReservationSweepTotal != nil {
		obs.ReservationSweepTotal.Add(float64(pruned))
	}
	return pruned, nil
}

func incRedemption(outcome string) {
	if obs.RedemptionTotal != nil {
		obs.RedemptionTotal.WithLabelValues(outcome).Inc()
	}
}

// CommittedCount returns the Redis committed mirror for a coupon. The worker
// compares it against the database counter to surface drift.
func (l Ledger) CommittedCount(ctx context.Context, sourceID uuid.UUID) (int64, error) {
	v, err := l.R.Get(ctx, l.committedKey(sourceID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

// keysFor builds the script key list. Without a customer the customer slots
// alias the global keys; the script never touches them then because the
// per-customer limit is forced negative.
func (l Ledger) keysFor(sourceID uuid.UUID, customerID *uuid.UUID) []string {
	if customerID == nil {
		return []string{
			l.holdsKey(sourceID), l.committedKey(sourceID),
			l.holdsKey(sourceID), l.committedKey(sourceID),
		}
	}
	return []string{
		l.holdsKey(sourceID), l.committedKey(sourceID),
		l.customerHoldsKey(sourceID, *customerID), l.customerCommittedKey(sourceID, *customerID),
	}
}

func (l Ledger) holdsKey(sourceID uuid.UUID) string {
	return fmt.Sprintf("%s:holds:%s", l.prefix(), sourceID)
}

func (l Ledger) committedKey(sourceID uuid.UUID) string {
	return fmt.Sprintf("%s:committed:%s", l.prefix(), sourceID)
}

func (l Ledger) customerHoldsKey(sourceID, customerID uuid.UUID) string {
	return fmt.Sprintf("%s:holds:%s:%s", l.prefix(), sourceID, customerID)
}

func (l Ledger) customerCommittedKey(sourceID, customerID uuid.UUID) string {
	return fmt.Sprintf("%s:committed:%s:%s", l.prefix(), sourceID, customerID)
}

func (l Ledger) prefix() string {
	if l.KeyPrefix == "" {
		return "redemption"
	}
	return l.KeyPrefix
}

func (l Ledger) ttl() time.Duration {
	if l.TTL <= 0 {
		return 15 * time.Minute
	}
	return l.TTL
}

func (l Ledger) maxRetries() int {
	if l.MaxRetries <= 0 {
		return 3
	}
	return l.MaxRetries
}

func (l Ledger) retryBase() time.Duration {
	if l.RetryBase <= 0 {
		return 25 * time.Millisecond
	}
	return l.RetryBase
}

func (l Ledger) retryJitter() float64 {
	if l.RetryJitter <= 0 {
		return 0.2
	}
	return l.RetryJitter
}
