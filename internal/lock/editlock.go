// Package lock serialises order editing across terminals. Two cashiers opening
// the same order at once would race the add-items and header-update commands,
// so an edit session takes a Redis lease on the order first.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrOrderBusy is returned when another terminal holds the edit lease.
var ErrOrderBusy = errors.New("lock: order is being edited on another terminal")

const defaultTTL = 2 * time.Minute

// EditLock hands out per-order edit leases. A nil receiver or nil client
// degrades to no locking, for single-terminal setups without Redis.
type EditLock struct {
	R   *redis.Client
	TTL time.Duration
}

func editKey(orderID string) string {
	return "pos:order:" + orderID + ":edit"
}

// Acquire takes the edit lease for an order. It does not wait: a held lease
// means another terminal is mid-edit and the operator should be told, not
// queued.
func (l *EditLock) Acquire(ctx context.Context, orderID string) (*Lease, error) {
	if l == nil || l.R == nil {
		return &Lease{}, nil
	}
	if orderID == "" {
		return nil, errors.New("lock: order id is required")
	}
	ttl := l.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	token := uuid.NewString()
	ok, err := l.R.SetNX(ctx, editKey(orderID), token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOrderBusy
	}
	return &Lease{r: l.R, key: editKey(orderID), token: token, ttl: ttl}, nil
}

// Lease is one terminal's hold on an order. The zero value is a no-op lease.
type Lease struct {
	r     *redis.Client
	key   string
	token string
	ttl   time.Duration
}

// compare-and-delete / compare-and-expire so a lease that outlived its TTL
// cannot release or extend a successor's lock
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

const refreshScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("pexpire", KEYS[1], ARGV[2])
else
  return 0
end`

// Refresh extends the lease TTL while the operator keeps editing. Returns
// ErrOrderBusy if the lease has already expired and been taken over.
func (le *Lease) Refresh(ctx context.Context) error {
	if le == nil || le.r == nil {
		return nil
	}
	n, err := le.r.Eval(ctx, refreshScript, []string{le.key}, le.token, le.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrOrderBusy
	}
	return nil
}

// Release gives the order back. Safe to call on an expired or taken-over
// lease; it never deletes a lock it no longer owns.
func (le *Lease) Release(ctx context.Context) error {
	if le == nil || le.r == nil {
		return nil
	}
	return le.r.Eval(ctx, releaseScript, []string{le.key}, le.token).Err()
}
