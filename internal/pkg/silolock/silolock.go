package silolock

import (
	"context"
	"strings"
	"time"

	"arrozal-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockPrefix = "silo_lock:"
const retryEvery = 50 * time.Millisecond

// Locker hands out per-silo exclusive leases backed by Redis SET NX. The
// TTL bounds how long a crashed holder can keep a silo unavailable; Wait
// bounds how long an acquirer blocks before giving up with ResourceBusy.
type Locker struct {
	Rdb  *redis.Client
	Wait time.Duration
	TTL  time.Duration
}

// Lease is one held silo lock. Release is safe to call once; the token
// check keeps an expired lease from deleting a successor's lock.
type Lease struct {
	rdb    *redis.Client
	key    string
	token  string
	SiloID uuid.UUID
}

// Acquire blocks until the silo lock is obtained or Wait elapses, in which
// case it returns ResourceBusy.
func (l *Locker) Acquire(ctx context.Context, siloID uuid.UUID) (*Lease, error) {
	key := lockPrefix + siloID.String()
	token := uuid.New().String()
	deadline := time.Now().Add(l.Wait)

	for {
		ok, err := l.Rdb.SetNX(ctx, key, token, l.TTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return &Lease{rdb: l.Rdb, key: key, token: token, SiloID: siloID}, nil
		}
		if time.Now().After(deadline) {
			return nil, domain.NewLedgerError(domain.ErrResourceBusy, siloID, 0, 0)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryEvery):
		}
	}
}

// AcquireOrdered takes locks on two silos in the fixed global order of
// their ids, so that two concurrent transfers touching the same pair can
// never deadlock. If the second lock times out the first is released.
func (l *Locker) AcquireOrdered(ctx context.Context, a, b uuid.UUID) (*Lease, *Lease, error) {
	first, second := a, b
	if strings.Compare(a.String(), b.String()) > 0 {
		first, second = b, a
	}

	leaseFirst, err := l.Acquire(ctx, first)
	if err != nil {
		return nil, nil, err
	}
	leaseSecond, err := l.Acquire(ctx, second)
	if err != nil {
		leaseFirst.Release(ctx)
		return nil, nil, err
	}
	return leaseFirst, leaseSecond, nil
}

// Release drops the lease if it is still held by this token.
func (le *Lease) Release(ctx context.Context) {
	val, err := le.rdb.Get(ctx, le.key).Result()
	if err != nil || val != le.token {
		return
	}
	le.rdb.Del(ctx, le.key)
}
