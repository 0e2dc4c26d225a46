package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Both scripts act only while the caller still owns the key.
const (
	releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`
	renewLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`
)

// Leases hands out writer leases so only one process mirrors a symbol.
type Leases struct {
	rdb     *redis.Client
	release *redis.Script
	renew   *redis.Script
}

// NewLeases creates a lease manager.
func NewLeases(c *Client) *Leases {
	return &Leases{
		rdb:     c.rdb,
		release: redis.NewScript(releaseLua),
		renew:   redis.NewScript(renewLua),
	}
}

func leaseKey(name string) string { return "lease:" + name }

// Lease is one held lease.
type Lease struct {
	leases *Leases
	key    string
	token  string
	ttl    time.Duration
}

// Acquire takes the named lease for ttl. It returns domain.ErrLeaseHeld
// when another holder owns it.
func (l *Leases) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	lease := &Lease{leases: l, key: leaseKey(name), token: uuid.NewString(), ttl: ttl}
	ok, err := l.rdb.SetNX(ctx, lease.key, lease.token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lease %s: %w", name, err)
	}
	if !ok {
		return nil, domain.ErrLeaseHeld
	}
	return lease, nil
}

// Renew extends the lease. It returns domain.ErrLeaseHeld if ownership was
// lost, e.g. after expiry.
func (ls *Lease) Renew(ctx context.Context) error {
	n, err := ls.leases.renew.Run(ctx, ls.leases.rdb, []string{ls.key}, ls.token, ls.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redis: renew lease %s: %w", ls.key, err)
	}
	if n == 0 {
		return domain.ErrLeaseHeld
	}
	return nil
}

// Keep renews the lease every ttl/3 until ctx is done or ownership is lost,
// then releases it.
func (ls *Lease) Keep(ctx context.Context) error {
	ticker := time.NewTicker(ls.ttl / 3)
	defer ticker.Stop()
	defer ls.Release()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := ls.Renew(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// Release gives the lease up if still owned. It is safe to call repeatedly.
func (ls *Lease) Release() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = ls.leases.release.Run(ctx, ls.leases.rdb, []string{ls.key}, ls.token).Err()
}
