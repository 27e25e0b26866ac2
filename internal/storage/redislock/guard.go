// Package redislock holds the submission guard for shops running more than one
// server in front of the same registers.
package redislock

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/jewellery-pos/internal/domain/checkout"
)

const defaultKeyPrefix = "pos:checkout:"

// releaseScript deletes the key only while it still holds our token, so an
// expired lease never removes a newer holder's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ checkout.Guard = (*SubmissionGuard)(nil)

// SubmissionGuard serialises checkouts per register across processes using
// a Redis lease. The lease expires after TTL so a crashed server cannot
// lock a register forever.
type SubmissionGuard struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// GuardOption configures a SubmissionGuard.
type GuardOption func(*SubmissionGuard)

// WithKeyPrefix sets the prefix for lease keys.
func WithKeyPrefix(p string) GuardOption {
	return func(g *SubmissionGuard) { g.prefix = p }
}

// NewSubmissionGuard returns a guard whose leases last ttl.
func NewSubmissionGuard(client redis.UniversalClient, ttl time.Duration, opts ...GuardOption) *SubmissionGuard {
	g := &SubmissionGuard{client: client, ttl: ttl, prefix: defaultKeyPrefix}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Acquire takes the lease for registerID. It returns
// checkout.ErrCheckoutInProgress while another checkout holds it.
func (g *SubmissionGuard) Acquire(ctx context.Context, registerID string) (func(), error) {
	key := g.prefix + registerID
	token := uuid.NewString()

	ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "acquire checkout lease for %s", registerID)
	}
	if !ok {
		return nil, checkout.ErrCheckoutInProgress
	}

	var once sync.Once
	return func() {
		once.Do(func() { g.release(ctx, registerID, key, token) })
	}, nil
}

func (g *SubmissionGuard) release(ctx context.Context, registerID, key, token string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(rctx, g.client, []string{key}, token).Err(); err != nil {
		zctx.From(ctx).Warn("Release checkout lease failed",
			zap.String("register_id", registerID),
			zap.Error(err),
		)
	}
}
