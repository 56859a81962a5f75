// Package idempotency remembers client supplied request keys so a retried
// checkout is not executed twice.
package idempotency

import (
	"context"
	"sync"
	"time"
)

type Guard interface {
	// Claim reports false when key was already claimed in scope and has not
	// expired or been released.
	Claim(ctx context.Context, scope, key string) (bool, error)
	// Release forgets a claim so the request may be retried.
	Release(ctx context.Context, scope, key string) error
}

// MemoryGuard is a process-local Guard used when no Redis is configured.
type MemoryGuard struct {
	mu     sync.Mutex
	ttl    time.Duration
	claims map[string]time.Time
	now    func() time.Time
}

func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	return &MemoryGuard{ttl: ttl, claims: make(map[string]time.Time), now: time.Now}
}

func (g *MemoryGuard) Claim(_ context.Context, scope, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	k := claimKey(scope, key)
	if expires, ok := g.claims[k]; ok && now.Before(expires) {
		return false, nil
	}

	for existing, expires := range g.claims {
		if !now.Before(expires) {
			delete(g.claims, existing)
		}
	}
	g.claims[k] = now.Add(g.ttl)
	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, scope, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claims, claimKey(scope, key))
	return nil
}

func claimKey(scope, key string) string {
	return "idempotency:" + scope + ":" + key
}
