package checkout

import (
	"context"
	"sync"
)

// Guard rejects a second checkout for a register while the first is running.
// It debounces; it never queues. The returned release func must be called
// once the checkout finishes.
type Guard interface {
	Acquire(ctx context.Context, registerID string) (release func(), err error)
}

var _ Guard = (*LocalGuard)(nil)

// LocalGuard is a Guard for a single process.
type LocalGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalGuard creates an in-process Guard.
func NewLocalGuard() *LocalGuard {
	return &LocalGuard{held: make(map[string]struct{})}
}

// Acquire marks registerID busy or returns ErrCheckoutInProgress.
func (g *LocalGuard) Acquire(_ context.Context, registerID string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.held[registerID]; busy {
		return nil, ErrCheckoutInProgress
	}
	g.held[registerID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, registerID)
			g.mu.Unlock()
		})
	}, nil
}
