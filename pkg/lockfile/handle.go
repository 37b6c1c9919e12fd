package lockfile

import (
	"fmt"
	"sync"
	"time"

	"github.com/mvcruz/lockstep/pkg/metrics"
)

// Handle is an acquired exclusive lock.
// Release is idempotent so a deferred call is always safe, including
// on cleanup paths that may already have released explicitly.
type Handle struct {
	mu         sync.Mutex
	m          *Mutex
	acquiredAt time.Time
	released   bool
}

// when the lock was acquired
func (h *Handle) AcquiredAt() time.Time { return h.acquiredAt }

// Release relinquishes the lock, unblocking the next contender.
// Calling Release more than once is a no-op.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil
	}
	h.released = true

	held := time.Since(h.acquiredAt)
	metrics.LocksHeld.Dec()
	metrics.LockReleaseTotal.WithLabelValues(h.m.path).Inc()
	metrics.CriticalSectionDuration.Observe(held.Seconds())

	if err := h.m.fl.Unlock(); err != nil {
		return fmt.Errorf("release %s: %w", h.m.path, err)
	}

	h.m.log.Debug("lock released", "path", h.m.path, "held", held)
	return nil
}
