// Package lockfile serializes access to a shared resource across
// independent processes using an advisory flock(2) lock on a dedicated
// lock file. The lock file is distinct from the resource it guards and
// its content is irrelevant to exclusion: the kernel lock state decides
// ownership. Lock files are long-lived and never deleted after use,
// which avoids unlink races between contenders.
package lockfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/hashicorp/go-hclog"
	"github.com/mvcruz/lockstep/pkg/metrics"
	"github.com/mvcruz/lockstep/pkg/types"
)

// delay between attempts while waiting for the lock
// purely a backoff strategy : exclusion comes from flock(2), not polling
const retryDelay = 100 * time.Millisecond

// Mutex is a cross-process mutual exclusion lock keyed by a filesystem path.
// A Mutex is reusable: after Release the same instance can acquire again.
type Mutex struct {
	path    string
	ownerID string
	fl      *flock.Flock
	log     hclog.Logger
}

func New(path, ownerID string, log hclog.Logger) *Mutex {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Mutex{
		path:    path,
		ownerID: ownerID,
		fl:      flock.New(path),
		log:     log.Named("lockfile"),
	}
}

func (m *Mutex) Path() string { return m.path }

// Acquire claims the exclusive lock and returns a handle the caller must
// release on every exit path from its critical section.
//
// timeout > 0 waits at most that long and fails with types.ErrLockTimeout,
// timeout == 0 makes a single non-blocking attempt failing with
// types.ErrLockBusy, and timeout < 0 blocks until the lock is available
// or ctx ends. Filesystem failures surface as wrapped errors distinct
// from both sentinels.
func (m *Mutex) Acquire(ctx context.Context, timeout time.Duration) (*Handle, error) {
	start := time.Now()

	if timeout == 0 {
		locked, err := m.fl.TryLock()
		if err != nil {
			metrics.LockAcquireTotal.WithLabelValues(m.path, "error").Inc()
			return nil, fmt.Errorf("lock %s: %w", m.path, err)
		}
		if !locked {
			metrics.LockAcquireTotal.WithLabelValues(m.path, "busy").Inc()
			return nil, types.ErrLockBusy
		}
		return m.acquired(start), nil
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	locked, err := m.fl.TryLockContext(waitCtx, retryDelay)
	if locked {
		return m.acquired(start), nil
	}

	// the wait deadline expired while the parent context is still live
	if timeout > 0 && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		metrics.LockAcquireTotal.WithLabelValues(m.path, "timeout").Inc()
		m.log.Warn("lock acquisition timed out", "path", m.path, "timeout", timeout)
		return nil, types.ErrLockTimeout
	}

	metrics.LockAcquireTotal.WithLabelValues(m.path, "error").Inc()
	return nil, fmt.Errorf("lock %s: %w", m.path, err)
}

func (m *Mutex) acquired(start time.Time) *Handle {
	waited := time.Since(start)
	metrics.LockAcquireTotal.WithLabelValues(m.path, "success").Inc()
	metrics.LockAcquireDuration.WithLabelValues(m.path).Observe(waited.Seconds())
	metrics.LocksHeld.Inc()

	now := time.Now()
	m.stamp(now)
	m.log.Debug("lock acquired", "path", m.path, "waited", waited)

	return &Handle{m: m, acquiredAt: now}
}

// stamp writes owner metadata into the lock file for diagnostics
// failures are logged and ignored : the metadata is advisory only
func (m *Mutex) stamp(acquiredAt time.Time) {
	hostname, _ := os.Hostname()
	info := types.LockInfo{
		OwnerID:    m.ownerID,
		PID:        os.Getpid(),
		Hostname:   hostname,
		AcquiredAt: acquiredAt,
	}

	data, err := json.Marshal(info)
	if err == nil {
		err = os.WriteFile(m.path, data, 0644)
	}
	if err != nil {
		m.log.Warn("failed to stamp lock owner metadata", "path", m.path, "error", err)
	}
}
