// Package worker runs the protected operation: take permission, take the
// lock, mutate the resource, release. The resource is never touched
// outside a held lock, and the lock is released on every exit path.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mvcruz/lockstep/pkg/journal"
	"github.com/mvcruz/lockstep/pkg/lockfile"
	"github.com/mvcruz/lockstep/pkg/metrics"
	"github.com/mvcruz/lockstep/pkg/peer"
	"github.com/mvcruz/lockstep/pkg/resource"
)

// Mutation computes the next resource content from the current one.
// It runs strictly inside the held lock.
type Mutation func(current string) (string, error)

type Config struct {
	ID    string
	Store *resource.Store
	Mutex *lockfile.Mutex

	// how long Acquire may wait; 0 is a non-blocking attempt,
	// negative blocks until the lock is free
	AcquireTimeout time.Duration

	// optional time to keep holding the lock after the write,
	// simulating longer use of the resource
	Hold time.Duration

	Mutate Mutation

	Coordinator *peer.Coordinator // optional peer permission layer
	Journal     *journal.Journal  // optional access journal
	Logger      hclog.Logger
}

type Worker struct {
	cfg Config
	log hclog.Logger
}

func New(cfg Config) (*Worker, error) {
	if cfg.Store == nil || cfg.Mutex == nil || cfg.Mutate == nil {
		return nil, errors.New("worker needs a store, a mutex and a mutation")
	}
	log := cfg.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Worker{
		cfg: cfg,
		log: log.Named("worker"),
	}, nil
}

// RunOnce performs exactly one protected operation. On a timeout the
// resource has not been touched; on a failure inside the critical
// section the lock is still released before the error propagates.
func (w *Worker) RunOnce(ctx context.Context) (err error) {
	defer func() {
		status := "success"
		if err != nil {
			status = "failure"
		}
		metrics.RunsTotal.WithLabelValues(status).Inc()
	}()

	if w.cfg.Coordinator != nil {
		if err := w.cfg.Coordinator.RequestAccess(ctx); err != nil {
			return err
		}
		defer w.cfg.Coordinator.ReleaseAccess()
	}

	handle, err := w.cfg.Mutex.Acquire(ctx, w.cfg.AcquireTimeout)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := handle.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()

	current, err := w.cfg.Store.Read()
	if err != nil {
		return err
	}

	next, err := w.cfg.Mutate(current)
	if err != nil {
		return fmt.Errorf("mutate resource: %w", err)
	}

	if err := w.cfg.Store.WriteAtomic(next); err != nil {
		return err
	}

	if w.cfg.Hold > 0 {
		// keep the lock while "using" the resource; a cancelled ctx
		// just cuts the hold short, the write is already durable
		select {
		case <-time.After(w.cfg.Hold):
		case <-ctx.Done():
			w.log.Debug("hold cut short", "reason", ctx.Err())
		}
	}

	released := time.Now()
	w.log.Info("resource updated",
		"worker", w.cfg.ID, "bytes", len(next), "held", released.Sub(handle.AcquiredAt()))

	if w.cfg.Journal != nil {
		w.record(handle.AcquiredAt(), released, len(next))
	}
	return nil
}

func (w *Worker) record(acquired, released time.Time, bytes int) {
	rec := journal.Record{
		WorkerID:   w.cfg.ID,
		AcquiredAt: acquired,
		ReleasedAt: released,
		Held:       released.Sub(acquired),
		Bytes:      bytes,
	}
	if _, err := w.cfg.Journal.Append(rec); err != nil {
		// the protected operation already succeeded, keep it that way
		w.log.Warn("failed to append journal record", "error", err)
	}
}
