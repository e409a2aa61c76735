package orbit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/orbit/internal/apperr"
	"github.com/starford/orbit/internal/watch"
)

const maxDebounceEntries = 4096

// Reconciler feeds watch events to an Engine, dropping repeated events
// for a path that arrive within the debounce window.
type Reconciler struct {
	engine   *Engine
	debounce time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu   sync.Mutex
	last map[string]time.Time
}

// NewReconciler creates a reconciler. A non-positive debounce uses
// DefaultDebounce.
func NewReconciler(engine *Engine, debounce time.Duration, logger *slog.Logger) *Reconciler {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Reconciler{
		engine:   engine,
		debounce: debounce,
		now:      engine.now,
		logger:   logger,
		last:     make(map[string]time.Time),
	}
}

// Handle processes one event. Errors are logged and never returned, so a bad
// document cannot stop the loop.
func (r *Reconciler) Handle(ctx context.Context, op watch.Op, rel string) {
	if !r.engine.isDocument(rel) {
		return
	}
	if op == watch.OpRemove {
		r.engine.tracker.Forget(rel)
		r.forget(rel)
		return
	}
	if !r.admit(rel) {
		r.logger.Debug("orbit: debounced", slog.String("op", op.String()), slog.String("path", rel))
		return
	}

	res, err := r.engine.Process(ctx, rel)
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrUnresolved) {
			level = slog.LevelWarn
		}
		r.logger.Log(ctx, level, "orbit: process failed",
			slog.String("op", op.String()),
			slog.String("path", rel),
			slog.String("error", err.Error()),
		)
		return
	}
	if res.Skipped {
		// A half-written file must not hold the window against the write
		// that completes it.
		r.forget(rel)
		return
	}
	if res.Moved {
		// Swallow the create event fired by the move itself.
		r.mark(res.Path)
	}
}

// admit records the event time for rel and reports whether it is outside the
// debounce window of the previous admitted event.
func (r *Reconciler) admit(rel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if last, ok := r.last[rel]; ok && now.Sub(last) < r.debounce {
		return false
	}
	if len(r.last) > maxDebounceEntries {
		for p, t := range r.last {
			if now.Sub(t) >= r.debounce {
				delete(r.last, p)
			}
		}
	}
	r.last[rel] = now
	return true
}

func (r *Reconciler) forget(rel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.last, rel)
}

func (r *Reconciler) mark(rel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last[rel] = r.now()
}
