package backend

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// LoadTimeout bounds building and smoke testing a backend.
const LoadTimeout = 2 * time.Minute

// ErrNotConfigured is returned by Resolve when the engine was built without a loader.
var ErrNotConfigured = errors.New("backend is not configured")

// State is the lifecycle of a lazily loaded model backend.
type State int

const (
	Uninitialized State = iota
	Ready
	Unavailable
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Loader builds a backend and checks that it answers. Any error makes the
// handle unavailable for the rest of its life.
type Loader[T any] func(ctx context.Context) (T, error)

// Handle resolves a backend at most once. The outcome, success or failure,
// is cached and never retried.
type Handle[T any] struct {
	name   string
	loader Loader[T]
	log    *slog.Logger

	once    sync.Once
	mu      sync.RWMutex
	state   State
	backend T
	err     error
}

func NewHandle[T any](name string, loader Loader[T], log *slog.Logger) *Handle[T] {
	return &Handle[T]{
		name:   name,
		loader: loader,
		log:    log,
	}
}

// Resolve returns the backend, loading it on first use. ok is false when the
// backend is unavailable and the caller must take its fallback path. The load
// keeps ctx values but ignores its cancellation and runs for at most
// LoadTimeout.
func (h *Handle[T]) Resolve(ctx context.Context) (T, bool) {
	h.once.Do(func() {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), LoadTimeout)
		defer cancel()

		h.load(loadCtx)
	})

	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.backend, h.state == Ready
}

// State reports the current state without triggering a load.
func (h *Handle[T]) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.state
}

// Err returns the cached initialization error, if any.
func (h *Handle[T]) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.err
}

func (h *Handle[T]) load(ctx context.Context) {
	if h.loader == nil {
		h.log.WarnContext(ctx, "Backend is not configured so fallback will be used",
			"backend", h.name)

		h.set(Unavailable, ErrNotConfigured)

		return
	}

	backend, err := h.loader(ctx)
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to load backend so fallback will be used",
			"error", err,
			"backend", h.name)

		h.set(Unavailable, err)

		return
	}

	h.mu.Lock()
	h.backend = backend
	h.state = Ready
	h.mu.Unlock()

	h.log.InfoContext(ctx, "Backend is loaded",
		"backend", h.name)
}

func (h *Handle[T]) set(state State, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.state = state
	h.err = err
}
