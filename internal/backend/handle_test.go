package backend

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
)

func TestHandleLoadsOnce(t *testing.T) {
	var calls atomic.Int32
	h := NewHandle("test", func(context.Context) (string, error) {
		calls.Add(1)
		return "model", nil
	}, slog.Default())

	if got := h.State(); got != Uninitialized {
		t.Fatalf("expected uninitialized state before first use, got %s", got)
	}

	var wg sync.WaitGroup
	for range 16 {
		wg.Go(func() {
			backend, ok := h.Resolve(context.Background())
			if !ok || backend != "model" {
				t.Errorf("unexpected resolve result: %q %v", backend, ok)
			}
		})
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected loader to be called once, got %d", got)
	}

	if got := h.State(); got != Ready {
		t.Fatalf("expected ready state, got %s", got)
	}
}

func TestHandleCachesFailure(t *testing.T) {
	loadErr := errors.New("model download failed")

	var calls int
	h := NewHandle("test", func(context.Context) (int, error) {
		calls++
		return 0, loadErr
	}, slog.Default())

	for range 3 {
		if _, ok := h.Resolve(context.Background()); ok {
			t.Fatalf("expected unavailable backend")
		}
	}

	if calls != 1 {
		t.Fatalf("expected failed loader not to be retried, got %d calls", calls)
	}

	if got := h.State(); got != Unavailable {
		t.Fatalf("expected unavailable state, got %s", got)
	}

	if !errors.Is(h.Err(), loadErr) {
		t.Fatalf("expected cached error, got %v", h.Err())
	}
}

func TestHandleWithoutLoader(t *testing.T) {
	h := NewHandle[string]("test", nil, slog.Default())

	if _, ok := h.Resolve(context.Background()); ok {
		t.Fatalf("expected unavailable backend without loader")
	}

	if !errors.Is(h.Err(), ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", h.Err())
	}
}

func TestHandleLoadIgnoresCallerCancellation(t *testing.T) {
	h := NewHandle("test", func(ctx context.Context) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "model", nil
	}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if backend, ok := h.Resolve(ctx); !ok || backend != "model" {
		t.Fatalf("expected cancelled caller to still load the backend, got %q %v", backend, ok)
	}

	if _, ok := h.Resolve(context.Background()); !ok {
		t.Fatalf("expected backend to stay ready")
	}

	if got := h.State(); got != Ready {
		t.Fatalf("expected ready state, got %s", got)
	}
}
