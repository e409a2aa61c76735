package orbit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/starford/orbit/internal/watch"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatchedVault_MovesNewDocument(t *testing.T) {
	env := newTestEnv(t, WithClock(time.Now))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewReconciler(env.engine, time.Second, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = watch.Watch(ctx, env.root, logger, r)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)

	env.write(t, "Stretch.md", "---\ntype: dust\ndomain: 200-Health\norbits: [Yoga]\nsatellites: [Warmup]\n---\n")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return env.store.Exists("200-Health/.0-inbox/Yoga/0-inbox/Stretch.md")
	}, "document not moved by the watch loop")
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return env.store.Exists("200-Health/.0-inbox/Yoga/0-inbox/Warmup.md")
	}, "satellite stub not created by the watch loop")
}
