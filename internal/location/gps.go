package location

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// ErrorBackoff is the pause after a failed or exhausted GPS read
	ErrorBackoff = 5 * time.Second
)

// Source yields GPS fixes, one per call. Next blocks until a fix is read or
// the source fails.
type Source interface {
	Next(ctx context.Context) (Fix, error)
}

// WithGPSLogger sets the logger for the GPS poller
func WithGPSLogger(logger *slog.Logger) func(g *GPS) {
	return func(g *GPS) {
		g.logger = logger.With(slog.String("component", "gps"))
	}
}

// WithErrorBackoff overrides the pause after a failed read
func WithErrorBackoff(backoff time.Duration) func(g *GPS) {
	return func(g *GPS) {
		g.backoff = backoff
	}
}

// GPS polls a live Source in the background and serves the latest fix
type GPS struct {
	source  Source
	backoff time.Duration
	logger  *slog.Logger

	current atomic.Pointer[Fix]

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewGPS creates a GPS poller. Call Start to begin polling.
func NewGPS(source Source, options ...func(g *GPS)) *GPS {
	g := GPS{
		source:  source,
		backoff: ErrorBackoff,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		done:    make(chan struct{}),
	}

	for _, option := range options {
		option(&g)
	}

	return &g
}

// Start launches the polling loop. Subsequent calls are no-ops.
func (g *GPS) Start(ctx context.Context) {
	g.startOnce.Do(func() {
		ctx, g.cancel = context.WithCancel(ctx)
		go g.poll(ctx)
	})
}

// Current returns the most recent fix, or the zero Fix before the first
// successful read
func (g *GPS) Current() Fix {
	if fix := g.current.Load(); fix != nil {
		return *fix
	}
	return Fix{}
}

// Stop signals the polling loop to exit and waits at most timeout for it. A
// read stuck in the source does not hold up the caller past the timeout.
func (g *GPS) Stop(timeout time.Duration) {
	started := true
	g.startOnce.Do(func() { started = false })
	if !started || g.cancel == nil {
		return
	}

	g.cancel()

	select {
	case <-g.done:
	case <-time.After(timeout):
		g.logger.Warn("GPS poller did not stop in time", slog.Duration("timeout", timeout))
	}
}

func (g *GPS) poll(ctx context.Context) {
	defer close(g.done)

	g.logger.Info("starting GPS polling...")

	for ctx.Err() == nil {
		fix, err := g.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}

			g.logger.Warn(fmt.Sprintf("GPS error, sleeping: %s", err.Error()), slog.Duration("backoff", g.backoff))

			select {
			case <-time.After(g.backoff):
			case <-ctx.Done():
			}
			continue
		}

		g.current.Store(&fix)
	}

	g.logger.Info("GPS polling stopped")
}
