package sdr

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/roman-kulish/radio-sentinel/internal/location"
	"github.com/roman-kulish/radio-sentinel/internal/reporting"
)

const (
	// LocationBackoff is how long a worker pauses when the current fix is unknown
	LocationBackoff = 3 * time.Second

	// KillDelay is how long a sampler gets to exit after SIGTERM before it is killed
	KillDelay = 2 * time.Second

	// rtl_power lines grow with the number of bins
	maxLineSize = 4 << 20
)

var (
	// ErrWorkerStarted is returned when Start is called twice
	ErrWorkerStarted = errors.New("worker already started")

	// ErrBrokenPipe is returned when there's an error reading the sampler output
	ErrBrokenPipe = errors.New("broken pipe")

	// ErrProcessExited is returned when the sampler exits without being asked to
	ErrProcessExited = errors.New("sampler exited unexpectedly")

	// ErrStopTimeout is returned when a worker does not finish within the join bound
	ErrStopTimeout = errors.New("worker did not stop in time")
)

// Handler builds the sampler command for one device and parses its output
type Handler interface {
	Cmd(ctx context.Context) *exec.Cmd
	Parse(line string) (*Sweep, error)
	Device() string
}

// Disabler takes a failed device out of service
type Disabler interface {
	Disable(index int)
}

// WorkerOptions binds a worker to a device, a job and the reporter inbox
type WorkerOptions struct {
	Device   int
	JobID    string
	Gain     float64
	PPM      int
	Handler  Handler
	Sink     chan<- reporting.Message
	Location location.Provider
	Pool     Disabler         // optional
	Registry *ProcessRegistry // optional
}

type WorkerOption func(w *Worker)

// WithLogger sets the logger for the worker
func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger.With(
			slog.String("device", w.opts.Handler.Device()),
			slog.Int("index", w.opts.Device),
			slog.String("jobID", w.opts.JobID),
		)
	}
}

// WithLocationBackoff sets the pause applied when the location is unknown
func WithLocationBackoff(d time.Duration) WorkerOption {
	return func(w *Worker) {
		w.locationBackoff = d
	}
}

// WithKillDelay sets the grace period between SIGTERM and SIGKILL
func WithKillDelay(d time.Duration) WorkerOption {
	return func(w *Worker) {
		w.killDelay = d
	}
}

// Worker runs one sampler subprocess for one device and streams its readings
// into the reporter inbox
type Worker struct {
	opts WorkerOptions

	mu      sync.Mutex // guards started and cancel
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error // written once before done is closed

	locationBackoff time.Duration
	killDelay       time.Duration
	logger          *slog.Logger
}

// NewWorker creates a new Worker instance with a discard logger
func NewWorker(opts WorkerOptions, options ...WorkerOption) *Worker {
	w := Worker{
		opts:            opts,
		done:            make(chan struct{}),
		cancel:          func() {},
		locationBackoff: LocationBackoff,
		killDelay:       KillDelay,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&w)
	}

	return &w
}

// Start launches the sampler and the goroutine consuming its output
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return ErrWorkerStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	w.started, w.cancel = true, cancel
	w.mu.Unlock()

	cmd := w.opts.Handler.Cmd(ctx)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = w.killDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return w.fail(cancel, fmt.Errorf("creating stdout pipe: %w", err))
	}
	cmd.Stderr = cmd.Stdout // both streams carry status lines

	if err = cmd.Start(); err != nil {
		return w.fail(cancel, fmt.Errorf("starting sampler: %w", err))
	}

	if w.opts.Registry != nil {
		w.opts.Registry.Add(cmd)
	}

	go func() {
		defer close(w.done)

		w.logger.Info("starting scan...")

		err := w.consume(ctx, stdout)
		stopped := ctx.Err() != nil

		cancel()
		waitErr := cmd.Wait()

		if w.opts.Registry != nil {
			w.opts.Registry.Remove(cmd)
		}

		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			w.err = err
		case !stopped && waitErr != nil:
			w.err = fmt.Errorf("%w: %w", ErrProcessExited, waitErr)
		case !stopped:
			w.err = ErrProcessExited
		}

		if w.err != nil {
			w.logger.Error("scan stopped", slog.Any("error", w.err))
			return
		}
		w.logger.Info("scan stopped")
	}()

	return nil
}

// Stop terminates the sampler and waits up to timeout for the worker to finish
func (w *Worker) Stop(timeout time.Duration) error {
	w.mu.Lock()
	started, cancel := w.started, w.cancel
	w.mu.Unlock()

	if !started {
		return nil
	}

	cancel()

	select {
	case <-w.done:
		return nil
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}

// Done is closed once the worker has finished and its sampler is reaped
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Err returns why the worker finished; nil while running or after a requested stop
func (w *Worker) Err() error {
	select {
	case <-w.done:
		return w.err
	default:
		return nil
	}
}

func (w *Worker) fail(cancel context.CancelFunc, err error) error {
	cancel()
	w.err = err
	close(w.done)
	return err
}

// consume reads sampler output line by line and fans readings out into the sink
func (w *Worker) consume(ctx context.Context, stdout io.Reader) error {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fix := w.opts.Location.Current()
		if !fix.Known() {
			w.logger.Warn("location unknown, skipping output")
			if err := sleep(ctx, w.locationBackoff); err != nil {
				return err
			}
			continue
		}

		sweep, err := w.opts.Handler.Parse(line)
		if errors.Is(err, ErrIrrelevantLine) {
			w.logger.Debug(fmt.Sprintf("%s >> %s", w.opts.Handler.Device(), line))
			continue
		}
		if err != nil {
			if IsDeviceFailure(err) && w.opts.Pool != nil {
				w.opts.Pool.Disable(w.opts.Device)
				w.logger.Warn("device removed", slog.String("reason", err.Error()))
			}
			return err
		}

		if err = w.publish(ctx, sweep, fix); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		return fmt.Errorf("%w: error reading output: %w", ErrBrokenPipe, err)
	}

	return nil
}

// publish sends one Data message per reading; all readings of a sweep share
// the capture time
func (w *Worker) publish(ctx context.Context, sweep *Sweep, fix location.Fix) error {
	captureTime := time.Now().UnixMilli()

	for i, power := range sweep.Readings {
		msg := reporting.Data{
			Frequency:   sweep.Frequency(i),
			Power:       power,
			Step:        sweep.BinWidth,
			Gain:        w.opts.Gain,
			PPM:         w.opts.PPM,
			Device:      w.opts.Device,
			Location:    fix,
			JobID:       w.opts.JobID,
			CaptureTime: captureTime,
		}

		select {
		case w.opts.Sink <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
