package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/radio-sentinel/internal/devices"
	"github.com/roman-kulish/radio-sentinel/internal/location"
	"github.com/roman-kulish/radio-sentinel/internal/reporting"
	"github.com/roman-kulish/radio-sentinel/internal/sdr"
	"github.com/roman-kulish/radio-sentinel/internal/sdr/rtl"
)

const (
	// DefaultGain is the tuner gain used when a device has no override
	DefaultGain = 8.7

	// JoinTimeout bounds how long stopping a worker may take
	JoinTimeout = 3 * time.Second

	inboxSize = 4096
)

var (
	// ErrNoJob is returned when no scan runs on the device
	ErrNoJob = errors.New("no scan job on device")

	// ErrDeviceUnavailable is returned when the device is unknown, disabled, reserved or busy
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrShutdown is returned once the controller has been shut down
	ErrShutdown = errors.New("scanner is shut down")

	// ErrNoRuntime is returned when no sampler is configured
	ErrNoRuntime = errors.New("no sampler runtime configured")
)

// HandlerFactory creates the sampler handler for one job
type HandlerFactory func(config *rtl.Config) (sdr.Handler, error)

// WithLogger sets the logger for the controller and everything it starts
func WithLogger(logger *slog.Logger) func(*Controller) {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithRuntime runs rtl_power from binPath
func WithRuntime(binPath string) func(*Controller) {
	return func(c *Controller) {
		c.handlers = func(config *rtl.Config) (sdr.Handler, error) {
			return rtl.New(binPath, config)
		}
	}
}

// WithHandlerFactory overrides how sampler handlers are created
func WithHandlerFactory(f HandlerFactory) func(*Controller) {
	return func(c *Controller) {
		c.handlers = f
	}
}

// WithGains sets per-device tuner gain overrides
func WithGains(gains map[int]float64) func(*Controller) {
	return func(c *Controller) {
		c.gains = maps.Clone(gains)
	}
}

// WithDefaultGain sets the gain used for devices without an override
func WithDefaultGain(gain float64) func(*Controller) {
	return func(c *Controller) {
		c.defaultGain = gain
	}
}

// WithInterval sets the sampler integration interval
func WithInterval(interval rtl.TimeDuration) func(*Controller) {
	return func(c *Controller) {
		c.interval = interval
	}
}

// WithStation sets the identity records are signed with
func WithStation(station reporting.Station) func(*Controller) {
	return func(c *Controller) {
		c.station = station
	}
}

// WithSettings sets the initial reporter settings
func WithSettings(settings reporting.Settings) func(*Controller) {
	return func(c *Controller) {
		c.settings = settings
	}
}

// WithWorkerOptions passes extra options to every worker
func WithWorkerOptions(options ...sdr.WorkerOption) func(*Controller) {
	return func(c *Controller) {
		c.workerOptions = append(c.workerOptions, options...)
	}
}

// WithReporterOptions passes extra options to the reporter
func WithReporterOptions(options ...func(*reporting.Reporter)) func(*Controller) {
	return func(c *Controller) {
		c.reporterOptions = append(c.reporterOptions, options...)
	}
}

// JobOptions tune a single scan job
type JobOptions struct {
	// Remote jobs may run on pseudo devices and keep the device occupied when stopped
	Remote bool
}

// Job is a running scan on one device
type Job struct {
	ID      string
	Device  int
	Range   sdr.FrequencyRange
	Gain    float64
	PPM     int
	Remote  bool
	Started time.Time

	worker *sdr.Worker
}

// Info returns the listing view of the job
func (j *Job) Info() JobInfo {
	return JobInfo{
		ID:      j.ID,
		Device:  j.Device,
		Freqs:   j.Range.String(),
		Range:   j.Range.Display(),
		Gain:    j.Gain,
		PPM:     j.PPM,
		Remote:  j.Remote,
		Started: j.Started,
	}
}

type JobInfo struct {
	ID      string    `json:"id"`
	Device  int       `json:"device"`
	Freqs   string    `json:"freqs"`
	Range   string    `json:"range"`
	Gain    float64   `json:"gain"`
	PPM     int       `json:"ppm"`
	Remote  bool      `json:"remote"`
	Started time.Time `json:"started"`
}

// Controller starts and stops scan jobs. It owns the single reporter, which
// is started on the first job, and the registry of sampler processes.
type Controller struct {
	pool     *devices.Pool
	location location.Provider
	sender   reporting.Sender
	station  reporting.Station
	registry *sdr.ProcessRegistry

	handlers    HandlerFactory
	gains       map[int]float64
	defaultGain float64
	interval    rtl.TimeDuration

	workerOptions   []sdr.WorkerOption
	reporterOptions []func(*reporting.Reporter)

	mu             sync.Mutex
	jobs           map[int]*Job
	settings       reporting.Settings
	inbox          chan reporting.Message
	reporterDone   chan struct{}
	reporterCancel context.CancelFunc
	closed         bool

	watchers sync.WaitGroup
	logger   *slog.Logger
}

// New creates a new Controller
func New(pool *devices.Pool, loc location.Provider, sender reporting.Sender, options ...func(*Controller)) *Controller {
	c := Controller{
		pool:        pool,
		location:    loc,
		sender:      sender,
		registry:    sdr.NewProcessRegistry(),
		handlers:    func(*rtl.Config) (sdr.Handler, error) { return nil, ErrNoRuntime },
		gains:       make(map[int]float64),
		defaultGain: DefaultGain,
		interval:    rtl.DefaultInterval,
		jobs:        make(map[int]*Job),
		settings:    reporting.DefaultSettings(),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// Start begins scanning freqSpec on device. The frequency specification is
// validated before the device is touched.
func (c *Controller) Start(ctx context.Context, device int, freqSpec string, opts JobOptions) (*Job, error) {
	freqs, err := sdr.ParseFrequencyRange(freqSpec)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrShutdown
	}
	if _, ok := c.jobs[device]; ok {
		return nil, fmt.Errorf("%w: device %d already scanning", ErrDeviceUnavailable, device)
	}

	job := Job{
		ID:      uuid.NewString(),
		Device:  device,
		Range:   freqs,
		Gain:    c.gain(device),
		PPM:     c.pool.PPM(device),
		Remote:  opts.Remote,
		Started: time.Now(),
	}

	handler, err := c.handlers(&rtl.Config{
		DeviceIndex: device,
		Range:       freqs,
		Interval:    c.interval,
		PPMError:    job.PPM,
		Gain:        job.Gain,
	})
	if err != nil {
		return nil, fmt.Errorf("creating sampler: %w", err)
	}

	if !c.pool.Occupy(device, reporting.ModuleName, job.ID, opts.Remote) {
		return nil, fmt.Errorf("%w: device %d", ErrDeviceUnavailable, device)
	}

	c.startReporter()

	logger := c.logger.With(slog.Int("device", device), slog.String("jobID", job.ID))
	options := append([]sdr.WorkerOption{sdr.WithLogger(logger)}, c.workerOptions...)
	job.worker = sdr.NewWorker(sdr.WorkerOptions{
		Device:   device,
		JobID:    job.ID,
		Gain:     job.Gain,
		PPM:      job.PPM,
		Handler:  handler,
		Sink:     c.inbox,
		Location: c.location,
		Pool:     c.pool,
		Registry: c.registry,
	}, options...)

	// workers outlive the request that started them
	if err = job.worker.Start(context.WithoutCancel(ctx)); err != nil {
		c.pool.Release(device)
		return nil, fmt.Errorf("starting scan on device %d: %w", device, err)
	}

	c.jobs[device] = &job
	c.watchers.Add(1)
	go c.watch(&job)

	logger.Info("scan started", slog.String("range", freqs.Display()), slog.Bool("remote", opts.Remote))
	logger.Info("it takes a while to gather samples to form an average for new frequency ranges")

	return &job, nil
}

// Stop ends the scan on device. The device is released unless the job is remote.
func (c *Controller) Stop(device int) error {
	c.mu.Lock()
	job, ok := c.jobs[device]
	if ok {
		delete(c.jobs, device)
	}
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w %d", ErrNoJob, device)
	}

	c.stopJob(job)
	return nil
}

// Shutdown stops the reporter, every worker and any sampler still running.
// It is safe to call more than once.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true

	jobs := slices.Collect(maps.Values(c.jobs))
	clear(c.jobs)

	inbox, reporterDone, reporterCancel := c.inbox, c.reporterDone, c.reporterCancel
	c.mu.Unlock()

	c.logger.Info("shutting down scanner")

	if inbox != nil {
		select {
		case inbox <- reporting.Stop{}:
		default:
			// inbox is full of readings
		}
		reporterCancel()
		<-reporterDone
	}

	for _, job := range jobs {
		c.stopJob(job)
	}

	// samplers that survived SIGTERM and the kill delay
	c.registry.KillAll()
	c.watchers.Wait()
}

// Settings returns the current reporter settings
func (c *Controller) Settings() reporting.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.settings
}

// ChangeSetting toggles a boolean setting or sets a numeric one to arg, and
// forwards the change to the reporter when it runs
func (c *Controller) ChangeSetting(name, arg string) (reporting.Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	toggle, err := c.settings.Change(name, arg)
	if err != nil {
		return c.settings, err
	}

	c.settings.Apply(toggle)
	if c.inbox != nil && !c.closed {
		c.inbox <- toggle
	}

	return c.settings, nil
}

// Jobs lists running scans ordered by device
func (c *Controller) Jobs() []JobInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	infos := make([]JobInfo, 0, len(c.jobs))
	for _, device := range slices.Sorted(maps.Keys(c.jobs)) {
		infos = append(infos, c.jobs[device].Info())
	}
	return infos
}

// Registry exposes the sampler processes started by this controller
func (c *Controller) Registry() *sdr.ProcessRegistry {
	return c.registry
}

func (c *Controller) gain(device int) float64 {
	if gain, ok := c.gains[device]; ok {
		return gain
	}
	return c.defaultGain
}

// startReporter lazily starts the single reporter; c.mu must be held
func (c *Controller) startReporter() {
	if c.inbox != nil {
		return
	}

	options := append([]func(*reporting.Reporter){reporting.WithLogger(c.logger)}, c.reporterOptions...)
	reporter := reporting.NewReporter(c.station, c.pool.AGF(), c.sender, c.settings, options...)

	var ctx context.Context
	ctx, c.reporterCancel = context.WithCancel(context.Background())
	c.inbox = make(chan reporting.Message, inboxSize)
	c.reporterDone = make(chan struct{})

	go func() {
		defer close(c.reporterDone)

		if err := reporter.Run(ctx, c.inbox); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("reporter stopped", slog.Any("error", err))
		}
	}()
}

func (c *Controller) stopJob(job *Job) {
	if err := job.worker.Stop(JoinTimeout); err != nil {
		c.logger.Warn("scan did not stop in time", slog.Int("device", job.Device), slog.Any("error", err))
	}

	if !job.Remote {
		c.pool.Release(job.Device)
	}

	c.logger.Info("scan stopped", slog.Int("device", job.Device), slog.String("jobID", job.ID))
}

// watch drops a job whose worker finished on its own
func (c *Controller) watch(job *Job) {
	defer c.watchers.Done()

	<-job.worker.Done()

	c.mu.Lock()
	current, ok := c.jobs[job.Device]
	owned := ok && current == job
	if owned {
		delete(c.jobs, job.Device)
	}
	c.mu.Unlock()

	if !owned {
		return // stopped by request
	}

	err := job.worker.Err()
	if sdr.IsDeviceFailure(err) {
		c.logger.Warn("device removed", slog.Int("device", job.Device), slog.Any("error", err))
		return
	}

	c.logger.Error("scan ended", slog.Int("device", job.Device), slog.Any("error", err))
	if !job.Remote {
		c.pool.Release(job.Device)
	}
}
