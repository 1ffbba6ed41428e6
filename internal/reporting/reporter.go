package reporting

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// RateLimit is the pause after every transmitted record
const RateLimit = 50 * time.Millisecond

// WithLogger sets the logger used for diagnostics, hits and alerts
func WithLogger(logger *slog.Logger) func(*Reporter) {
	return func(r *Reporter) {
		r.logger = logger
	}
}

// WithRateLimit sets the pause after every transmitted record. Zero disables it.
func WithRateLimit(d time.Duration) func(*Reporter) {
	return func(r *Reporter) {
		r.rateLimit = d
	}
}

// WithClock overrides the wall clock used for the record send time
func WithClock(now func() time.Time) func(*Reporter) {
	return func(r *Reporter) {
		r.now = now
	}
}

// Reporter keeps a rolling power baseline per frequency, detects hits and
// sends signed telemetry for each one. It is single-threaded: all state is
// owned by the goroutine running Run.
type Reporter struct {
	station   Station
	agf       int
	sender    Sender
	settings  Settings
	baselines map[int64]*baseline

	logger    *slog.Logger
	rateLimit time.Duration
	now       func() time.Time
}

// NewReporter creates a Reporter with initial settings
func NewReporter(station Station, agf int, sender Sender, settings Settings, options ...func(*Reporter)) *Reporter {
	r := Reporter{
		station:   station,
		agf:       agf,
		sender:    sender,
		settings:  settings,
		baselines: make(map[int64]*baseline),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		rateLimit: RateLimit,
		now:       time.Now,
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

// Run consumes messages in arrival order until a Stop message arrives, the
// inbox is closed or ctx is cancelled
func (r *Reporter) Run(ctx context.Context, inbox <-chan Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-inbox:
			if !ok {
				return nil
			}

			switch m := msg.(type) {
			case Stop:
				r.logger.Debug("reporter stopped")
				return nil

			case Toggle:
				r.settings.Apply(m)
				r.logger.Info("setting changed", "setting", m.Setting.String(), "value", r.settings.Value(m.Setting))

			case Data:
				r.handleData(ctx, m)
			}
		}
	}
}

func (r *Reporter) handleData(ctx context.Context, d Data) {
	b, ok := r.baselines[d.Frequency]
	if !ok {
		// first sample of a frequency only seeds its baseline
		r.baselines[d.Frequency] = newBaseline(d.Power)
		return
	}

	threshold := b.threshold(r.settings.HitDB)
	if r.settings.PrintAll {
		r.logger.Info("reading",
			"freq", d.Frequency,
			"pwr", d.Power,
			"threshold", threshold,
			"step", d.Step,
			"lat", d.Location.Lat,
			"lng", d.Location.Lng,
			"count", b.countLabel(),
			"jobid", d.JobID)
	}

	if b.isHit(d.Power, r.settings.HitDB) {
		r.handleHit(ctx, d, b, threshold)
	}

	b.update(d.Power)
}

func (r *Reporter) handleHit(ctx context.Context, d Data, b *baseline, threshold float64) {
	if r.settings.PrintHits {
		r.logger.Info("hit", "freq", d.Frequency, "pwr", d.Power, "threshold", threshold)
	}

	if r.settings.AlertOn && r.inAlertBand(d.Frequency) {
		r.logger.Warn("ALERT", "freq", d.Frequency, "pwr", d.Power, "time", r.now().Format(time.DateTime))
	}

	record := NewRecord(r.station, r.agf, d, overPercent(d.Power, b.average), r.now())
	if err := r.sender.Send(ctx, record); err != nil {
		r.logger.Debug("sending telemetry", "freq", d.Frequency, "error", err)
	}

	if r.rateLimit > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(r.rateLimit):
		}
	}
}

// inAlertBand reports whether freq lies in the closed alert band
func (r *Reporter) inAlertBand(freq int64) bool {
	f := float64(freq)
	return f >= r.settings.AlertCenter-r.settings.AlertBandwidth &&
		f <= r.settings.AlertCenter+r.settings.AlertBandwidth
}

// Settings returns the settings currently applied by the reporter. Only safe
// to call when Run is not executing.
func (r *Reporter) Settings() Settings {
	return r.settings
}
