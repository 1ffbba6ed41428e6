package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roman-kulish/radio-sentinel/internal/control"
	"github.com/roman-kulish/radio-sentinel/internal/devices"
	"github.com/roman-kulish/radio-sentinel/internal/devices/rtlsdr"
	"github.com/roman-kulish/radio-sentinel/internal/location"
	"github.com/roman-kulish/radio-sentinel/internal/reporting"
	"github.com/roman-kulish/radio-sentinel/internal/scanner"
	"github.com/roman-kulish/radio-sentinel/internal/sdr"
	"github.com/roman-kulish/radio-sentinel/internal/sdr/rtl"
)

const (
	stopTimeout = 3 * time.Second
)

// Run wires the scanner together and blocks until ctx is cancelled
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	binPath, err := sdr.FindRuntime(config.Scanner.RTLPath, rtl.Runtime)
	if err != nil {
		return fmt.Errorf("failed to locate sampler: %w", err)
	}

	pool, err := devices.Enumerate(rtlsdr.Enumerator{},
		devices.WithLogger(logger),
		devices.WithAGF(config.Devices.AGF),
		devices.WithPPM(config.Devices.PPM()))
	if err != nil {
		return fmt.Errorf("failed to enumerate devices: %w", err)
	}

	loc, stopLocation, err := createLocation(ctx, &config.Location, logger)
	if err != nil {
		return fmt.Errorf("failed to create location provider: %w", err)
	}
	defer stopLocation()

	sender := reporting.NewUDPSender(config.Server.Host, config.Server.Port)
	defer sender.Close()

	scans := scanner.New(pool, loc, sender,
		scanner.WithLogger(logger),
		scanner.WithRuntime(binPath),
		scanner.WithStation(reporting.Station{ID: config.Station.ID, Passphrase: config.Station.Passphrase}),
		scanner.WithGains(config.Devices.Gains()),
		scanner.WithDefaultGain(*config.Scanner.DefaultGain),
		scanner.WithInterval(config.Scanner.Integration))
	defer scans.Shutdown()

	for _, line := range pool.Describe() {
		logger.Info(line)
	}

	for _, job := range config.Scanner.Jobs {
		if _, err = scans.Start(ctx, job.Device, job.Freqs, scanner.JobOptions{}); err != nil {
			return fmt.Errorf("failed to start scan on device %d: %w", job.Device, err)
		}
	}

	if config.Control.Listen == "" {
		<-ctx.Done()
		return nil
	}

	srv := control.New(config.Control.Listen, pool, scans, loc, control.WithLogger(logger))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn(fmt.Sprintf("control API shutdown: %s", err.Error()))
	}
	return nil
}

func createLocation(ctx context.Context, config *LocationConfig, logger *slog.Logger) (location.Provider, func(), error) {
	if !config.UseGPS {
		static, err := location.NewStatic(config.Lat, config.Lng)
		if err != nil {
			return nil, nil, err
		}
		return static, func() {}, nil
	}

	source := location.NewGpsd(config.Gpsd)
	gps := location.NewGPS(source, location.WithGPSLogger(logger))
	gps.Start(ctx)

	logger.Info("using gpsd for location", slog.String("addr", config.Gpsd))

	return gps, func() {
		gps.Stop(stopTimeout)
		_ = source.Close()
	}, nil
}
