package rtl

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/roman-kulish/radio-sentinel/internal/sdr"
)

const (
	Runtime = "rtl_power"
	Device  = "RTL-SDR"

	// DroppedSamples is the line rtl_power prints when the dongle can no longer keep up
	DroppedSamples = "Error: dropped samples."

	// date, time, low, high, step, samples, readings...
	fieldCount = 7
)

// handler struct represents an RTL-SDR handler
type handler struct {
	binPath string
	args    []string
}

// New creates a new RTL-SDR handler running the binary at binPath
func New(binPath string, config *Config) (sdr.Handler, error) {
	args, err := config.Args()
	if err != nil {
		return nil, fmt.Errorf("error creating args: %w", err)
	}

	return &handler{binPath, args}, nil
}

// Cmd returns an exec.Cmd for the RTL-SDR handler
func (h handler) Cmd(ctx context.Context) *exec.Cmd {
	return exec.CommandContext(ctx, h.binPath, h.args...)
}

// Parse parses one line of rtl_power output:
//
//	2024-01-02, 10:11:12, 100000000, 101000000, 1000.00, 16, -10.5, -11.2, ...
//
// Lines that do not start with a date are banner or status output, except the
// dropped samples marker.
func (h handler) Parse(line string) (*sdr.Sweep, error) {
	date, _, _ := strings.Cut(line, " ")
	if len(strings.Split(date, "-")) != 3 {
		if line == DroppedSamples {
			return nil, sdr.ErrDroppedSamples
		}
		return nil, sdr.ErrIrrelevantLine
	}

	fields := strings.SplitN(line, ", ", fieldCount)
	if len(fields) != fieldCount {
		return nil, fmt.Errorf("%w: %d fields", sdr.ErrStreamDesync, len(fields))
	}

	low, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid start frequency: %w", sdr.ErrStreamDesync, err)
	}

	high, err := strconv.ParseFloat(strings.TrimSpace(fields[3]), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid end frequency: %w", sdr.ErrStreamDesync, err)
	}

	step, err := strconv.ParseFloat(strings.TrimSpace(fields[4]), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid bin size: %w", sdr.ErrStreamDesync, err)
	}

	numSamples, err := strconv.Atoi(strings.TrimSpace(fields[5]))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid number of samples: %w", sdr.ErrStreamDesync, err)
	}

	raw := strings.Split(fields[6], ",")
	readings := make([]float64, len(raw))
	for i, field := range raw {
		if readings[i], err = strconv.ParseFloat(strings.TrimSpace(field), 64); err != nil {
			return nil, fmt.Errorf("%w: invalid reading #%d: %w", sdr.ErrStreamDesync, i, err)
		}
	}

	return &sdr.Sweep{
		StartFrequency: low,
		EndFrequency:   high,
		BinWidth:       step,
		NumSamples:     numSamples,
		Readings:       readings,
	}, nil
}

func (h handler) Device() string {
	return Device
}
