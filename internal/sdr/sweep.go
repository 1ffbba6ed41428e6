package sdr

import (
	"errors"
	"math"
)

var (
	// ErrIrrelevantLine marks sampler output that carries no readings, e.g. banner or status lines
	ErrIrrelevantLine = errors.New("irrelevant line")

	// ErrDroppedSamples is returned when the sampler reports it lost samples; the device is unusable
	ErrDroppedSamples = errors.New("device dropped samples")

	// ErrStreamDesync is returned when a data line cannot be parsed; the stream can no longer be trusted
	ErrStreamDesync = errors.New("sampler stream out of sync")
)

// IsDeviceFailure reports whether err means the device must be taken out of service
func IsDeviceFailure(err error) bool {
	return errors.Is(err, ErrDroppedSamples) || errors.Is(err, ErrStreamDesync)
}

// Sweep is one line of sampler output: a run of power readings spaced
// BinWidth apart, starting at StartFrequency
type Sweep struct {
	StartFrequency float64   // StartFrequency is the frequency in Hz of the first reading
	EndFrequency   float64   // EndFrequency is the upper bound in Hz of the sweep
	BinWidth       float64   // Hz step/bin width
	NumSamples     int       // Number of samples used for this measurement
	Readings       []float64 // Readings are power levels in dB, ordered by frequency
}

// Frequency returns the absolute frequency in Hz of the i-th reading
func (s *Sweep) Frequency(i int) int64 {
	return int64(math.Round(s.StartFrequency + s.BinWidth*float64(i)))
}
