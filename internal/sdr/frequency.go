package sdr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

var (
	// ErrBadFrequencySpec is returned for frequency specifications not in low:high:step form
	ErrBadFrequencySpec = errors.New("bad frequency specification")
)

// FrequencyRange is a scan range in rtl_power notation. Low and High are
// resolved to Hz; Step is passed to the sampler exactly as given.
type FrequencyRange struct {
	Low  int64  `json:"low"`
	High int64  `json:"high"`
	Step string `json:"step"`
}

// ParseFrequencyRange parses "low:high:step", e.g. "200M:300M:15k". Low and
// high accept the M (x10^6) and k (x10^3) suffixes.
func ParseFrequencyRange(spec string) (FrequencyRange, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return FrequencyRange{}, fmt.Errorf("%w: must include a frequency specification", ErrBadFrequencySpec)
	}

	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return FrequencyRange{}, fmt.Errorf("%w: %q", ErrBadFrequencySpec, spec)
	}

	low, err := ParseFrequency(parts[0])
	if err != nil {
		return FrequencyRange{}, fmt.Errorf("%w: low frequency: %w", ErrBadFrequencySpec, err)
	}

	high, err := ParseFrequency(parts[1])
	if err != nil {
		return FrequencyRange{}, fmt.Errorf("%w: high frequency: %w", ErrBadFrequencySpec, err)
	}

	if low <= 0 || high <= low {
		return FrequencyRange{}, fmt.Errorf("%w: range %d:%d is empty", ErrBadFrequencySpec, low, high)
	}

	r := FrequencyRange{Low: low, High: high, Step: strings.TrimSpace(parts[2])}
	if step, err := r.StepHz(); err != nil || step <= 0 {
		return FrequencyRange{}, fmt.Errorf("%w: invalid step %q", ErrBadFrequencySpec, r.Step)
	}

	return r, nil
}

// ParseFrequency converts a frequency with an optional M or k suffix to Hz.
// Fractions are truncated, e.g. "100.5k" is 100500.
func ParseFrequency(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty frequency")
	}

	var multiplier float64
	switch s[len(s)-1] {
	case 'M':
		multiplier = 1e6
	case 'k':
		multiplier = 1e3
	default:
		return strconv.ParseInt(s, 10, 64)
	}

	v, err := strconv.ParseFloat(s[:len(s)-1], 64)
	if err != nil {
		return 0, err
	}
	return int64(v * multiplier), nil
}

// StepHz resolves the step to Hz
func (r FrequencyRange) StepHz() (int64, error) {
	return ParseFrequency(r.Step)
}

// String returns the range in the form passed to rtl_power's -f flag
func (r FrequencyRange) String() string {
	return fmt.Sprintf("%d:%d:%s", r.Low, r.High, r.Step)
}

// Display returns a human-readable form, e.g. "200 MHz - 300 MHz @ 15 kHz"
func (r FrequencyRange) Display() string {
	step, err := r.StepHz()
	if err != nil {
		return r.String()
	}

	return fmt.Sprintf("%s - %s @ %s",
		humanize.SIWithDigits(float64(r.Low), 3, "Hz"),
		humanize.SIWithDigits(float64(r.High), 3, "Hz"),
		humanize.SIWithDigits(float64(step), 3, "Hz"))
}
