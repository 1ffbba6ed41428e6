package rtl

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/roman-kulish/radio-sentinel/internal/sdr"
)

func testConfig(t *testing.T) *Config {
	t.Helper()

	freqs, err := sdr.ParseFrequencyRange("200M:300M:15k")
	if err != nil {
		t.Fatalf("Failed to parse range: %v", err)
	}

	return &Config{
		DeviceIndex: 1,
		Range:       freqs,
		Interval:    DefaultInterval,
		PPMError:    -3,
		Gain:        8.7,
	}
}

func TestConfig_Args(t *testing.T) {
	args, err := testConfig(t).Args()
	if err != nil {
		t.Fatalf("Failed to build args: %v", err)
	}

	want := []string{
		"-d", "1",
		"-f", "200000000:300000000:15k",
		"-i", "5s",
		"-p", "-3",
		"-g", "8.7",
		"-c", "15%",
	}
	if !slices.Equal(args, want) {
		t.Errorf("Args() = %v, want %v", args, want)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"negative device", func(c *Config) { c.DeviceIndex = -1 }},
		{"empty range", func(c *Config) { c.Range.High = c.Range.Low }},
		{"bad step", func(c *Config) { c.Range.Step = "fast" }},
		{"short interval", func(c *Config) { c.Interval = NewTimeDuration(500 * time.Millisecond) }},
		{"negative gain", func(c *Config) { c.Gain = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConfig(t)
			tt.modify(c)

			if err := c.Validate(); err == nil {
				t.Errorf("Validate() accepted invalid config")
			}
		})
	}
}

func TestTimeDuration_String(t *testing.T) {
	tests := map[time.Duration]string{
		5 * time.Second:  "5s",
		90 * time.Second: "90s",
		2 * time.Minute:  "2m",
		time.Hour:        "1h",
	}

	for d, want := range tests {
		if got := NewTimeDuration(d).String(); got != want {
			t.Errorf("TimeDuration(%s).String() = %q, want %q", d, got, want)
		}
	}
}

func TestHandler_Parse(t *testing.T) {
	h, err := New(Runtime, testConfig(t))
	if err != nil {
		t.Fatalf("Failed to create handler: %v", err)
	}

	sweep, err := h.Parse("2024-01-02, 10:11:12, 200000000, 200030000, 15000.00, 16, -10.5, -11.25,-9")
	if err != nil {
		t.Fatalf("Failed to parse line: %v", err)
	}

	if sweep.StartFrequency != 200_000_000 || sweep.EndFrequency != 200_030_000 {
		t.Errorf("unexpected range %v - %v", sweep.StartFrequency, sweep.EndFrequency)
	}
	if sweep.BinWidth != 15_000 || sweep.NumSamples != 16 {
		t.Errorf("unexpected bin width %v or samples %d", sweep.BinWidth, sweep.NumSamples)
	}
	if want := []float64{-10.5, -11.25, -9}; !slices.Equal(sweep.Readings, want) {
		t.Errorf("Readings = %v, want %v", sweep.Readings, want)
	}
	if got := sweep.Frequency(2); got != 200_030_000 {
		t.Errorf("Frequency(2) = %d, want 200030000", got)
	}
}

func TestHandler_ParseErrors(t *testing.T) {
	h, err := New(Runtime, testConfig(t))
	if err != nil {
		t.Fatalf("Failed to create handler: %v", err)
	}

	tests := []struct {
		line string
		want error
	}{
		{"Found 1 device(s):", sdr.ErrIrrelevantLine},
		{"Tuner gain set to 8.70 dB.", sdr.ErrIrrelevantLine},
		{"Error: dropped samples.", sdr.ErrDroppedSamples},
		{"2024-01-02, 10:11:12, 200000000", sdr.ErrStreamDesync},
		{"2024-01-02, 10:11:12, abc, 200030000, 15000.00, 16, -10.5", sdr.ErrStreamDesync},
		{"2024-01-02, 10:11:12, 200000000, 200030000, 15000.00, 16, -10.5, nan-ish", sdr.ErrStreamDesync},
	}

	for _, tt := range tests {
		if _, err := h.Parse(tt.line); !errors.Is(err, tt.want) {
			t.Errorf("Parse(%q) error = %v, want %v", tt.line, err, tt.want)
		}
	}
}
