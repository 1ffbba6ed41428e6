package rtl

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/radio-sentinel/internal/sdr"
)

const (
	// DefaultInterval is the integration interval of one sweep line
	DefaultInterval = TimeDuration(5 * time.Second)

	// CropPercent is the share of each hop edge rtl_power discards
	CropPercent = 15
)

type TimeDuration time.Duration

func NewTimeDuration(d time.Duration) TimeDuration {
	return TimeDuration(d)
}

func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("rtl.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *TimeDuration) UnmarshalJSON(bytes []byte) error {
	var v string
	if err := json.Unmarshal(bytes, &v); err != nil {
		return err
	}

	duration, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("rtl.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d TimeDuration) Validate() error {
	duration := time.Duration(d)

	if duration < time.Second {
		return fmt.Errorf("rtl.TimeDuration: must be at least 1 second: %s given", duration)
	}

	return nil
}

// String renders the duration in the largest whole unit rtl_power understands
func (d TimeDuration) String() string {
	duration := time.Duration(d)
	if duration%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(duration/time.Hour))
	} else if duration%time.Minute == 0 {
		return fmt.Sprintf("%dm", int(duration/time.Minute))
	} else {
		return fmt.Sprintf("%ds", int(duration/time.Second))
	}
}

// Config is one `rtl_power` invocation for a scan job
// See `man rtl_power`:
// https://manpages.debian.org/bookworm/rtl-sdr/rtl_power.1.en.html
type Config struct {
	DeviceIndex int                // -d device_index
	Range       sdr.FrequencyRange // -f low:high:step, low and high already resolved to Hz
	Interval    TimeDuration       // -i integration_interval
	PPMError    int                // -p ppm_error
	Gain        float64            // -g tuner_gain in dB
}

func (c *Config) Validate() error {
	if c.DeviceIndex < 0 {
		return fmt.Errorf("rtl.Config: device index must not be negative: %d", c.DeviceIndex)
	}
	if c.Range.Low <= 0 {
		return fmt.Errorf("rtl.Config: frequency start must be positive: %d", c.Range.Low)
	}
	if c.Range.High <= c.Range.Low {
		return fmt.Errorf("rtl.Config: frequency end must be greater than start: %d <= %d", c.Range.High, c.Range.Low)
	}
	if _, err := c.Range.StepHz(); err != nil {
		return fmt.Errorf("rtl.Config: %w", err)
	}
	if err := c.Interval.Validate(); err != nil {
		return fmt.Errorf("rtl.Config: invalid interval: %w", err)
	}
	if c.Gain < 0 {
		return fmt.Errorf("rtl.Config: gain must not be negative: %0.1f", c.Gain)
	}

	return nil
}

// Args returns the command line arguments for `rtl_power`. Output goes to
// stdout, which is the default when no file name is given.
func (c *Config) Args() ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return []string{
		"-d", strconv.Itoa(c.DeviceIndex),
		"-f", c.Range.String(),
		"-i", c.Interval.String(),
		"-p", strconv.Itoa(c.PPMError),
		"-g", strconv.FormatFloat(c.Gain, 'f', -1, 64),
		"-c", fmt.Sprintf("%d%%", CropPercent),
	}, nil
}

func (c *Config) String() string {
	args, err := c.Args()
	if err != nil {
		return fmt.Sprintf("rtl.Config: failed to build args: %s", err)
	}
	return fmt.Sprintf("%s %s", Runtime, strings.Join(args, " "))
}
