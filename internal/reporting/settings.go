package reporting

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	PrintAll Setting = iota + 1
	PrintHits
	HitDB
	AlertOn
	AlertCenter
	AlertBandwidth

	DefaultHitDB          = 9.0
	DefaultAlertBandwidth = 5000.0
)

var (
	// ErrUnknownSetting is returned for setting names the reporter does not have
	ErrUnknownSetting = errors.New("unknown setting")

	// ErrValueRequired is returned when a non-boolean setting is changed without a value
	ErrValueRequired = errors.New("non-boolean setting requires a value")

	settingNames = map[Setting]string{
		PrintAll:       "print_all",
		PrintHits:      "print_hits",
		HitDB:          "hit_db",
		AlertOn:        "alert_on",
		AlertCenter:    "alert_center",
		AlertBandwidth: "alert_bw",
	}

	settingHelp = map[Setting]string{
		PrintAll:       "Print all readings",
		PrintHits:      "Print hits",
		HitDB:          "Power is required to be this high above the average (dB) to be considered a hit",
		AlertOn:        "Print an alert when there's a hit in a limited bandwidth around a specific frequency",
		AlertCenter:    "Center frequency (Hz) of the alert band",
		AlertBandwidth: "Half-width (Hz) of the alert band",
	}
)

// Setting names one reporter knob
type Setting int

// AllSettings returns every setting in display order
func AllSettings() []Setting {
	return []Setting{PrintAll, PrintHits, HitDB, AlertOn, AlertCenter, AlertBandwidth}
}

// ParseSetting resolves a setting by name
func ParseSetting(name string) (Setting, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for setting, n := range settingNames {
		if n == name {
			return setting, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSetting, name)
}

func (s Setting) String() string {
	if name, ok := settingNames[s]; ok {
		return name
	}
	return fmt.Sprintf("setting(%d)", int(s))
}

// Help returns a one-line description of the setting
func (s Setting) Help() string {
	return settingHelp[s]
}

// IsToggle reports whether the setting is boolean and flips when changed
func (s Setting) IsToggle() bool {
	return s == PrintAll || s == PrintHits || s == AlertOn
}

// Settings are the live reporter knobs
type Settings struct {
	PrintAll       bool    `json:"print_all"`
	PrintHits      bool    `json:"print_hits"`
	HitDB          float64 `json:"hit_db"`
	AlertOn        bool    `json:"alert_on"`
	AlertCenter    float64 `json:"alert_center"`
	AlertBandwidth float64 `json:"alert_bw"`
}

func DefaultSettings() Settings {
	return Settings{
		HitDB:          DefaultHitDB,
		AlertBandwidth: DefaultAlertBandwidth,
	}
}

// Apply overwrites the setting named by t
func (s *Settings) Apply(t Toggle) {
	switch t.Setting {
	case PrintAll:
		s.PrintAll = t.Bool
	case PrintHits:
		s.PrintHits = t.Bool
	case AlertOn:
		s.AlertOn = t.Bool
	case HitDB:
		s.HitDB = t.Number
	case AlertCenter:
		s.AlertCenter = t.Number
	case AlertBandwidth:
		s.AlertBandwidth = t.Number
	}
}

// Value returns the current value of the setting as bool or float64
func (s Settings) Value(setting Setting) any {
	switch setting {
	case PrintAll:
		return s.PrintAll
	case PrintHits:
		return s.PrintHits
	case AlertOn:
		return s.AlertOn
	case HitDB:
		return s.HitDB
	case AlertCenter:
		return s.AlertCenter
	case AlertBandwidth:
		return s.AlertBandwidth
	default:
		return nil
	}
}

// Change computes the Toggle that changes the named setting. Boolean settings
// flip and ignore arg; numeric settings require arg.
func (s Settings) Change(name, arg string) (Toggle, error) {
	setting, err := ParseSetting(name)
	if err != nil {
		return Toggle{}, err
	}

	if setting.IsToggle() {
		current, _ := s.Value(setting).(bool)
		return Toggle{Setting: setting, Bool: !current}, nil
	}

	arg = strings.TrimSpace(arg)
	if arg == "" {
		return Toggle{}, fmt.Errorf("%w: %s", ErrValueRequired, setting)
	}

	number, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return Toggle{}, fmt.Errorf("invalid value for %s: %w", setting, err)
	}

	return Toggle{Setting: setting, Number: number}, nil
}
