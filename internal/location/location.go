package location

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrStaticLocationUndefined is returned when GPS is off and no static location is configured
	ErrStaticLocationUndefined = errors.New("GPS off, but static location not defined")
)

// Provider supplies the current best-known geolocation fix
type Provider interface {
	Current() Fix
}

// Fix is a geolocation fix. Coordinates are kept as decimal strings, the same
// way they travel in telemetry, so that "unknown" sentinels survive as-is.
type Fix struct {
	Lat string `json:"lat"` // Latitude in decimal degrees
	Lng string `json:"lng"` // Longitude in decimal degrees
}

// Known reports whether the fix carries a usable position. Empty or
// unparsable coordinates, NaN, and the 0.0/0.0 sentinel all mean "no fix yet".
func (f Fix) Known() bool {
	lat, err := strconv.ParseFloat(strings.TrimSpace(f.Lat), 64)
	if err != nil || math.IsNaN(lat) {
		return false
	}

	lng, err := strconv.ParseFloat(strings.TrimSpace(f.Lng), 64)
	if err != nil || math.IsNaN(lng) {
		return false
	}

	return lat != 0 || lng != 0
}

// Static always returns the configured location
type Static struct {
	fix Fix
}

// NewStatic creates a static location provider
func NewStatic(lat, lng string) (*Static, error) {
	lat, lng = strings.TrimSpace(lat), strings.TrimSpace(lng)
	if lat == "" || lng == "" {
		return nil, ErrStaticLocationUndefined
	}

	return &Static{Fix{Lat: lat, Lng: lng}}, nil
}

func (s *Static) Current() Fix {
	return s.fix
}
