package reporting

import (
	"github.com/roman-kulish/radio-sentinel/internal/location"
)

// Message is anything the reporter consumes: Data, Toggle or Stop
type Message interface {
	message()
}

// Data is a single power reading produced by a scan worker
type Data struct {
	Frequency   int64        // Absolute frequency in Hz
	Power       float64      // Power level in dB
	Step        float64      // Bin width in Hz
	Gain        float64      // Tuner gain in dB
	PPM         int          // Tuning correction of the device
	Device      int          // Device index
	Location    location.Fix // Location at capture time
	JobID       string       // Scan job identifier
	CaptureTime int64        // Capture time in Unix milliseconds, shared by one sampler line
}

// Toggle overwrites one setting. Bool carries the value of boolean settings,
// Number the value of numeric ones.
type Toggle struct {
	Setting Setting
	Bool    bool
	Number  float64
}

// Stop ends the reporter loop
type Stop struct{}

func (Data) message()   {}
func (Toggle) message() {}
func (Stop) message()   {}
