package devices

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

var (
	// ErrNoDevices is returned by Enumerate when no hardware device is attached
	ErrNoDevices = errors.New("found no usable devices")
)

// Enumerator discovers locally attached SDR hardware
type Enumerator interface {
	Count() int
	Describe(index int) (name, serial string, err error)
}

// WithLogger sets the logger for the pool
func WithLogger(logger *slog.Logger) func(p *Pool) {
	return func(p *Pool) {
		p.logger = logger.With(slog.String("component", "devices"))
	}
}

// WithAGF sets the antenna/gain-filter tag reported with every telemetry record
func WithAGF(agf int) func(p *Pool) {
	return func(p *Pool) {
		p.agf = agf
	}
}

// WithPPM sets the per-device tuning correction, keyed by device index
func WithPPM(ppm map[int]int) func(p *Pool) {
	return func(p *Pool) {
		p.ppm = maps.Clone(ppm)
	}
}

// Pool tracks SDR devices and their exclusive occupancy. All state transitions
// are serialized by a single mutex, so concurrent callers racing for the same
// device can never both win.
type Pool struct {
	mu      sync.RWMutex
	devices map[int]*Device

	agf    int
	ppm    map[int]int
	logger *slog.Logger
	now    func() time.Time
}

// New creates an empty pool. Devices are added by Enumerate or synthesized by
// Occupy for pseudo jobs.
func New(options ...func(p *Pool)) *Pool {
	p := Pool{
		devices: make(map[int]*Device),
		ppm:     make(map[int]int),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}

	for _, option := range options {
		option(&p)
	}

	return &p
}

// Enumerate discovers all hardware devices and returns a pool holding them.
// Zero devices is reported as ErrNoDevices, which callers treat as fatal.
func Enumerate(e Enumerator, options ...func(p *Pool)) (*Pool, error) {
	p := New(options...)

	count := e.Count()
	if count <= 0 {
		return nil, ErrNoDevices
	}

	for index := 0; index < count; index++ {
		name, serial, err := e.Describe(index)
		if err != nil {
			p.logger.Warn(fmt.Sprintf("reading device strings: %s", err.Error()), slog.Int("device", index))
		}

		dev := Device{
			Index:  index,
			Name:   fmt.Sprintf("%d %s %s", index, name, serial),
			Serial: serial,
			PPM:    p.ppm[index],
			Usable: true,
		}
		p.devices[index] = &dev

		p.logger.Info("found device", slog.String("name", dev.Name), slog.Int("ppm", dev.PPM))
	}

	return p, nil
}

// AGF returns the antenna/gain-filter tag
func (p *Pool) AGF() int {
	return p.agf
}

// IsKnown reports whether the device exists in the pool
func (p *Pool) IsKnown(index int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok := p.devices[index]
	return ok
}

// IsOccupied reports whether the device has any occupant, including a
// reservation or the out-of-commission marker
func (p *Pool) IsOccupied(index int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	dev, ok := p.devices[index]
	return ok && dev.Occupant != nil
}

// Occupy records a job on the device. It fails without side effects when the
// device is unknown (and synthesis is not allowed), disabled, or already
// occupied.
func (p *Pool) Occupy(index int, module, jobID string, allowSynthetic bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	dev, ok := p.devices[index]
	if !ok {
		if !allowSynthetic {
			return false
		}

		dev = &Device{
			Index:  index,
			Name:   fmt.Sprintf("%d Pseudo device", index),
			Usable: true,
			Pseudo: true,
		}
		p.devices[index] = dev
	}

	if dev.Occupant != nil || !dev.Usable {
		return false
	}

	dev.Occupant = &Occupant{
		Kind:   OccupantJob,
		Module: module,
		JobID:  jobID,
		Since:  p.now(),
	}
	return true
}

// Release clears the device occupancy. Releasing a free or unknown device is a
// no-op; a disabled device keeps its out-of-commission marker.
func (p *Pool) Release(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	dev, ok := p.devices[index]
	if !ok || !dev.Usable {
		return
	}

	dev.Occupant = nil
	dev.Reserved = false
}

// Disable takes a device permanently out of service
func (p *Pool) Disable(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	dev, ok := p.devices[index]
	if !ok {
		return
	}

	dev.Usable = false
	dev.Reserved = false
	dev.Occupant = &Occupant{
		Kind:  OccupantOutOfCommission,
		Since: p.now(),
	}

	p.logger.Warn("device removed from service", slog.Int("device", index))
}

// Reserve places an operator hold on the device. The hold shares the
// occupancy slot, so it fails on a device that is busy or disabled.
func (p *Pool) Reserve(index int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	dev, ok := p.devices[index]
	if !ok || !dev.Usable {
		return false
	}
	if dev.Reserved {
		return true
	}
	if dev.Occupant != nil {
		return false
	}

	dev.Reserved = true
	dev.Occupant = &Occupant{
		Kind:  OccupantReserved,
		Since: p.now(),
	}
	return true
}

// Unreserve lifts an operator hold. Devices occupied by a job are untouched.
func (p *Pool) Unreserve(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	dev, ok := p.devices[index]
	if !ok || !dev.Reserved {
		return
	}

	dev.Reserved = false
	dev.Occupant = nil
}

// IsReserved reports whether the device is held by an operator
func (p *Pool) IsReserved(index int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	dev, ok := p.devices[index]
	return ok && dev.Reserved
}

// PPM returns the tuning correction of the device
func (p *Pool) PPM(index int) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if dev, ok := p.devices[index]; ok {
		return dev.PPM
	}
	return p.ppm[index]
}

// Devices returns a snapshot of all devices ordered by index
func (p *Pool) Devices() []Device {
	p.mu.RLock()
	defer p.mu.RUnlock()

	indexes := slices.Sorted(maps.Keys(p.devices))

	devices := make([]Device, 0, len(indexes))
	for _, index := range indexes {
		devices = append(devices, p.devices[index].clone())
	}
	return devices
}

// Describe returns one display line per device
func (p *Pool) Describe() []string {
	devices := p.Devices()

	lines := make([]string, 0, len(devices))
	for _, dev := range devices {
		if dev.Occupant == nil {
			lines = append(lines, fmt.Sprintf("%s - Unoccupied", dev.Name))
			continue
		}

		lines = append(lines, fmt.Sprintf("%s - %s (%s)", dev.Name, dev.Occupant, humanize.Time(dev.Occupant.Since)))
	}
	return lines
}
