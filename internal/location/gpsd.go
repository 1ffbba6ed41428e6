package location

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/stratoberry/go-gpsd"
)

const (
	// DefaultGpsdAddress is where gpsd listens by default
	DefaultGpsdAddress = gpsd.DefaultAddress

	gpsdFixBuffer = 16
)

var (
	// ErrSourceExhausted is returned when gpsd closes the report stream
	ErrSourceExhausted = errors.New("gpsd: report stream exhausted")
)

// gpsdWatch is one watch session and the fixes its TPV filter has delivered
type gpsdWatch struct {
	session   *gpsd.Session
	fixes     chan Fix
	exhausted chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

func (w *gpsdWatch) deliver(report interface{}) {
	tpv, ok := report.(*gpsd.TPVReport)
	if !ok {
		return
	}

	select {
	case w.fixes <- tpvFix(tpv):
	case <-w.closed:
	}
}

func (w *gpsdWatch) close() {
	w.closeOnce.Do(func() {
		close(w.closed)
		w.session.Close()
	})
}

// Gpsd reads TPV reports from a gpsd daemon
type Gpsd struct {
	address string

	mu    sync.Mutex
	watch *gpsdWatch
}

// NewGpsd creates a gpsd source. The connection is established on first use
// and re-established after the report stream ends.
func NewGpsd(address string) *Gpsd {
	if address == "" {
		address = DefaultGpsdAddress
	}
	return &Gpsd{address: address}
}

// Next returns the position of the next TPV report. Reports without a 2D or
// 3D fix yield the NaN sentinel.
func (g *Gpsd) Next(ctx context.Context) (Fix, error) {
	if err := ctx.Err(); err != nil {
		return Fix{}, err
	}

	w, err := g.session()
	if err != nil {
		return Fix{}, err
	}

	select {
	case fix := <-w.fixes:
		return fix, nil

	case <-w.exhausted:
		// fixes delivered before the stream ended come first
		select {
		case fix := <-w.fixes:
			return fix, nil
		default:
		}
		g.drop(w)
		return Fix{}, ErrSourceExhausted

	case <-ctx.Done():
		return Fix{}, ctx.Err()
	}
}

// Close drops the gpsd connection
func (g *Gpsd) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.watch != nil {
		g.watch.close()
		g.watch = nil
	}
	return nil
}

func (g *Gpsd) session() (*gpsdWatch, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.watch != nil {
		return g.watch, nil
	}

	session, err := gpsd.Dial(g.address)
	if err != nil {
		return nil, fmt.Errorf("gpsd: connecting to %s: %w", g.address, err)
	}

	w := &gpsdWatch{
		session:   session,
		fixes:     make(chan Fix, gpsdFixBuffer),
		exhausted: make(chan struct{}),
		closed:    make(chan struct{}),
	}
	session.AddFilter("TPV", w.deliver)

	done := session.Watch()
	go func() {
		<-done
		close(w.exhausted)
	}()

	g.watch = w
	return g.watch, nil
}

func (g *Gpsd) drop(w *gpsdWatch) {
	g.mu.Lock()
	defer g.mu.Unlock()

	w.close()
	if g.watch == w {
		g.watch = nil
	}
}

func tpvFix(tpv *gpsd.TPVReport) Fix {
	if tpv.Mode <= gpsd.NoFix {
		return Fix{Lat: "NaN", Lng: "NaN"}
	}

	return Fix{
		Lat: strconv.FormatFloat(tpv.Lat, 'f', -1, 64),
		Lng: strconv.FormatFloat(tpv.Lon, 'f', -1, 64),
	}
}
