package devices

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnumerator struct {
	names   []string
	serials []string
	err     error
}

func (f fakeEnumerator) Count() int {
	return len(f.names)
}

func (f fakeEnumerator) Describe(index int) (string, string, error) {
	return f.names[index], f.serials[index], f.err
}

func newTestPool(t *testing.T) *Pool {
	t.Helper()

	p, err := Enumerate(fakeEnumerator{
		names:   []string{"Generic RTL2832U", "Generic RTL2832U"},
		serials: []string{"00000001", "00000002"},
	}, WithPPM(map[int]int{1: 42}), WithAGF(3))
	require.NoError(t, err)
	return p
}

func TestEnumerate(t *testing.T) {
	p := newTestPool(t)

	devices := p.Devices()
	require.Len(t, devices, 2)
	assert.Equal(t, "0 Generic RTL2832U 00000001", devices[0].Name)
	assert.Equal(t, "00000002", devices[1].Serial)
	assert.Equal(t, 0, p.PPM(0))
	assert.Equal(t, 42, p.PPM(1))
	assert.Equal(t, 3, p.AGF())
	assert.True(t, p.IsKnown(1))
	assert.False(t, p.IsKnown(2))
}

func TestEnumerate_NoDevices(t *testing.T) {
	_, err := Enumerate(fakeEnumerator{})
	require.ErrorIs(t, err, ErrNoDevices)
}

func TestEnumerate_DescribeErrorKeepsDevice(t *testing.T) {
	p, err := Enumerate(fakeEnumerator{
		names:   []string{""},
		serials: []string{""},
		err:     errors.New("usb strings unavailable"),
	})
	require.NoError(t, err)
	assert.True(t, p.IsKnown(0))
}

func TestOccupyRelease(t *testing.T) {
	p := newTestPool(t)

	require.True(t, p.Occupy(0, "scanner", "job-1", false))
	assert.True(t, p.IsOccupied(0))
	assert.False(t, p.Occupy(0, "scanner", "job-2", false), "second occupant must be rejected")

	p.Release(0)
	assert.False(t, p.IsOccupied(0))
	p.Release(0) // idempotent
	assert.False(t, p.IsOccupied(0))

	require.True(t, p.Occupy(0, "scanner", "job-3", false))
}

func TestOccupy_Unknown(t *testing.T) {
	p := newTestPool(t)

	assert.False(t, p.Occupy(7, "scanner", "job", false))
	assert.False(t, p.IsKnown(7))

	require.True(t, p.Occupy(7, "scanner", "job", true))
	assert.True(t, p.IsKnown(7))

	devices := p.Devices()
	pseudo := devices[len(devices)-1]
	assert.Equal(t, "7 Pseudo device", pseudo.Name)
	assert.True(t, pseudo.Pseudo)
}

func TestOccupy_Concurrent(t *testing.T) {
	p := newTestPool(t)

	const callers = 64

	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if p.Occupy(1, "scanner", "job", false) {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
}

func TestDisable(t *testing.T) {
	p := newTestPool(t)

	require.True(t, p.Occupy(0, "scanner", "job-1", false))
	p.Disable(0)

	assert.True(t, p.IsOccupied(0))
	p.Release(0)
	assert.True(t, p.IsOccupied(0), "release must not revive a disabled device")
	assert.False(t, p.Occupy(0, "scanner", "job-2", false))
	assert.False(t, p.Reserve(0))

	dev := p.Devices()[0]
	assert.False(t, dev.Usable)
	require.NotNil(t, dev.Occupant)
	assert.Equal(t, OccupantOutOfCommission, dev.Occupant.Kind)
}

func TestReserve(t *testing.T) {
	p := newTestPool(t)

	require.True(t, p.Reserve(0))
	assert.True(t, p.IsReserved(0))
	assert.True(t, p.IsOccupied(0))
	assert.False(t, p.Occupy(0, "scanner", "job", false))

	p.Unreserve(0)
	assert.False(t, p.IsReserved(0))
	assert.False(t, p.IsOccupied(0))

	require.True(t, p.Occupy(0, "scanner", "job", false))
	assert.False(t, p.Reserve(0))
	p.Unreserve(0)
	assert.True(t, p.IsOccupied(0), "unreserve must not drop a running job")
}

func TestDescribe(t *testing.T) {
	p := newTestPool(t)
	require.True(t, p.Occupy(1, "scanner", "abc", false))

	lines := p.Describe()
	require.Len(t, lines, 2)
	assert.Equal(t, "0 Generic RTL2832U 00000001 - Unoccupied", lines[0])
	assert.Contains(t, lines[1], "scanner job abc")
	assert.Contains(t, lines[1], "now")
}

func TestDevicesSnapshot(t *testing.T) {
	p := newTestPool(t)
	require.True(t, p.Occupy(0, "scanner", "abc", false))

	snapshot := p.Devices()
	snapshot[0].Occupant.JobID = "mutated"

	assert.Equal(t, "abc", p.Devices()[0].Occupant.JobID)
}
