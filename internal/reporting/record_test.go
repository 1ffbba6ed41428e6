package reporting

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign(t *testing.T) {
	// md5 of the empty string
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", Sign("", "", ""))

	assert.Equal(t, Sign("secret", "50.0", "1"), Sign("secret", "50.0", "1"))
	assert.NotEqual(t, Sign("secret", "50.0", "1"), Sign("secret", "50.0", "2"))
	assert.NotEqual(t, Sign("secret", "50.0", "1"), Sign("other", "50.0", "1"))
}

func TestRecordVerify(t *testing.T) {
	rec := NewRecord(testStation, 1, reading(100e6, -12.5), "3.000", time.Unix(42, 0))
	assert.Equal(t, "-12.5", rec.Pwr)
	assert.Equal(t, "42", rec.Time)
	assert.True(t, rec.Verify("secret"))
	assert.False(t, rec.Verify("wrong"))

	rec.Pwr = "-12.0"
	assert.False(t, rec.Verify("secret"))
}

func TestRecordMarshalFields(t *testing.T) {
	rec := NewRecord(testStation, 1, reading(100e6, 50), "900.000", time.UnixMilli(42))

	payload, err := rec.Marshal()
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(payload, &fields))
	for key, value := range fields {
		assert.IsType(t, "", value, key)
	}

	for _, key := range []string{
		"stationid", "lat", "lng", "agf", "freq", "pwr", "overpct",
		"step", "gain", "module", "jobid", "ct", "time", "sign",
	} {
		assert.Contains(t, fields, key)
	}
	assert.Len(t, fields, 14)
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{50, "50.0"},
		{-12.5, "-12.5"},
		{0.1, "0.1"},
		{0, "0.0"},
		{1000, "1000.0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatFloat(tt.in))
	}
}

func TestUDPSender(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	addr := pc.LocalAddr().(*net.UDPAddr)
	sender := NewUDPSender("127.0.0.1", addr.Port)
	defer sender.Close()

	rec := NewRecord(testStation, 1, reading(100e6, 50), "900.000", time.UnixMilli(42))
	require.NoError(t, sender.Send(context.Background(), rec))

	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 2048)
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)

	var got Record
	require.NoError(t, json.Unmarshal(buf[:n], &got))
	assert.Equal(t, rec, got)
}

func TestSettingsChange(t *testing.T) {
	s := DefaultSettings()

	toggle, err := s.Change("print_all", "")
	require.NoError(t, err)
	assert.Equal(t, Toggle{Setting: PrintAll, Bool: true}, toggle)

	toggle, err = s.Change("HIT_DB", "12.5")
	require.NoError(t, err)
	assert.Equal(t, Toggle{Setting: HitDB, Number: 12.5}, toggle)

	_, err = s.Change("hit_db", "")
	assert.ErrorIs(t, err, ErrValueRequired)

	_, err = s.Change("hit_db", "loud")
	assert.Error(t, err)

	_, err = s.Change("volume", "1")
	assert.ErrorIs(t, err, ErrUnknownSetting)

	s.Apply(Toggle{Setting: AlertBandwidth, Number: 250})
	assert.Equal(t, 250.0, s.Value(AlertBandwidth))
}
