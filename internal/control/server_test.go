package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/radio-sentinel/internal/devices"
	"github.com/roman-kulish/radio-sentinel/internal/location"
	"github.com/roman-kulish/radio-sentinel/internal/reporting"
	"github.com/roman-kulish/radio-sentinel/internal/scanner"
	"github.com/roman-kulish/radio-sentinel/internal/sdr"
	"github.com/roman-kulish/radio-sentinel/internal/sdr/rtl"
	"github.com/roman-kulish/radio-sentinel/internal/sdr/sdrtest"
)

func TestMain(m *testing.M) {
	sdrtest.Main()
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type twoDongles struct{}

func (twoDongles) Count() int { return 2 }

func (twoDongles) Describe(index int) (string, string, error) {
	return "Generic RTL2832U OEM", "0000000" + string(rune('1'+index)), nil
}

type nopSender struct{}

func (nopSender) Send(context.Context, reporting.Record) error { return nil }

func newServer(t *testing.T) (*Server, *devices.Pool) {
	t.Helper()

	pool, err := devices.Enumerate(twoDongles{}, devices.WithAGF(1))
	require.NoError(t, err)

	loc, err := location.NewStatic("47.37", "8.54")
	require.NoError(t, err)

	scans := scanner.New(pool, loc, nopSender{},
		scanner.WithHandlerFactory(func(config *rtl.Config) (sdr.Handler, error) {
			h, err := rtl.New(rtl.Runtime, config)
			if err != nil {
				return nil, err
			}
			return sdrtest.Handler(h, sdrtest.Idle), nil
		}))
	t.Cleanup(scans.Shutdown)

	return New("127.0.0.1:0", pool, scans, loc), pool
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestListDevices(t *testing.T) {
	s, _ := newServer(t)

	rec := do(t, s, http.MethodGet, "/v1/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp devicesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.AGF)
	require.Len(t, resp.Devices, 2)
	assert.Equal(t, "00000002", resp.Devices[1].Serial)
	assert.Len(t, resp.Summary, 2)
	assert.Contains(t, resp.Summary[0], "Unoccupied")
}

func TestReserveDevice(t *testing.T) {
	s, pool := newServer(t)

	rec := do(t, s, http.MethodPost, "/v1/devices/1/reserve", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, pool.IsReserved(1))

	rec = do(t, s, http.MethodPost, "/v1/scans", `{"device": 1, "freqs": "200M:300M:15k"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, http.MethodDelete, "/v1/devices/1/reserve", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, pool.IsReserved(1))

	rec = do(t, s, http.MethodPost, "/v1/devices/9/reserve", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, http.MethodPost, "/v1/devices/x/reserve", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScans(t *testing.T) {
	s, pool := newServer(t)

	rec := do(t, s, http.MethodPost, "/v1/scans", `{"device": 0, "freqs": "200M:300M:15k"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var job scanner.JobInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, 0, job.Device)
	assert.Equal(t, "200000000:300000000:15k", job.Freqs)
	assert.Equal(t, scanner.DefaultGain, job.Gain)
	assert.True(t, pool.IsOccupied(0))

	rec = do(t, s, http.MethodGet, "/v1/scans", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var jobs []scanner.JobInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)

	rec = do(t, s, http.MethodDelete, "/v1/scans/0", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, pool.IsOccupied(0))

	rec = do(t, s, http.MethodDelete, "/v1/scans/0", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartScanValidation(t *testing.T) {
	s, pool := newServer(t)

	rec := do(t, s, http.MethodPost, "/v1/scans", `{"device": 0, "freqs": "200M:300M"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/v1/scans", `{"freqs": "200M:300M:15k"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/v1/scans", `{"device": 5, "freqs": "200M:300M:15k"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.False(t, pool.IsOccupied(0))
}

func TestSettings(t *testing.T) {
	s, _ := newServer(t)

	rec := do(t, s, http.MethodGet, "/v1/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var settings []setting
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	require.Len(t, settings, 6)
	assert.Equal(t, "print_all", settings[0].Name)
	assert.Equal(t, "bool", settings[0].Type)
	assert.Equal(t, "hit_db", settings[2].Name)
	assert.Equal(t, 9.0, settings[2].Value)

	rec = do(t, s, http.MethodPut, "/v1/settings/print_all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	assert.Equal(t, true, settings[0].Value)

	rec = do(t, s, http.MethodPut, "/v1/settings/hit_db", `{"value": "12"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	assert.Equal(t, 12.0, settings[2].Value)

	rec = do(t, s, http.MethodPut, "/v1/settings/hit_db", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPut, "/v1/settings/volume", `{"value": "11"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLocation(t *testing.T) {
	s, _ := newServer(t)

	rec := do(t, s, http.MethodGet, "/v1/location", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"lat": "47.37", "lng": "8.54", "known": true}`, rec.Body.String())
}
