// Package control exposes the scanner over HTTP/JSON: device listing and
// reservation, starting and stopping scans, reporter settings and the
// current location.
package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roman-kulish/radio-sentinel/internal/devices"
	"github.com/roman-kulish/radio-sentinel/internal/location"
	"github.com/roman-kulish/radio-sentinel/internal/reporting"
	"github.com/roman-kulish/radio-sentinel/internal/scanner"
	"github.com/roman-kulish/radio-sentinel/internal/sdr"
)

const (
	readHeaderTimeout = 5 * time.Second
)

// WithLogger sets the logger for the server and its request log
func WithLogger(logger *slog.Logger) func(*Server) {
	return func(s *Server) {
		s.logger = logger.With(slog.String("component", "control"))
	}
}

// Server is the HTTP control surface
type Server struct {
	pool     *devices.Pool
	scans    *scanner.Controller
	location location.Provider

	engine *gin.Engine
	server *http.Server
	logger *slog.Logger
}

// New creates a Server listening on addr
func New(addr string, pool *devices.Pool, scans *scanner.Controller, loc location.Provider, options ...func(*Server)) *Server {
	s := Server{
		pool:     pool,
		scans:    scans,
		location: loc,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.routes()

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return &s
}

func (s *Server) routes() {
	v1 := s.engine.Group("/v1")

	v1.GET("/devices", s.listDevices)
	v1.POST("/devices/:index/reserve", s.reserveDevice)
	v1.DELETE("/devices/:index/reserve", s.unreserveDevice)

	v1.GET("/scans", s.listScans)
	v1.POST("/scans", s.startScan)
	v1.DELETE("/scans/:device", s.stopScan)

	v1.GET("/settings", s.listSettings)
	v1.PUT("/settings/:name", s.changeSetting)

	v1.GET("/location", s.currentLocation)
}

// Handler returns the HTTP handler serving the API
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves until Shutdown is called
func (s *Server) ListenAndServe() error {
	s.logger.Info("control API listening", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control API: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Debug("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("took", time.Since(start)))
	}
}

type devicesResponse struct {
	AGF     int              `json:"agf"`
	Devices []devices.Device `json:"devices"`
	Summary []string         `json:"summary"`
}

func (s *Server) listDevices(c *gin.Context) {
	c.JSON(http.StatusOK, devicesResponse{
		AGF:     s.pool.AGF(),
		Devices: s.pool.Devices(),
		Summary: s.pool.Describe(),
	})
}

func (s *Server) reserveDevice(c *gin.Context) {
	index, ok := intParam(c, "index")
	if !ok {
		return
	}

	if !s.pool.Reserve(index) {
		abort(c, http.StatusConflict, fmt.Errorf("device %d cannot be reserved", index))
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) unreserveDevice(c *gin.Context) {
	index, ok := intParam(c, "index")
	if !ok {
		return
	}

	s.pool.Unreserve(index)
	c.Status(http.StatusNoContent)
}

func (s *Server) listScans(c *gin.Context) {
	c.JSON(http.StatusOK, s.scans.Jobs())
}

type startScanRequest struct {
	Device *int   `json:"device" binding:"required,min=0"`
	Freqs  string `json:"freqs" binding:"required"`
	Remote bool   `json:"remote"`
}

func (s *Server) startScan(c *gin.Context) {
	var req startScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	job, err := s.scans.Start(c.Request.Context(), *req.Device, req.Freqs, scanner.JobOptions{Remote: req.Remote})
	switch {
	case errors.Is(err, sdr.ErrBadFrequencySpec):
		abort(c, http.StatusBadRequest, err)
	case errors.Is(err, scanner.ErrDeviceUnavailable):
		abort(c, http.StatusConflict, err)
	case errors.Is(err, scanner.ErrShutdown):
		abort(c, http.StatusServiceUnavailable, err)
	case err != nil:
		abort(c, http.StatusInternalServerError, err)
	default:
		c.JSON(http.StatusCreated, job.Info())
	}
}

func (s *Server) stopScan(c *gin.Context) {
	device, ok := intParam(c, "device")
	if !ok {
		return
	}

	if err := s.scans.Stop(device); err != nil {
		if errors.Is(err, scanner.ErrNoJob) {
			abort(c, http.StatusNotFound, err)
			return
		}
		abort(c, http.StatusInternalServerError, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type setting struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
	Type  string `json:"type"`
	Help  string `json:"help"`
}

func (s *Server) listSettings(c *gin.Context) {
	c.JSON(http.StatusOK, describeSettings(s.scans.Settings()))
}

type changeSettingRequest struct {
	Value string `json:"value"`
}

func (s *Server) changeSetting(c *gin.Context) {
	var req changeSettingRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}
	}

	settings, err := s.scans.ChangeSetting(c.Param("name"), req.Value)
	switch {
	case errors.Is(err, reporting.ErrUnknownSetting):
		abort(c, http.StatusNotFound, err)
	case err != nil:
		abort(c, http.StatusBadRequest, err)
	default:
		c.JSON(http.StatusOK, describeSettings(settings))
	}
}

type locationResponse struct {
	Lat   string `json:"lat"`
	Lng   string `json:"lng"`
	Known bool   `json:"known"`
}

func (s *Server) currentLocation(c *gin.Context) {
	fix := s.location.Current()
	c.JSON(http.StatusOK, locationResponse{Lat: fix.Lat, Lng: fix.Lng, Known: fix.Known()})
}

func describeSettings(settings reporting.Settings) []setting {
	all := reporting.AllSettings()

	out := make([]setting, 0, len(all))
	for _, name := range all {
		kind := "float"
		if name.IsToggle() {
			kind = "bool"
		}
		out = append(out, setting{
			Name:  name.String(),
			Value: settings.Value(name),
			Type:  kind,
			Help:  name.Help(),
		})
	}
	return out
}

func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v < 0 {
		abort(c, http.StatusBadRequest, fmt.Errorf("invalid %s %q", name, c.Param(name)))
		return 0, false
	}
	return v, true
}

func abort(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
