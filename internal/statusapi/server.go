// Package statusapi exposes the telemetry coordinator over a local HTTP API.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/srg/fitlink/internal/chart"
	"github.com/srg/fitlink/internal/device"
	"github.com/srg/fitlink/internal/insights"
	"github.com/srg/fitlink/internal/planapi"
	"github.com/srg/fitlink/internal/telemetry"
)

const (
	DefaultAddr     = "127.0.0.1:8787"
	shutdownTimeout = 5 * time.Second
	maxBodyBytes    = 1 << 16
)

// Controller is the coordinator surface served by the API.
type Controller interface {
	Status() telemetry.Status
	Metrics() telemetry.CollectedMetrics
	Battery() (uint8, bool)
	Identity() (device.Identity, bool)
	State() device.State
	Subscriptions() []string
	ResolutionErrors() []error
	Selector() device.ServiceSelector
	SetSelector(device.ServiceSelector) error
	OverrideDevice(label string)
	RequestConnect() bool
	RequestGeneratePlan(*telemetry.Profile) bool
	Disconnect() error
}

var _ Controller = (*telemetry.Coordinator)(nil)

// DeviceInfo is the body of GET /api/device.
type DeviceInfo struct {
	Connected     bool             `json:"connected"`
	State         string           `json:"state"`
	Identity      *device.Identity `json:"identity"`
	Subscriptions []string         `json:"subscriptions"`
	Battery       *uint8           `json:"battery"`
	Warnings      []string         `json:"warnings,omitempty"`
}

// StatusInfo is the body of GET /api/status.
type StatusInfo struct {
	telemetry.Status
	State string `json:"state"`
}

type labelRequest struct {
	Label string `json:"label"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type queuedResponse struct {
	Queued bool `json:"queued"`
}

// Server serves the API routes.
type Server struct {
	ctrl   Controller
	logger *logrus.Logger
	router *mux.Router
	seed   int
}

// New builds the router. chartSeed is used when a chart request has no seed.
func New(ctrl Controller, logger *logrus.Logger, chartSeed int) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{ctrl: ctrl, logger: logger, seed: chartSeed}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestLogger)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, "OK")
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	api.HandleFunc("/device", s.handleDevice).Methods(http.MethodGet)
	api.HandleFunc("/device/label", s.handleDeviceLabel).Methods(http.MethodPut)
	api.HandleFunc("/selector", s.handleGetSelector).Methods(http.MethodGet)
	api.HandleFunc("/selector", s.handlePutSelector).Methods(http.MethodPut)
	api.HandleFunc("/connect", s.handleConnect).Methods(http.MethodPost)
	api.HandleFunc("/disconnect", s.handleDisconnect).Methods(http.MethodPost)
	api.HandleFunc("/generate-plan", s.handleGeneratePlan).Methods(http.MethodPost)
	api.HandleFunc("/insights", s.handleInsights).Methods(http.MethodGet)
	api.HandleFunc("/chart", s.handleChartData).Methods(http.MethodGet)

	r.HandleFunc("/chart", s.handleChartPage).Methods(http.MethodGet)
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.WithField("addr", ln.Addr().String()).Info("Status API listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status API shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(planapi.RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(planapi.RequestIDHeader, reqID)

		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": reqID,
			"duration":   time.Since(start),
		}).Debug("Handled API request")
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusInfo{Status: s.ctrl.Status(), State: s.ctrl.State().String()})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Metrics())
}

func (s *Server) handleDevice(w http.ResponseWriter, _ *http.Request) {
	info := DeviceInfo{
		State:         s.ctrl.State().String(),
		Subscriptions: s.ctrl.Subscriptions(),
	}
	if id, ok := s.ctrl.Identity(); ok {
		info.Identity = &id
		info.Connected = s.ctrl.State() == device.Subscribed
	}
	if level, ok := s.ctrl.Battery(); ok {
		info.Battery = &level
	}
	for _, err := range s.ctrl.ResolutionErrors() {
		info.Warnings = append(info.Warnings, err.Error())
	}
	if info.Subscriptions == nil {
		info.Subscriptions = []string{}
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeviceLabel(w http.ResponseWriter, r *http.Request) {
	var req labelRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.ctrl.OverrideDevice(req.Label)
	writeJSON(w, http.StatusOK, s.ctrl.Metrics())
}

func (s *Server) handleGetSelector(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Selector())
}

func (s *Server) handlePutSelector(w http.ResponseWriter, r *http.Request) {
	var sel device.ServiceSelector
	if err := decodeBody(r, &sel, false); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.ctrl.SetSelector(sel); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Selector())
}

func (s *Server) handleConnect(w http.ResponseWriter, _ *http.Request) {
	if !s.ctrl.RequestConnect() {
		writeError(w, http.StatusConflict, errors.New("connect already pending"))
		return
	}
	writeJSON(w, http.StatusAccepted, queuedResponse{Queued: true})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	if err := s.ctrl.Disconnect(); err != nil {
		s.logger.WithField("error", err).Warn("Disconnect reported errors")
	}
	writeJSON(w, http.StatusOK, StatusInfo{Status: s.ctrl.Status(), State: s.ctrl.State().String()})
}

func (s *Server) handleGeneratePlan(w http.ResponseWriter, r *http.Request) {
	var profile telemetry.Profile
	if err := decodeBody(r, &profile, true); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !s.ctrl.RequestGeneratePlan(&profile) {
		writeError(w, http.StatusConflict, errors.New("plan generation already pending"))
		return
	}
	writeJSON(w, http.StatusAccepted, queuedResponse{Queued: true})
}

func (s *Server) handleInsights(w http.ResponseWriter, _ *http.Request) {
	m := s.ctrl.Metrics()
	writeJSON(w, http.StatusOK, insights.For(m.HeartRate, m.Steps))
}

func (s *Server) handleChartData(w http.ResponseWriter, r *http.Request) {
	series, err := s.series(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleChartPage(w http.ResponseWriter, r *http.Request) {
	series, err := s.series(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := series.Render(w, "Activity tracker"); err != nil {
		s.logger.WithField("error", err).Error("Failed to render chart")
	}
}

func (s *Server) series(r *http.Request) (chart.Series, error) {
	q := r.URL.Query()
	view, err := chart.ParseView(q.Get("view"))
	if err != nil {
		return chart.Series{}, err
	}
	seed := s.seed
	if raw := q.Get("seed"); raw != "" {
		if seed, err = strconv.Atoi(raw); err != nil {
			return chart.Series{}, fmt.Errorf("invalid seed %q", raw)
		}
	}
	return chart.Generate(view, seed), nil
}

// decodeBody decodes a JSON body into v. An empty body is accepted when
// optional is set.
func decodeBody(r *http.Request, v interface{}, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
