package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/bandlink/internal/db"
	"github.com/banshee-data/bandlink/internal/device"
	"github.com/banshee-data/bandlink/internal/framing"
	"github.com/banshee-data/bandlink/internal/httputil"
	"github.com/banshee-data/bandlink/internal/monitoring"
	"github.com/banshee-data/bandlink/internal/permission"
	"github.com/banshee-data/bandlink/internal/session"
	"github.com/banshee-data/bandlink/internal/store"
	"github.com/banshee-data/bandlink/internal/telemetry"
	"github.com/banshee-data/bandlink/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// sseKeepAlive is how often an idle stream sends a comment line.
const sseKeepAlive = 15 * time.Second

// DeviceRegistry is the paired device store behind /api/devices.
type DeviceRegistry interface {
	ListPairedDevices(ctx context.Context) ([]db.PairedDevice, error)
	DeletePairedDevice(ctx context.Context, portPath string) error
}

type Server struct {
	session *session.Manager
	perms   *permission.Policy
	devices DeviceRegistry
	decoder telemetry.Decoder
	framing framing.Strategy
}

// NewServer creates the HTTP API. devices may be nil when no registry is
// open; /api/devices then reports an empty list. cfg supplies the framing and
// decoding used by the debug parse page.
func NewServer(sess *session.Manager, perms *permission.Policy, devices DeviceRegistry, cfg device.Config) *Server {
	return &Server{
		session: sess,
		perms:   perms,
		devices: devices,
		decoder: cfg.Decoder,
		framing: cfg.Framing,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/reading", s.handleReading)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/stream", s.handleStream)
	mux.HandleFunc("/api/connect", s.handleConnect)
	mux.HandleFunc("/api/disconnect", s.handleDisconnect)
	mux.HandleFunc("/api/demo", s.handleDemo)
	mux.HandleFunc("/api/demo/start", s.handleDemoStart)
	mux.HandleFunc("/api/demo/stop", s.handleDemoStop)
	mux.HandleFunc("/api/demo/cadence", s.handleDemoCadence)
	mux.HandleFunc("/api/command", s.handleCommand)
	mux.HandleFunc("/api/permissions", s.handlePermissions)
	mux.HandleFunc("/api/devices", s.handleDevices)
	mux.HandleFunc("/api/version", s.handleVersion)
	return mux
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Status    store.Status         `json:"status"`
	LastError *string              `json:"last_error"`
	Mode      session.Mode         `json:"mode"`
	Demo      session.DemoProgress `json:"demo"`
}

func (s *Server) status() StatusResponse {
	snap := s.session.Snapshot()
	resp := StatusResponse{
		Status: snap.Status,
		Mode:   s.session.Mode(),
		Demo:   s.session.Demo(),
	}
	if snap.LastError != "" {
		resp.LastError = &snap.LastError
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, s.status())
}

func (s *Server) handleReading(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, s.session.Snapshot())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, s.session.Store().History())
}

// handleStream sends the current snapshot and then every change as
// Server-Sent Events until the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	st := s.session.Store()
	id, ch := st.Subscribe()
	defer st.Unsubscribe(id)

	if err := writeEvent(w, st.Snapshot()); err != nil {
		return
	}
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(w, snap); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, snap store.Snapshot) error {
	b, err := snap.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}

// handleConnect starts a connect attempt and returns 202 without waiting for
// it; progress is visible through /api/status and /api/stream.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}

	// the attempt outlives the request; Disconnect cancels it
	run, err := s.session.BeginConnect(context.Background())
	if errors.Is(err, device.ErrConnectInProgress) {
		httputil.Conflict(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if run == nil {
		httputil.WriteJSONOK(w, s.status())
		return
	}

	go func() {
		if err := run(); err != nil {
			monitoring.Logf("connect failed: %v", err)
		}
	}()
	httputil.WriteJSON(w, http.StatusAccepted, s.status())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	s.session.Disconnect()
	httputil.WriteJSONOK(w, s.status())
}

func (s *Server) handleDemo(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, s.session.Demo())
}

func (s *Server) handleDemoStart(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	s.session.StartDemo()
	httputil.WriteJSONOK(w, s.session.Demo())
}

func (s *Server) handleDemoStop(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	s.session.StopDemo()
	httputil.WriteJSONOK(w, s.session.Demo())
}

func (s *Server) handleDemoCadence(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	ms, err := strconv.Atoi(r.FormValue("interval_ms"))
	if err != nil || ms <= 0 {
		httputil.BadRequest(w, "interval_ms must be a positive integer")
		return
	}
	if err := s.session.SetDemoCadence(time.Duration(ms) * time.Millisecond); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, s.session.Demo())
}

// handleCommand writes the command form value to the band verbatim.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	command := r.FormValue("command")
	if command == "" {
		httputil.BadRequest(w, "missing command")
		return
	}

	if err := s.session.SendCommand(command); err != nil {
		if errors.Is(err, device.ErrNotConnected) {
			httputil.Conflict(w, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("failed to send command: %v", err))
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"sent": command})
}

func (s *Server) handlePermissions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, s.perms.List())
	case http.MethodPost:
		kind := device.Permission(strings.ToLower(strings.TrimSpace(r.FormValue("kind"))))
		granted, err := strconv.ParseBool(r.FormValue("granted"))
		if err != nil {
			httputil.BadRequest(w, "granted must be true or false")
			return
		}
		if err := s.perms.Set(kind, granted); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, s.perms.List())
	default:
		httputil.MethodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if s.devices == nil {
			httputil.WriteJSONOK(w, []db.PairedDevice{})
			return
		}
		devices, err := s.devices.ListPairedDevices(r.Context())
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, devices)
	case http.MethodDelete:
		path := r.URL.Query().Get("port_path")
		if path == "" {
			httputil.BadRequest(w, "missing port_path")
			return
		}
		if s.devices == nil {
			httputil.NotFound(w, "no device registry")
			return
		}
		if err := s.devices.DeletePairedDevice(r.Context(), path); err != nil {
			if errors.Is(err, db.ErrDeviceNotPaired) {
				httputil.NotFound(w, err.Error())
				return
			}
			httputil.InternalServerError(w, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		httputil.MethodNotAllowed(w, http.MethodGet, http.MethodDelete)
	}
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, version.Info())
}
