package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/geofuse/internal/config"
	"github.com/banshee-data/geofuse/internal/fusion"
	"github.com/banshee-data/geofuse/internal/store"
	"github.com/banshee-data/geofuse/internal/units"
	"github.com/banshee-data/geofuse/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// streamBuffer is the per-subscriber channel depth for /api/stream. A stalled
// SSE client loses estimates rather than stalling the session callback.
const streamBuffer = 16

// Server exposes the session lifecycle and estimate history over HTTP.
type Server struct {
	manager *fusion.Manager
	db      *store.DB
	cfg     *config.TuningConfig

	streamMu sync.Mutex
	streams  map[string]map[chan fusion.Estimate]struct{}
}

func NewServer(manager *fusion.Manager, db *store.DB, cfg *config.TuningConfig) *Server {
	return &Server{
		manager: manager,
		db:      db,
		cfg:     cfg,
		streams: make(map[string]map[chan fusion.Estimate]struct{}),
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
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions", s.sessionsHandler)
	mux.HandleFunc("/api/sessions/", s.sessionByIDHandler)
	mux.HandleFunc("/api/estimates", s.listEstimates)
	mux.HandleFunc("/api/stream", s.streamEstimates)
	mux.HandleFunc("/api/charts/track", s.trackChart)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/", s.homeHandler)
	return mux
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("geofuse position fusion service\n"))
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// sessionRequest is the POST /api/sessions body. Interval fields take Go
// duration strings ("200ms", "1s"); omitted fields fall back to the service
// config defaults.
type sessionRequest struct {
	Use              string `json:"use"`
	EmissionInterval string `json:"emission_interval,omitempty"`
	GPSMinInterval   string `json:"gps_min_interval,omitempty"`
	NetMinInterval   string `json:"net_min_interval,omitempty"`
	ForwardRaw       bool   `json:"forward_raw,omitempty"`
}

type sessionResponse struct {
	SessionID        string `json:"session_id"`
	Use              string `json:"use"`
	EmissionInterval string `json:"emission_interval"`
	ForwardRaw       bool   `json:"forward_raw"`
}

func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		s.listSessions(w, r)
	case http.MethodPost:
		s.createSession(w, r)
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	records, err := s.db.Sessions()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve sessions: %v", err))
		return
	}

	live := make(map[string]bool)
	for _, h := range s.manager.Sessions() {
		live[h] = true
	}

	type sessionInfo struct {
		SessionID          string `json:"session_id"`
		UseFeeds           string `json:"use"`
		EmissionIntervalMs int64  `json:"emission_interval_ms"`
		StartedUnixNanos   int64  `json:"started_unix_nanos"`
		StoppedUnixNanos   *int64 `json:"stopped_unix_nanos,omitempty"`
		Live               bool   `json:"live"`
	}
	out := make([]sessionInfo, len(records))
	for i, rec := range records {
		out[i] = sessionInfo{
			SessionID:          rec.SessionID,
			UseFeeds:           rec.UseFeeds,
			EmissionIntervalMs: rec.EmissionIntervalMs,
			StartedUnixNanos:   rec.StartedUnixNanos,
			StoppedUnixNanos:   rec.StoppedUnixNanos,
			Live:               live[rec.SessionID],
		}
	}

	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write sessions")
	}
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	cfg := fusion.SessionConfig{
		Use:              fusion.UseFeeds(req.Use),
		EmissionInterval: s.cfg.GetEmissionInterval(),
		GPSMinInterval:   s.cfg.GetGPSMinInterval(),
		NetMinInterval:   s.cfg.GetNetMinInterval(),
		ForwardRaw:       req.ForwardRaw,
	}
	for _, iv := range []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{req.EmissionInterval, "emission_interval", &cfg.EmissionInterval},
		{req.GPSMinInterval, "gps_min_interval", &cfg.GPSMinInterval},
		{req.NetMinInterval, "net_min_interval", &cfg.NetMinInterval},
	} {
		if iv.raw == "" {
			continue
		}
		d, err := time.ParseDuration(iv.raw)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest,
				fmt.Sprintf("Invalid %s %q: %v", iv.name, iv.raw, err))
			return
		}
		*iv.dst = d
	}

	// The handle isn't known until Start returns, so the callback blocks on
	// handleReady before its first delivery. If Start fails the callback is
	// never invoked.
	var handle string
	handleReady := make(chan struct{})
	out := func(e fusion.Estimate) {
		<-handleReady
		if err := s.db.InsertEstimate(handle, e); err != nil {
			log.Printf("api: persist estimate for %s: %v", handle, err)
		}
		s.broadcast(handle, e)
	}

	handle, err := s.manager.Start(cfg, out)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Failed to start session: %v", err))
		return
	}

	close(handleReady)

	if err := s.db.RecordSession(handle, cfg, time.Now()); err != nil {
		log.Printf("api: record session %s: %v", handle, err)
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sessionResponse{
		SessionID:        handle,
		Use:              string(cfg.Use),
		EmissionInterval: cfg.EmissionInterval.String(),
		ForwardRaw:       cfg.ForwardRaw,
	})
}

func (s *Server) sessionByIDHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if id == "" || strings.Contains(id, "/") {
		s.writeJSONError(w, http.StatusNotFound, "Unknown session path")
		return
	}

	if r.Method != http.MethodDelete {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.manager.Stop(id)
	s.closeStreams(id)
	if err := s.db.CloseSession(id, time.Now()); err != nil {
		log.Printf("api: close session %s: %v", id, err)
	}

	json.NewEncoder(w).Encode(map[string]string{"session_id": id, "status": "stopped"})
}

func (s *Server) listEstimates(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'session_id' parameter")
		return
	}

	speedUnits := units.MPS
	if u := r.URL.Query().Get("units"); u != "" {
		if !units.IsValid(u) {
			s.writeJSONError(w, http.StatusBadRequest,
				fmt.Sprintf("Invalid 'units' parameter, expected one of: %s", units.GetValidUnitsString()))
			return
		}
		speedUnits = u
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	var (
		estimates []fusion.Estimate
		err       error
	)
	startStr, endStr := r.URL.Query().Get("start"), r.URL.Query().Get("end")
	if startStr != "" || endStr != "" {
		start, end, perr := parseRange(startStr, endStr)
		if perr != nil {
			s.writeJSONError(w, http.StatusBadRequest, perr.Error())
			return
		}
		estimates, err = s.db.EstimatesInRange(sessionID, start, end, limit)
	} else {
		estimates, err = s.db.RecentEstimates(sessionID, limit)
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve estimates: %v", err))
		return
	}

	if estimates == nil {
		estimates = []fusion.Estimate{}
	}
	if speedUnits != units.MPS {
		for i := range estimates {
			if estimates[i].Speed != nil {
				converted := units.ConvertSpeed(*estimates[i].Speed, speedUnits)
				estimates[i].Speed = &converted
			}
		}
	}
	if err := json.NewEncoder(w).Encode(estimates); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write estimates")
	}
}

// parseRange parses start/end query params as unix seconds. A missing end
// defaults to now, a missing start to one hour before end.
func parseRange(startStr, endStr string) (int64, int64, error) {
	var startNanos, endNanos int64
	if endStr != "" {
		v, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid 'end' parameter")
		}
		endNanos = v * 1e9
	} else {
		endNanos = time.Now().UnixNano()
	}
	if startStr != "" {
		v, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid 'start' parameter")
		}
		startNanos = v * 1e9
	} else {
		startNanos = endNanos - int64(time.Hour)
	}
	return startNanos, endNanos, nil
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	out := map[string]interface{}{
		"version":                 version.Version,
		"git_sha":                 version.GitSHA,
		"time_step":               s.cfg.GetTimeStep(),
		"coordinate_noise_meters": s.cfg.GetCoordinateNoiseMeters(),
		"altitude_noise_meters":   s.cfg.GetAltitudeNoiseMeters(),
		"min_accuracy_meters":     s.cfg.GetMinAccuracyMeters(),
		"emission_interval":       s.cfg.GetEmissionInterval().String(),
	}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
	}
}

// streamEstimates serves a Server-Sent Events stream of live estimates for
// one session. Each event carries one Estimate as JSON.
func (s *Server) streamEstimates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "Missing 'session_id' parameter", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := s.subscribeStream(sessionID)
	defer s.unsubscribeStream(sessionID, ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(e)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func (s *Server) subscribeStream(sessionID string) chan fusion.Estimate {
	ch := make(chan fusion.Estimate, streamBuffer)
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	if s.streams[sessionID] == nil {
		s.streams[sessionID] = make(map[chan fusion.Estimate]struct{})
	}
	s.streams[sessionID][ch] = struct{}{}
	return ch
}

func (s *Server) unsubscribeStream(sessionID string, ch chan fusion.Estimate) {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	subs, ok := s.streams[sessionID]
	if !ok {
		return
	}
	if _, present := subs[ch]; present {
		delete(subs, ch)
		close(ch)
	}
	if len(subs) == 0 {
		delete(s.streams, sessionID)
	}
}

// broadcast fans one estimate out to every stream subscriber of the session.
// Sends never block: a full subscriber drops the estimate.
func (s *Server) broadcast(sessionID string, e fusion.Estimate) {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	for ch := range s.streams[sessionID] {
		select {
		case ch <- e:
		default:
		}
	}
}

// closeStreams terminates all stream subscribers of a stopped session.
func (s *Server) closeStreams(sessionID string) {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	for ch := range s.streams[sessionID] {
		close(ch)
	}
	delete(s.streams, sessionID)
}
