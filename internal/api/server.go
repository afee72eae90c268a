// Package api exposes the service over loopback HTTP. Handlers are
// thin JSON translations of coordinator calls; no handler holds locks
// across a blocking call into the service.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/voicemode/audio-manager/internal/queue"
	"github.com/voicemode/audio-manager/internal/service"
)

// Server serves the HTTP surface for one coordinator.
type Server struct {
	svc     *service.Service
	version string
	httpSrv *http.Server
}

// New creates a server bound to addr (expected to be a loopback
// address; the surface is unauthenticated).
func New(svc *service.Service, addr, version string) *Server {
	s := &Server{svc: svc, version: version}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router builds the route table. Exposed for handler tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Post("/speak", s.handleSpeak)
	r.Post("/reserve", s.handleReserve)
	r.Post("/fill/{item_id}", s.handleFill)
	r.Post("/wait/{item_id}", s.handleWait)
	r.Post("/pause", s.handlePause)
	r.Post("/resume", s.handleResume)
	r.Post("/clear", s.handleClear)
	r.Post("/stop", s.handleStop)
	r.Post("/chime-allowed", s.handleChimeAllowed)
	return r
}

// ListenAndServe binds the address and serves until Shutdown. A bind
// failure (port collision) is returned so the caller can exit with a
// diagnostic.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.httpSrv.Addr, err)
	}
	log.Info("http server listening", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(s.svc.Uptime().Seconds()),
		"version":        s.version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Status())
}

// speakRequest is shared by /speak and /fill; unknown fields are
// ignored by the decoder.
type speakRequest struct {
	AudioData  string `json:"audio_data"`
	SampleRate int    `json:"sample_rate"`
	Project    string `json:"project"`
	Priority   string `json:"priority"`
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req speakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}
	if req.AudioData == "" {
		writeError(w, http.StatusBadRequest, "Missing audio_data")
		return
	}
	pcm, err := base64.StdEncoding.DecodeString(req.AudioData)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid base64 audio_data: %v", err))
		return
	}

	result := s.svc.Enqueue(pcm, req.SampleRate, projectOrDefault(req.Project), queue.ParsePriority(req.Priority))
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Project  string `json:"project"`
		Priority string `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	result := s.svc.Reserve(projectOrDefault(req.Project), queue.ParsePriority(req.Priority))
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFill(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "item_id")

	var req speakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}
	if req.AudioData == "" {
		writeError(w, http.StatusBadRequest, "Missing audio_data")
		return
	}
	pcm, err := base64.StdEncoding.DecodeString(req.AudioData)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid base64 audio_data: %v", err))
		return
	}

	if err := s.svc.Fill(itemID, pcm, req.SampleRate); err != nil {
		// Not an HTTP error: the slot is gone (expired or never
		// existed) and the caller should simply drop the audio.
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"filled": false,
			"error":  "Item not found or expired",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"filled":  true,
		"item_id": itemID,
	})
}

func (s *Server) handleWait(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "item_id")

	var timeout time.Duration
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		if secs, err := strconv.ParseFloat(raw, 64); err == nil && secs > 0 {
			timeout = time.Duration(secs * float64(time.Second))
		}
	}

	if s.svc.WaitForItem(r.Context(), itemID, timeout) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"completed": true,
			"item_id":   itemID,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"completed": false,
		"item_id":   itemID,
		"error":     "timeout",
	})
}

func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request) {
	s.svc.Pause()
	writeJSON(w, http.StatusOK, map[string]interface{}{"paused": true})
}

func (s *Server) handleResume(w http.ResponseWriter, _ *http.Request) {
	s.svc.Resume()
	writeJSON(w, http.StatusOK, map[string]interface{}{"paused": false})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	// A missing or malformed body means "clear everything".
	var req struct {
		Project string `json:"project"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	cleared := s.svc.Clear(req.Project)
	writeJSON(w, http.StatusOK, map[string]interface{}{"cleared": cleared})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"stopped": s.svc.StopPlayback()})
}

func (s *Server) handleChimeAllowed(w http.ResponseWriter, _ *http.Request) {
	allowed, remaining := s.svc.ChimeAllowed()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"allowed":           allowed,
		"seconds_remaining": remaining,
	})
}

func projectOrDefault(p string) string {
	if p == "" {
		return "unknown"
	}
	return p
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
