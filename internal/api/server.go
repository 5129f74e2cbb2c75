// Package api serves the engine's observable state and control surface over
// HTTP: the current snapshot, a server-sent event stream, and the
// calibration/mode/mic controls.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kestrel-sense/driverwatch/internal/engine"
	"github.com/kestrel-sense/driverwatch/internal/httputil"
	"github.com/kestrel-sense/driverwatch/internal/version"
)

type Server struct {
	eng *engine.Engine
}

func NewServer(eng *engine.Engine) *Server {
	return &Server{eng: eng}
}

// ServeMux returns the API routes. Debug and ingest routes are attached by
// the caller so the server stays unaware of the frame transport.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/mode", s.handleMode)
	mux.HandleFunc("/api/calibration/start", s.handleCalibrationStart)
	mux.HandleFunc("/api/calibration/stop", s.handleCalibrationStop)
	mux.HandleFunc("/api/mic/start", s.handleMicStart)
	mux.HandleFunc("/api/mic/stop", s.handleMicStop)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"version": version.String()})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.eng.Snapshot())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	snap := s.eng.Snapshot()
	httputil.WriteJSONOK(w, map[string]interface{}{
		"driverId":  snap.DriverID,
		"mode":      snap.Mode,
		"micActive": snap.MicActive,
		"version":   version.String(),
	})
}

// handleMode reads the active alert mode on GET and switches it on POST. The
// mode arrives as a form value or a JSON body {"mode": "..."}.
func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, map[string]string{"mode": s.eng.Mode()})
	case http.MethodPost:
		mode, err := readModeParam(r)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := s.eng.SetMode(mode); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"mode": s.eng.Mode()})
	default:
		httputil.MethodNotAllowed(w)
	}
}

func readModeParam(r *http.Request) (string, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		var body struct {
			Mode string `json:"mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", fmt.Errorf("invalid JSON body: %v", err)
		}
		if body.Mode == "" {
			return "", fmt.Errorf("missing 'mode' field")
		}
		return body.Mode, nil
	}
	mode := r.FormValue("mode")
	if mode == "" {
		return "", fmt.Errorf("missing 'mode' parameter")
	}
	return mode, nil
}

func (s *Server) handleCalibrationStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.eng.StartCalibration()
	httputil.WriteJSONOK(w, s.eng.Snapshot())
}

func (s *Server) handleCalibrationStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.eng.StopCalibration()
	httputil.WriteJSONOK(w, s.eng.Snapshot())
}

func (s *Server) handleMicStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.eng.StartMic(); err != nil {
		// A missing or failed device degrades the audio modality; the
		// pipeline itself keeps running, so this is a client-visible
		// conflict rather than a server fault.
		httputil.WriteJSONError(w, http.StatusConflict, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]bool{"micActive": s.eng.MicActive()})
}

func (s *Server) handleMicStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.eng.StopMic()
	httputil.WriteJSONOK(w, map[string]bool{"micActive": s.eng.MicActive()})
}

// handleEvents streams engine events as server-sent events: one JSON-encoded
// engine.Event per message. The subscription starts with the latest snapshot
// and lasts until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
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

	id, events := s.eng.Subscribe()
	defer s.eng.Unsubscribe(id)

	// Prime the stream so the client sees headers immediately.
	fmt.Fprint(w, ": ping\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
