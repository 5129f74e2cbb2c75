package sinkstore

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/kestrel-sense/driverwatch/internal/httputil"
	"github.com/kestrel-sense/driverwatch/internal/sink"
)

// maxRecordBytes bounds one posted telemetry record. A full record is well
// under 1KB.
const maxRecordBytes = 64 * 1024

// ServeMux returns the collector routes: record ingestion plus the read-back
// endpoints the dashboards consume.
func (s *Store) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/telemetry", s.handleIngest)
	mux.HandleFunc("/api/telemetry/recent", s.handleRecent)
	mux.HandleFunc("/api/stats", s.handleStats)
	return mux
}

func (s *Store) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
}

func (s *Store) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var rec sink.Record
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRecordBytes))
	if err := dec.Decode(&rec); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid record: %v", err))
		return
	}
	id, err := s.Insert(rec)
	if err != nil {
		if rec.DriverID == "" || rec.Timestamp == "" {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("storing record: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Store) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}
	records, err := s.Records(r.URL.Query().Get("driver"), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("reading records: %v", err))
		return
	}
	if records == nil {
		records = []StoredRecord{}
	}
	httputil.WriteJSONOK(w, records)
}

func (s *Store) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	days := 1
	if d := r.URL.Query().Get("days"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'days' parameter")
			return
		}
		days = parsed
	}
	rollup, err := s.Rollup(days)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("computing rollup: %v", err))
		return
	}
	if rollup == nil {
		rollup = []DriverRollup{}
	}
	httputil.WriteJSONOK(w, rollup)
}
