package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dora-sat/flight/internal/db"
	"github.com/dora-sat/flight/internal/health"
	"github.com/dora-sat/flight/internal/httputil"
)

const maxInsertBody = 64 * 1024

// handleInsert stores one telemetry parameter. The body is either JSON
// ({"subsystem", "parameter", "value"}) or form values with the same names.
func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, health.InsertResponse{Errors: "telemetry database not configured"})
		return
	}

	var req health.InsertRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxInsertBody)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, health.InsertResponse{Errors: fmt.Sprintf("invalid request body: %v", err)})
			return
		}
	} else {
		req.Subsystem = r.FormValue("subsystem")
		req.Parameter = r.FormValue("parameter")
		req.Value = r.FormValue("value")
	}

	if req.Subsystem == "" || req.Parameter == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, health.InsertResponse{Errors: "subsystem and parameter are required"})
		return
	}
	if err := s.store.InsertParameter(req.Subsystem, req.Parameter, req.Value); err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, health.InsertResponse{Errors: err.Error()})
		return
	}
	httputil.WriteJSONOK(w, health.InsertResponse{Success: true})
}

// handleParameters lists stored samples, newest first. Query parameters:
//   - subsystem, parameter (optional exact matches)
//   - since (optional RFC3339 time)
//   - limit (optional; default db.DefaultQueryLimit)
func (s *Server) handleParameters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.ServiceUnavailable(w, "telemetry database not configured")
		return
	}

	q := db.ParameterQuery{
		Subsystem: r.URL.Query().Get("subsystem"),
		Parameter: r.URL.Query().Get("parameter"),
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			httputil.BadRequest(w, "invalid 'since' parameter: expected RFC3339 time")
			return
		}
		q.Since = t
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	q.Limit = limit

	params, err := s.store.Parameters(q)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to query parameters: %v", err))
		return
	}
	httputil.WriteJSONOK(w, params)
}

// handleMessages lists logged radio messages, newest first.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.ServiceUnavailable(w, "telemetry database not configured")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	msgs, err := s.store.Messages(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to query messages: %v", err))
		return
	}
	httputil.WriteJSONOK(w, msgs)
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		httputil.BadRequest(w, "invalid 'limit' parameter: expected a positive integer")
		return 0, false
	}
	return limit, true
}
