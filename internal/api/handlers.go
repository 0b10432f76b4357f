package api

import (
	"io"
	"net/http"

	"github.com/dora-sat/flight/internal/httputil"
)

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	io.WriteString(w, "pong")
}

// handleEcho returns the data parameter unchanged.
func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	data := r.FormValue("data")
	if data == "" {
		io.WriteString(w, "empty data field")
		return
	}
	io.WriteString(w, data)
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.telem.Snapshot())
}

// handleTelemetryField serves a single counter, keyed by its JSON name.
func (s *Server) handleTelemetryField(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	field := r.PathValue("field")
	var value interface{}
	switch field {
	case "packets_up":
		value = s.telem.PacketsUp()
	case "packets_down":
		value = s.telem.PacketsDown()
	case "failed_packets_up":
		value = s.telem.FailedPacketsUp()
	case "failed_packets_down":
		value = s.telem.FailedPacketsDown()
	case "errors":
		value = s.telem.Errors()
	default:
		httputil.NotFound(w, "unknown telemetry field: "+field)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{field: value})
}
