// Package api exposes the radio service's query surface as JSON over HTTP:
// link telemetry, stored health parameters and the fallback contingency
// operations (run a command, move a file) used when nothing else on the
// OBC answers.
package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/dora-sat/flight/internal/comms"
	"github.com/dora-sat/flight/internal/db"
	"github.com/dora-sat/flight/internal/fsutil"
	"github.com/dora-sat/flight/internal/sysexec"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// DefaultCommandTimeout bounds a contingency command.
const DefaultCommandTimeout = 30 * time.Second

// Store is the part of the telemetry database the API reads and writes.
type Store interface {
	InsertParameter(subsystem, parameter, value string) error
	Parameters(q db.ParameterQuery) ([]db.Parameter, error)
	Messages(limit int) ([]db.RadioMessage, error)
}

type Server struct {
	telem *comms.Telemetry
	store Store

	// AllowedDirs bounds every file path a request may name.
	AllowedDirs []string
	// Commands runs contingency commands.
	Commands sysexec.CommandBuilder
	// FS backs file transfer and command output redirection.
	FS fsutil.FileSystem
	// CommandTimeout bounds each command; zero means DefaultCommandTimeout.
	CommandTimeout time.Duration
}

// NewServer returns a Server over the real filesystem and command runner.
// store may be nil, in which case the storage endpoints report 503.
func NewServer(telem *comms.Telemetry, store Store, allowedDirs []string) *Server {
	return &Server{
		telem:       telem,
		store:       store,
		AllowedDirs: allowedDirs,
		Commands:    sysexec.NewRealCommandBuilder(),
		FS:          fsutil.OSFileSystem{},
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

// ServeMux returns the query surface routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", s.handlePing)
	mux.HandleFunc("/echo", s.handleEcho)
	mux.HandleFunc("/telemetry", s.handleTelemetry)
	mux.HandleFunc("/telemetry/{field}", s.handleTelemetryField)
	mux.HandleFunc("/telemetry/insert", s.handleInsert)
	mux.HandleFunc("/telemetry/parameters", s.handleParameters)
	mux.HandleFunc("/messages", s.handleMessages)
	mux.HandleFunc("/command", s.handleCommand)
	mux.HandleFunc("/file", s.handleFile)
	return mux
}

func (s *Server) commandTimeout() time.Duration {
	if s.CommandTimeout > 0 {
		return s.CommandTimeout
	}
	return DefaultCommandTimeout
}
