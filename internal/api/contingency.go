package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/dora-sat/flight/internal/httputil"
	"github.com/dora-sat/flight/internal/security"
)

const maxUploadBody = 16 * 1024 * 1024

// Result is the reply of the contingency operations.
type Result struct {
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Errors  string `json:"errors,omitempty"`
}

func writeResult(w http.ResponseWriter, status int, result string, err error) {
	if err != nil {
		httputil.WriteJSON(w, status, Result{Errors: err.Error()})
		return
	}
	httputil.WriteJSON(w, status, Result{Success: true, Result: result})
}

// CommandRequest runs Path with Args. Stdout and Stderr, when set, name files
// that receive the corresponding stream instead of the reply.
type CommandRequest struct {
	Path   string   `json:"path"`
	Args   []string `json:"args"`
	Stdout string   `json:"stdout,omitempty"`
	Stderr string   `json:"stderr,omitempty"`
}

// exitCoder matches *exec.ExitError: the command ran and exited non-zero.
type exitCoder interface {
	ExitCode() int
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req CommandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInsertBody)).Decode(&req); err != nil {
		writeResult(w, http.StatusBadRequest, "", fmt.Errorf("invalid request body: %v", err))
		return
	}
	if req.Path == "" {
		writeResult(w, http.StatusBadRequest, "", errors.New("no command path specified"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.commandTimeout())
	defer cancel()
	cmd := s.Commands.BuildCommand(ctx, req.Path, req.Args...)

	for _, redirect := range []struct {
		path string
		set  func(io.Writer)
	}{
		{req.Stdout, cmd.SetStdout},
		{req.Stderr, cmd.SetStderr},
	} {
		if redirect.path == "" {
			continue
		}
		path, err := security.ResolveTransferPath(redirect.path, s.AllowedDirs)
		if err != nil {
			writeResult(w, http.StatusForbidden, "", err)
			return
		}
		f, err := s.FS.Create(path)
		if err != nil {
			// The stream falls back to the reply.
			log.Printf("Failed to open output file %s: %v", path, err)
			continue
		}
		defer f.Close()
		redirect.set(f)
	}

	log.Printf("Running contingency command %s %v", req.Path, req.Args)
	stdout, stderr, err := cmd.Run()
	var exit exitCoder
	if err != nil && !errors.As(err, &exit) {
		log.Printf("Could not execute command %s: %v", req.Path, err)
		writeResult(w, http.StatusInternalServerError, "", fmt.Errorf("could not execute command: %v", err))
		return
	}
	writeResult(w, http.StatusOK, fmt.Sprintf("stdout: %s\n\nstderr: %s", stdout, stderr), nil)
}

// UploadRequest writes Data to Path, base64-decoding it first when Base64 is set.
type UploadRequest struct {
	Path   string `json:"path"`
	Data   string `json:"data"`
	Base64 bool   `json:"base64"`
}

// handleFile downloads (GET ?path=&base64=) or uploads (POST UploadRequest)
// a file within the allowed directories.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.downloadFile(w, r)
	case http.MethodPost:
		s.uploadFile(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) downloadFile(w http.ResponseWriter, r *http.Request) {
	encode := false
	if raw := r.URL.Query().Get("base64"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeResult(w, http.StatusBadRequest, "", errors.New("invalid 'base64' parameter"))
			return
		}
		encode = v
	}

	path, err := security.ResolveTransferPath(r.URL.Query().Get("path"), s.AllowedDirs)
	if err != nil {
		writeResult(w, statusForPathError(err), "", err)
		return
	}
	data, err := s.FS.ReadFile(path)
	if err != nil {
		writeResult(w, http.StatusNotFound, "", fmt.Errorf("failed to read file: %v", err))
		return
	}
	if encode {
		writeResult(w, http.StatusOK, base64.StdEncoding.EncodeToString(data), nil)
		return
	}
	writeResult(w, http.StatusOK, string(data), nil)
}

func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	var req UploadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBody)).Decode(&req); err != nil {
		writeResult(w, http.StatusBadRequest, "", fmt.Errorf("invalid request body: %v", err))
		return
	}

	data := []byte(req.Data)
	if req.Base64 {
		decoded, err := base64.StdEncoding.DecodeString(req.Data)
		if err != nil {
			writeResult(w, http.StatusBadRequest, "", fmt.Errorf("failed to decode data: %v", err))
			return
		}
		data = decoded
	}

	path, err := security.ResolveTransferPath(req.Path, s.AllowedDirs)
	if err != nil {
		writeResult(w, statusForPathError(err), "", err)
		return
	}
	if err := s.FS.WriteFile(path, data, 0o644); err != nil {
		writeResult(w, http.StatusInternalServerError, "", fmt.Errorf("failed to write data to file: %v", err))
		return
	}
	log.Printf("Wrote %d bytes to %s", len(data), path)
	writeResult(w, http.StatusOK, "Wrote data to file", nil)
}

func statusForPathError(err error) int {
	if errors.Is(err, security.ErrPathNotAllowed) {
		return http.StatusForbidden
	}
	return http.StatusBadRequest
}
