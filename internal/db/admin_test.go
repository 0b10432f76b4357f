package db

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// loopbackRequest creates an httptest request with RemoteAddr set to loopback
// so that tsweb.AllowDebugAccess returns true.
func loopbackRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestAdminRoutes_DBStats(t *testing.T) {
	db := setupTestDB(t)
	if err := db.InsertParameter("OBC", "uptime", "1.0"); err != nil {
		t.Fatalf("InsertParameter failed: %v", err)
	}

	mux := http.NewServeMux()
	db.AttachAdminRoutes(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, loopbackRequest(http.MethodGet, "/debug/db-stats"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got struct {
		Tables []TableStats  `json:"tables"`
		Schema SchemaStatus `json:"schema"`
	}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if len(got.Tables) != 2 || got.Tables[0].Name != "telemetry" || got.Tables[0].Rows != 1 {
		t.Errorf("unexpected stats %+v", got.Tables)
	}
	if !got.Schema.Current() {
		t.Errorf("expected current schema, got %+v", got.Schema)
	}
}

func TestAdminRoutes_Backup(t *testing.T) {
	db := setupTestDB(t)

	mux := http.NewServeMux()
	db.AttachAdminRoutes(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, loopbackRequest(http.MethodGet, "/debug/backup"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Encoding"); got != "gzip" {
		t.Errorf("expected gzip encoding, got %q", got)
	}

	gz, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("invalid gzip stream: %v", err)
	}
	data, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("failed to read backup: %v", err)
	}
	if len(data) < 16 || string(data[:15]) != "SQLite format 3" {
		t.Errorf("backup is not a sqlite database")
	}
}
