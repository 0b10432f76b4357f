package serialmux

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// localHostRequest builds a request that passes tsweb's debug access check.
func localHostRequest(method, target string, form url.Values) *http.Request {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestAdminRoutes_RadioSend(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		form           url.Values
		writeErr       error
		expectedStatus int
		expectedBody   string
		expectedWrites [][]byte
	}{
		{
			name:           "form",
			method:         http.MethodGet,
			expectedStatus: http.StatusOK,
			expectedBody:   `name="payload"`,
		},
		{
			name:           "valid payload",
			method:         http.MethodPost,
			form:           url.Values{"payload": {"0x01 0x02 0xff"}},
			expectedStatus: http.StatusOK,
			expectedBody:   "Wrote 3 bytes (0102ff) to radio",
			expectedWrites: [][]byte{{0x01, 0x02, 0xFF}},
		},
		{
			name:           "empty payload",
			method:         http.MethodPost,
			form:           url.Values{"payload": {""}},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "empty payload",
		},
		{
			name:           "write failure",
			method:         http.MethodPost,
			form:           url.Values{"payload": {"aa"}},
			writeErr:       assert.AnError,
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   "Failed to write payload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := NewTestableSerialPort()
			port.WriteError = tt.writeErr
			f := NewFramer(NewChannel(port))

			mux := http.NewServeMux()
			f.AttachAdminRoutes(mux)

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, localHostRequest(tt.method, "/debug/radio-send", tt.form))

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.expectedBody)
			if tt.expectedWrites == nil {
				assert.Empty(t, port.WriteLog())
			} else {
				assert.Equal(t, tt.expectedWrites, port.WriteLog())
			}
		})
	}
}

func TestAdminRoutes_RadioStats(t *testing.T) {
	port := NewTestableSerialPort(ReadStep{Data: []byte{1, 2, 3}})
	f := NewFramer(NewChannel(port))
	_, err := f.Read()
	require.NoError(t, err)

	mux := http.NewServeMux()
	f.AttachAdminRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/radio-stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats FramerStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, uint64(1), stats.MessagesRead)
	assert.Equal(t, uint64(3), stats.BytesRead)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, localHostRequest(http.MethodPost, "/debug/radio-stats", url.Values{}))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAdminRoutes_RejectsRemote(t *testing.T) {
	f := NewFramer(NewChannel(NewTestableSerialPort()))
	mux := http.NewServeMux()
	f.AttachAdminRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/debug/radio-stats", nil)
	req.RemoteAddr = "203.0.113.7:4000"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.NotEqual(t, http.StatusOK, rec.Code)
}
