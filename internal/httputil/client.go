// Package httputil holds the small HTTP pieces shared by the flight services:
// JSON reply helpers for handlers and a client seam so callers of the
// telemetry service can be tested without a network.
package httputil

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// DefaultTimeout bounds every request made through a StandardClient built
// from a nil *http.Client.
const DefaultTimeout = 10 * time.Second

// HTTPClient is the subset of *http.Client the services use.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
	Post(url, contentType string, body io.Reader) (*http.Response, error)
}

// StandardClient adapts *http.Client to HTTPClient.
type StandardClient struct {
	*http.Client
}

// NewStandardClient wraps c. A nil c gets a client with DefaultTimeout
// rather than http.DefaultClient, which never times out.
func NewStandardClient(c *http.Client) *StandardClient {
	if c == nil {
		c = &http.Client{Timeout: DefaultTimeout}
	}
	return &StandardClient{Client: c}
}

// MockHTTPClient replays queued replies in order and records what was sent.
// Once the queue is empty every request gets an empty 200.
type MockHTTPClient struct {
	mu       sync.Mutex
	replies  []mockReply
	requests []*http.Request
	bodies   [][]byte
}

type mockReply struct {
	status int
	body   string
	err    error
}

// NewMockHTTPClient returns a mock with nothing queued.
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{}
}

// AddResponse queues a reply with the given status and body.
func (m *MockHTTPClient) AddResponse(status int, body string) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, mockReply{status: status, body: body})
	return m
}

// AddErrorResponse queues a transport failure.
func (m *MockHTTPClient) AddErrorResponse(err error) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, mockReply{err: err})
	return m
}

// Do records req, including a copy of its body, and returns the next reply.
func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("mock client: read request body: %w", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	m.bodies = append(m.bodies, body)

	reply := mockReply{status: http.StatusOK}
	if len(m.replies) > 0 {
		reply, m.replies = m.replies[0], m.replies[1:]
	}
	if reply.err != nil {
		return nil, reply.err
	}
	return &http.Response{
		Status:     http.StatusText(reply.status),
		StatusCode: reply.status,
		Body:       io.NopCloser(bytes.NewBufferString(reply.body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// Post builds a POST request and passes it to Do.
func (m *MockHTTPClient) Post(url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return m.Do(req)
}

// GetRequest returns the nth recorded request with a fresh reader over its
// body, or nil when n is out of range.
func (m *MockHTTPClient) GetRequest(n int) *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 || n >= len(m.requests) {
		return nil
	}
	req := m.requests[n].Clone(m.requests[n].Context())
	req.Body = io.NopCloser(bytes.NewReader(m.bodies[n]))
	return req
}

// RequestCount returns how many requests have been made.
func (m *MockHTTPClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Pending returns how many queued replies have not been used.
func (m *MockHTTPClient) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replies)
}
