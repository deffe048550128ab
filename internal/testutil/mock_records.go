// Package testutil provides test doubles for the batch downloader.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RecordPath is the path prefix served by MockRecordServer.
const RecordPath = "/records/"

// MockResponse defines the behaviour for one record ID.
type MockResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration

	// DropConnections makes the first N requests close the connection
	// without a response.
	DropConnections int
}

// MockRecordServer is a configurable record endpoint serving GET /records/{id}.
// Unconfigured IDs answer 404.
type MockRecordServer struct {
	server    *httptest.Server
	mu        sync.RWMutex
	responses map[int]*MockResponse
	requests  map[int]int

	// Tracking
	RequestCount    int
	LastUserAgent   string
	DroppedRequests int
}

// NewMockRecordServer creates and starts a mock record server.
func NewMockRecordServer() *MockRecordServer {
	mock := &MockRecordServer{
		responses: make(map[int]*MockResponse),
		requests:  make(map[int]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the base URL for record requests, ending in RecordPath.
func (m *MockRecordServer) URL() string {
	return m.server.URL + RecordPath
}

// Close shuts down the mock server.
func (m *MockRecordServer) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockRecordServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.DroppedRequests = 0
	m.LastUserAgent = ""
	m.requests = make(map[int]int)
}

// SetResponse configures the response for id.
func (m *MockRecordServer) SetResponse(id int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[id] = &resp
}

// SetRecord serves fields as a JSON object for id.
func (m *MockRecordServer) SetRecord(id int, fields map[string]any) {
	body, err := json.Marshal(fields)
	if err != nil {
		panic(err)
	}
	m.SetResponse(id, MockResponse{StatusCode: http.StatusOK, Body: string(body)})
}

// SetConnectionFailure drops the first n connections for id, then serves fields.
func (m *MockRecordServer) SetConnectionFailure(id int, n int, fields map[string]any) {
	resp := MockResponse{StatusCode: http.StatusNotFound, DropConnections: n}
	if fields != nil {
		body, err := json.Marshal(fields)
		if err != nil {
			panic(err)
		}
		resp.StatusCode = http.StatusOK
		resp.Body = string(body)
	}
	m.SetResponse(id, resp)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockRecordServer) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// RequestsFor returns the number of requests made for id.
func (m *MockRecordServer) RequestsFor(id int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests[id]
}

func (m *MockRecordServer) handle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, RecordPath))
	if err != nil || !strings.HasPrefix(r.URL.Path, RecordPath) {
		http.NotFound(w, r)
		return
	}

	m.mu.Lock()
	m.RequestCount++
	m.requests[id]++
	m.LastUserAgent = r.Header.Get("User-Agent")
	resp, ok := m.responses[id]
	drop := false
	if ok && resp.DropConnections > 0 {
		resp.DropConnections--
		m.DroppedRequests++
		drop = true
	}
	var current MockResponse
	if ok {
		current = *resp
	}
	m.mu.Unlock()

	if drop {
		dropConnection(w)
		return
	}

	if !ok {
		http.NotFound(w, r)
		return
	}

	if current.Delay > 0 {
		select {
		case <-time.After(current.Delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(current.StatusCode)
	if current.Body != "" {
		w.Write([]byte(current.Body))
	}
}

// dropConnection closes the underlying connection without writing a response.
func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	conn.Close()
}
