// Package testutil provides testing utilities for the DTE Insight extractor.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock API endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// MockAPI is a configurable mock DTE Insight API server for testing.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount   int
	PathCounts     map[string]int
	LastAuthHeader string
	LastQuery      map[string]string
}

// NewMockAPI creates a new mock API server.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		PathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.PathCounts[r.URL.Path]++
		mock.LastAuthHeader = r.Header.Get("Authorization")
		query := make(map[string]string)
		for key := range r.URL.Query() {
			query[key] = r.URL.Query().Get(key)
		}
		mock.LastQuery = query
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PathCounts = make(map[string]int)
	m.LastAuthHeader = ""
	m.LastQuery = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockAPI) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a canned response for a path.
func (m *MockAPI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPathCount returns the number of requests made to a specific path.
func (m *MockAPI) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PathCounts[path]
}

// SetLogin configures the login endpoint to issue the given token via the
// Authorization response header.
func (m *MockAPI) SetLogin(clientID, token string) {
	m.SetResponse("/login/"+clientID, MockResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Authorization": token},
	})
}

// SetLookup configures the lookup endpoint to return the given profile JSON.
func (m *MockAPI) SetLookup(clientID, profileJSON string) {
	m.SetResponse("/lookup/"+clientID, MockResponse{
		StatusCode: http.StatusOK,
		Body:       profileJSON,
		Headers:    map[string]string{"Content-Type": "application/json"},
	})
}

// UsagePath returns the usage endpoint path for a customer and site.
func UsagePath(customerID, siteID int64) string {
	return fmt.Sprintf("/usage/%d/%d", customerID, siteID)
}

// UsageRow is one row of the usage endpoint's JSON array.
type UsageRow struct {
	D int64   `json:"d"`
	U float64 `json:"u"`
}

// UsageDataset simulates the upstream usage endpoint: readings at a fixed
// interval between First and Last. Like the real API, a request only sees
// readings inside a window of count minute-slots anchored at startTime;
// an empty window yields a 404, the upstream's "nothing in range" answer.
type UsageDataset struct {
	First    time.Time
	Last     time.Time
	Interval time.Duration
	Usage    float64
}

// Handler returns an http handler serving the dataset. It honors the
// startTime and count query parameters.
func (d UsageDataset) Handler() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime, err := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		if err != nil {
			http.Error(w, "bad startTime", http.StatusBadRequest)
			return
		}
		count, err := strconv.Atoi(r.URL.Query().Get("count"))
		if err != nil || count <= 0 {
			http.Error(w, "bad count", http.StatusBadRequest)
			return
		}

		windowStart := time.Unix(startTime, 0).UTC()
		windowEnd := windowStart.Add(time.Duration(count) * time.Minute)

		start := windowStart
		if start.Before(d.First) {
			start = d.First
		} else {
			// Align to the next reading at or after the window start.
			offset := start.Sub(d.First)
			if rem := offset % d.Interval; rem != 0 {
				offset += d.Interval - rem
			}
			start = d.First.Add(offset)
		}

		var rows []UsageRow
		for ts := start; ts.Before(windowEnd) && !ts.After(d.Last) && len(rows) < count; ts = ts.Add(d.Interval) {
			rows = append(rows, UsageRow{D: ts.Unix(), U: d.Usage})
		}

		if len(rows) == 0 {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rows)
	}
}
