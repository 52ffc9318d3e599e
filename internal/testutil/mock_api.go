// Package testutil provides testing utilities for the preloader.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is a configurable mock of the paginated URL-list API that also
// serves the frontend pages being preloaded.
type MockAPI struct {
	server *httptest.Server
	mu     sync.RWMutex
	pages  map[int]MockResponse
	paths  map[string]MockResponse

	// Tracking
	RequestCount      int
	PageRequests      []int
	FrontendHits      []string
	LastRequestHeader http.Header
	LastPageHeader    http.Header
}

// NewMockAPI creates a new mock server. Requests to APIPath are answered
// from the configured pages, everything else from the configured paths
// (200 OK when unset).
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		pages: make(map[int]MockResponse),
		paths: make(map[string]MockResponse),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()

		var resp MockResponse
		var ok bool
		if r.URL.Path == APIPath {
			page, _ := strconv.Atoi(r.URL.Query().Get("page"))
			mock.PageRequests = append(mock.PageRequests, page)
			mock.LastPageHeader = r.Header.Clone()
			resp, ok = mock.pages[page]
			if !ok {
				resp = NewPageResponse(1)
			}
		} else {
			mock.FrontendHits = append(mock.FrontendHits, r.URL.Path)
			resp, ok = mock.paths[r.URL.Path]
			if !ok {
				resp = MockResponse{StatusCode: http.StatusOK, Body: "<html></html>"}
			}
		}
		mock.mu.Unlock()

		writeResponse(w, resp)
	}))

	return mock
}

// APIPath is the path of the mocked URL-list API.
const APIPath = "/api/urls"

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// APIURL returns the URL-list endpoint with an existing query string.
func (m *MockAPI) APIURL() string {
	return m.server.URL + APIPath + "?type=page"
}

// PageURL returns an absolute frontend URL on the mock server.
func (m *MockAPI) PageURL(path string) string {
	return m.server.URL + path
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
	m.PageRequests = nil
	m.FrontendHits = nil
	m.LastRequestHeader = nil
	m.LastPageHeader = nil
}

// SetPage configures the response for an API page.
func (m *MockAPI) SetPage(page int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[page] = resp
}

// SetPath configures the response for a frontend path.
func (m *MockAPI) SetPath(path string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths[path] = resp
}

// GetPageRequests returns the page numbers requested so far.
func (m *MockAPI) GetPageRequests() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.PageRequests...)
}

// GetFrontendHits returns the frontend paths requested so far.
func (m *MockAPI) GetFrontendHits() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.FrontendHits...)
}

// GetLastPageHeader returns the headers of the last API request.
func (m *MockAPI) GetLastPageHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastPageHeader
}

// GetLastRequestHeader returns the headers of the last request of any kind.
func (m *MockAPI) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if resp.StatusCode == 0 {
		resp.StatusCode = http.StatusOK
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewPageResponse builds a 200 page document listing urls.
func NewPageResponse(totalPages int, urls ...string) MockResponse {
	items := make([]string, 0, len(urls))
	for _, u := range urls {
		items = append(items, fmt.Sprintf(`{"url": %q}`, u))
	}
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"total_pages": %d, "items": [%s]}`, totalPages, strings.Join(items, ", ")),
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `not found`,
	}
}

// NewCacheHitResponse creates a 200 response carrying a CDN cache hit header.
func NewCacheHitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       "<html></html>",
		Headers: map[string]string{
			"X-Cache": "HIT",
			"Age":     "42",
		},
	}
}
