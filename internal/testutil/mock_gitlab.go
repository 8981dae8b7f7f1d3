// Package testutil provides a configurable mock GitLab server for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
)

// MockResponse defines the behavior for one mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// MockGitLab is a configurable mock GitLab API server. Handlers are keyed by
// path relative to /api/v4.
type MockGitLab struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	// Tracking
	RequestCount int
	LastAuth     string
	LastQuery    url.Values
}

// NewMockGitLab creates a new mock server.
func NewMockGitLab() *MockGitLab {
	mock := &MockGitLab{
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastAuth = r.Header.Get("Authorization")
		mock.LastQuery = r.URL.Query()
		mock.mu.Unlock()

		// EscapedPath keeps %2F project encodings intact, matching how
		// handlers are keyed.
		mock.mu.RLock()
		handler, exists := mock.handlers[trimAPIPrefix(r.URL.EscapedPath())]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"404 Not Found"}`)
	}))

	return mock
}

func trimAPIPrefix(path string) string {
	const prefix = "/api/v4"
	if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
		return path[len(prefix):]
	}
	return path
}

// URL returns the mock server base URL.
func (m *MockGitLab) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGitLab) Close() {
	m.server.Close()
}

// Reset clears tracking counters.
func (m *MockGitLab) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastAuth = ""
	m.LastQuery = nil
}

// GetRequestCount returns the number of requests served.
func (m *MockGitLab) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// SetHandler installs a custom handler for a path (relative to /api/v4).
func (m *MockGitLab) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockGitLab) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetJSON configures a 200 response with a JSON-encoded body.
func (m *MockGitLab) SetJSON(path string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal mock body: %v", err))
	}
	m.SetResponse(path, MockResponse{StatusCode: http.StatusOK, Body: string(body)})
}

// PaginationStyle selects which continuation signal the mock emits.
type PaginationStyle int

const (
	// StyleNextPageHeader emits X-Next-Page (plus X-Page/X-Total-Pages).
	StyleNextPageHeader PaginationStyle = iota

	// StyleLinkHeader emits an RFC 5988 Link header with rel="next".
	StyleLinkHeader

	// StyleCounterHeaders emits only the X-Page/X-Total-Pages pair.
	StyleCounterHeaders
)

// SetPages serves a multi-page list on path. Each element of pages is one
// page's JSON array body. The requested "page" query parameter selects the
// page (1-based, defaulting to 1).
func (m *MockGitLab) SetPages(path string, style PaginationStyle, pages []string) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		page := 1
		if p := r.URL.Query().Get("page"); p != "" {
			if parsed, err := strconv.Atoi(p); err == nil {
				page = parsed
			}
		}
		if page < 1 || page > len(pages) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, "[]")
			return
		}

		total := len(pages)
		w.Header().Set("Content-Type", "application/json")
		switch style {
		case StyleNextPageHeader:
			w.Header().Set("X-Page", strconv.Itoa(page))
			w.Header().Set("X-Total-Pages", strconv.Itoa(total))
			if page < total {
				w.Header().Set("X-Next-Page", strconv.Itoa(page+1))
			}
		case StyleLinkHeader:
			if page < total {
				next := fmt.Sprintf("%s/api/v4%s?page=%d", m.server.URL, path, page+1)
				w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="next"`, next))
			}
		case StyleCounterHeaders:
			w.Header().Set("X-Page", strconv.Itoa(page))
			w.Header().Set("X-Total-Pages", strconv.Itoa(total))
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(pages[page-1]))
	})
}

// SetStatusSequence serves, for each successive request to path, the next
// response in the sequence; the last entry repeats once exhausted. Used to
// script a pipeline moving through statuses during a wait.
func (m *MockGitLab) SetStatusSequence(path string, responses []MockResponse) {
	var mu sync.Mutex
	calls := 0
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		idx := calls
		calls++
		mu.Unlock()

		if idx >= len(responses) {
			idx = len(responses) - 1
		}
		resp := responses[idx]

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// NewErrorResponse creates a GitLab-style JSON error response.
func NewErrorResponse(status int, message string) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       fmt.Sprintf(`{"message":%q}`, message),
	}
}
