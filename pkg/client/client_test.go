package client

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/qodev/gitlab-api-client/internal/testutil"
)

func newTestClient(t *testing.T, mock *testutil.MockGitLab) *Client {
	t.Helper()
	c, err := New(Config{Token: "test-token", BaseURL: mock.URL()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestDo_DecodesJSON(t *testing.T) {
	mock := testutil.NewMockGitLab()
	defer mock.Close()
	mock.SetJSON("/projects/42", map[string]any{"id": 42, "name": "app"})

	c := newTestClient(t, mock)

	var project struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	err := c.Do(context.Background(), Call{Method: http.MethodGet, Path: "/projects/42"}, &project)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if project.ID != 42 || project.Name != "app" {
		t.Errorf("Decoded %+v, want id=42 name=app", project)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("Request count = %d, want exactly 1 (no retries)", mock.GetRequestCount())
	}
}

func TestDo_SendsBearerToken(t *testing.T) {
	mock := testutil.NewMockGitLab()
	defer mock.Close()
	mock.SetJSON("/version", map[string]string{"version": "17.0.0"})

	c := newTestClient(t, mock)

	var out map[string]string
	if err := c.Do(context.Background(), Call{Method: http.MethodGet, Path: "/version"}, &out); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if mock.LastAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want %q", mock.LastAuth, "Bearer test-token")
	}
}

func TestDo_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantKind ErrorKind
	}{
		{"401 maps to auth", 401, KindAuth},
		{"403 maps to auth", 403, KindAuth},
		{"404 maps to not found", 404, KindNotFound},
		{"422 maps to api", 422, KindAPI},
		{"500 maps to api", 500, KindAPI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockGitLab()
			defer mock.Close()
			mock.SetResponse("/projects/1", testutil.NewErrorResponse(tt.status, "nope"))

			c := newTestClient(t, mock)

			var out map[string]any
			err := c.Do(context.Background(), Call{Method: http.MethodGet, Path: "/projects/1"}, &out)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if got := KindOf(err); got != tt.wantKind {
				t.Errorf("KindOf = %q, want %q", got, tt.wantKind)
			}
			if mock.GetRequestCount() != 1 {
				t.Errorf("Request count = %d, want exactly 1 (errors are not retried)", mock.GetRequestCount())
			}
		})
	}
}

func TestDo_ErrorBodyVerbatim(t *testing.T) {
	body := `{"message":{"title":["can't be blank"]}}`
	mock := testutil.NewMockGitLab()
	defer mock.Close()
	mock.SetResponse("/projects/1/issues", testutil.MockResponse{StatusCode: 400, Body: body})

	c := newTestClient(t, mock)

	err := c.Do(context.Background(), Call{Method: http.MethodPost, Path: "/projects/1/issues"}, nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Body != body {
		t.Errorf("Body = %q, want the raw response %q", apiErr.Body, body)
	}
}

func TestDo_RawBytes(t *testing.T) {
	logContent := "line 1\nline 2\nnot json at all"
	mock := testutil.NewMockGitLab()
	defer mock.Close()
	mock.SetResponse("/projects/1/jobs/5/trace", testutil.MockResponse{
		StatusCode: 200,
		Body:       logContent,
		Headers:    map[string]string{"Content-Type": "text/plain"},
	})

	c := newTestClient(t, mock)

	var raw []byte
	err := c.Do(context.Background(), Call{Method: http.MethodGet, Path: "/projects/1/jobs/5/trace"}, &raw)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if string(raw) != logContent {
		t.Errorf("Raw body = %q, want %q", raw, logContent)
	}
}

func TestDo_NilOutDiscardsBody(t *testing.T) {
	mock := testutil.NewMockGitLab()
	defer mock.Close()
	mock.SetResponse("/projects/1/variables/KEY", testutil.MockResponse{StatusCode: 204})

	c := newTestClient(t, mock)

	err := c.Do(context.Background(), Call{Method: http.MethodDelete, Path: "/projects/1/variables/KEY"}, nil)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
}

func TestDo_UndecodableSuccessBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"html instead of json", "<html>login page</html>"},
		{"empty body", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockGitLab()
			defer mock.Close()
			mock.SetResponse("/projects/1", testutil.MockResponse{StatusCode: 200, Body: tt.body})

			c := newTestClient(t, mock)

			var out map[string]any
			err := c.Do(context.Background(), Call{Method: http.MethodGet, Path: "/projects/1"}, &out)

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Expected *APIError, got %T: %v", err, err)
			}
			// The 2xx status is preserved so callers can tell a decode
			// failure apart from a server-side error.
			if apiErr.StatusCode != 200 {
				t.Errorf("StatusCode = %d, want 200", apiErr.StatusCode)
			}
		})
	}
}

func TestDo_TransportError(t *testing.T) {
	mock := testutil.NewMockGitLab()
	mock.Close() // nothing listening anymore

	c, err := New(Config{Token: "test-token", BaseURL: mock.URL()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var out map[string]any
	err = c.Do(context.Background(), Call{Method: http.MethodGet, Path: "/version"}, &out)

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("Expected *TransportError, got %T: %v", err, err)
	}
	if transportErr.Unwrap() == nil {
		t.Error("Transport cause should be preserved")
	}
}

func TestDo_QueryParameters(t *testing.T) {
	mock := testutil.NewMockGitLab()
	defer mock.Close()
	mock.SetJSON("/projects/1/merge_requests", []any{})

	c := newTestClient(t, mock)

	var out []map[string]any
	err := c.Do(context.Background(), Call{
		Method: http.MethodGet,
		Path:   "/projects/1/merge_requests",
		Query:  Params{"state": "opened", "labels": []string{"bug", "urgent"}},
	}, &out)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	if got := mock.LastQuery["state"]; len(got) != 1 || got[0] != "opened" {
		t.Errorf("state = %v, want [opened]", got)
	}
	if got := mock.LastQuery["labels"]; len(got) != 1 || got[0] != "bug,urgent" {
		t.Errorf("labels = %v, want [bug,urgent]", got)
	}
}

func TestDo_MultipartUpload(t *testing.T) {
	var (
		gotContentType string
		gotField       string
		gotFilename    string
		gotPartType    string
		gotContent     []byte
	)

	mock := testutil.NewMockGitLab()
	defer mock.Close()
	mock.SetHandler("/projects/1/uploads", func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")

		_, params, err := mime.ParseMediaType(gotContentType)
		if err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		reader := multipart.NewReader(r.Body, params["boundary"])
		part, err := reader.NextPart()
		if err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		gotField = part.FormName()
		gotFilename = part.FileName()
		gotPartType = part.Header.Get("Content-Type")
		gotContent, _ = io.ReadAll(part)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"url":"/uploads/abc/report.html","markdown":"[report.html](/uploads/abc/report.html)"}`))
	})

	c := newTestClient(t, mock)

	var upload struct {
		URL string `json:"url"`
	}
	err := c.Do(context.Background(), Call{
		Method: http.MethodPost,
		Path:   "/projects/1/uploads",
		Upload: &Multipart{
			Filename:    "report.html",
			Content:     []byte("<html>report</html>"),
			ContentType: "text/html",
		},
	}, &upload)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	mediaType, _, err := mime.ParseMediaType(gotContentType)
	if err != nil || mediaType != "multipart/form-data" {
		t.Errorf("Content-Type = %q, want multipart/form-data", gotContentType)
	}
	if gotField != "file" {
		t.Errorf("Field = %q, want %q", gotField, "file")
	}
	if gotFilename != "report.html" {
		t.Errorf("Filename = %q, want %q", gotFilename, "report.html")
	}
	// The caller-provided content type is used as-is, never sniffed.
	if gotPartType != "text/html" {
		t.Errorf("Part Content-Type = %q, want %q", gotPartType, "text/html")
	}
	if string(gotContent) != "<html>report</html>" {
		t.Errorf("Content = %q, want the original bytes", gotContent)
	}
	if upload.URL == "" {
		t.Error("Upload response should decode")
	}
}

func TestFetchPage_EmptyPageTerminates(t *testing.T) {
	mock := testutil.NewMockGitLab()
	defer mock.Close()
	// Headers advertise a next page, but the body is empty: terminate.
	mock.SetResponse("/projects/1/issues", testutil.MockResponse{
		StatusCode: 200,
		Body:       "[]",
		Headers:    map[string]string{"X-Next-Page": "2"},
	})

	c := newTestClient(t, mock)

	items, next, err := c.FetchPage(context.Background(),
		Call{Method: http.MethodGet, Path: "/projects/1/issues"}, Cursor{})
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Items = %d, want 0", len(items))
	}
	if !next.Empty() {
		t.Errorf("Cursor = %+v, want empty", next)
	}
}

func TestFetchPage_CursorOverridesPageParam(t *testing.T) {
	mock := testutil.NewMockGitLab()
	defer mock.Close()
	mock.SetPages("/projects/1/issues", testutil.StyleNextPageHeader,
		[]string{`[{"iid":1}]`, `[{"iid":2}]`})

	c := newTestClient(t, mock)
	call := Call{Method: http.MethodGet, Path: "/projects/1/issues"}

	_, next, err := c.FetchPage(context.Background(), call, Cursor{})
	if err != nil {
		t.Fatalf("First page failed: %v", err)
	}
	if next.NextPage != 2 {
		t.Fatalf("NextPage = %d, want 2", next.NextPage)
	}

	if _, _, err := c.FetchPage(context.Background(), call, next); err != nil {
		t.Fatalf("Second page failed: %v", err)
	}
	if got := mock.LastQuery["page"]; len(got) != 1 || got[0] != "2" {
		t.Errorf("page = %v, want [2]", got)
	}
}

func TestNextCursor(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    Cursor
	}{
		{
			name:    "x-next-page wins",
			headers: map[string]string{"X-Next-Page": "3", "X-Page": "2", "X-Total-Pages": "5"},
			want:    Cursor{NextPage: 3},
		},
		{
			name:    "link header",
			headers: map[string]string{"Link": `<https://gitlab.example.com/api/v4/projects?page=2>; rel="next", <https://gitlab.example.com/api/v4/projects?page=9>; rel="last"`},
			want:    Cursor{NextURL: "https://gitlab.example.com/api/v4/projects?page=2"},
		},
		{
			name:    "counter pair",
			headers: map[string]string{"X-Page": "1", "X-Total-Pages": "4"},
			want:    Cursor{NextPage: 2},
		},
		{
			name:    "counter pair on last page",
			headers: map[string]string{"X-Page": "4", "X-Total-Pages": "4"},
			want:    Cursor{},
		},
		{
			name:    "link without next rel",
			headers: map[string]string{"Link": `<https://gitlab.example.com/api/v4/projects?page=9>; rel="last"`},
			want:    Cursor{},
		},
		{
			name:    "empty x-next-page falls through to link",
			headers: map[string]string{"X-Next-Page": "", "Link": `<https://gitlab.example.com/api/v4/projects?page=2>; rel="next"`},
			want:    Cursor{NextURL: "https://gitlab.example.com/api/v4/projects?page=2"},
		},
		{
			name:    "no signal",
			headers: map[string]string{},
			want:    Cursor{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for key, value := range tt.headers {
				h.Set(key, value)
			}
			if got := nextCursor(h); got != tt.want {
				t.Errorf("nextCursor = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseNextLink(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{
			name:   "next among several rels",
			header: `<http://x/api/v4/p?page=2>; rel="next", <http://x/api/v4/p?page=1>; rel="first", <http://x/api/v4/p?page=9>; rel="last"`,
			want:   "http://x/api/v4/p?page=2",
		},
		{
			name:   "no next",
			header: `<http://x/api/v4/p?page=9>; rel="last"`,
			want:   "",
		},
		{
			name:   "empty header",
			header: "",
			want:   "",
		},
		{
			name:   "malformed brackets",
			header: `http://x/api/v4/p?page=2; rel="next"`,
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseNextLink(tt.header); got != tt.want {
				t.Errorf("parseNextLink = %q, want %q", got, tt.want)
			}
		})
	}
}
