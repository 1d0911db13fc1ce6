package modelscope

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"webui/internal/domain/jsoncfg"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func stubResponse(code int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: code,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func pngBytes(t testing.TB, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// fakeAPI plays the inference API, the image host and the upload endpoint.
// Status bodies may contain {{base}}, replaced by the server URL.
type fakeAPI struct {
	t *testing.T

	mu             sync.Mutex
	submitStatus   int
	submitBody     string
	statuses       []string
	statusCodes    []int
	downloadStatus int
	downloadBody   []byte
	uploadStatus   int
	uploadBody     string

	submits, polls, uploads, downloads int
	lastSubmit                         map[string]any
	lastSubmitHeader                   http.Header
	lastStatusHeader                   http.Header
	lastUploadName                     string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	return &fakeAPI{
		t:              t,
		submitStatus:   http.StatusOK,
		submitBody:     `{"task_id":"abc"}`,
		statuses:       []string{`{"task_status":"SUCCEED","output_images":["{{base}}/img.png"]}`},
		downloadStatus: http.StatusOK,
		downloadBody:   pngBytes(t, 8, 6),
		uploadStatus:   http.StatusOK,
		uploadBody:     `{"success":true,"data":"https://img.example.com/u.jpg"}`,
	}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/images/generations":
		f.submits++
		f.lastSubmitHeader = r.Header.Clone()
		f.lastSubmit = map[string]any{}
		if err := json.NewDecoder(r.Body).Decode(&f.lastSubmit); err != nil {
			f.t.Errorf("decode submission: %v", err)
		}
		w.WriteHeader(f.submitStatus)
		io.WriteString(w, f.submitBody)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/tasks/"):
		f.lastStatusHeader = r.Header.Clone()
		idx := f.polls
		if idx >= len(f.statuses) {
			idx = len(f.statuses) - 1
		}
		f.polls++
		// a zero or missing code means 200
		if idx < len(f.statusCodes) && f.statusCodes[idx] != 0 {
			w.WriteHeader(f.statusCodes[idx])
		}
		body := strings.ReplaceAll(f.statuses[idx], "{{base}}", "http://"+r.Host)
		io.WriteString(w, body)
	case r.Method == http.MethodPost && r.URL.Path == "/upload":
		f.uploads++
		file, header, err := r.FormFile("file")
		if err != nil {
			f.t.Errorf("upload without file field: %v", err)
		} else {
			f.lastUploadName = header.Filename
			file.Close()
		}
		w.WriteHeader(f.uploadStatus)
		io.WriteString(w, f.uploadBody)
	case r.Method == http.MethodGet && r.URL.Path == "/img.png":
		f.downloads++
		w.WriteHeader(f.downloadStatus)
		w.Write(f.downloadBody)
	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeAPI) requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits + f.polls + f.uploads + f.downloads
}

func newTestClient(t *testing.T, api *fakeAPI, settings jsoncfg.Settings) (*Client, *fakeClock, string) {
	return newTestClientWith(t, api, settings, nil)
}

// newTestClientWith lets wrap intercept requests before they reach api.
func newTestClientWith(t *testing.T, api *fakeAPI, settings jsoncfg.Settings, wrap func(http.RoundTripper) http.RoundTripper) (*Client, *fakeClock, string) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	clock := newFakeClock()
	tempDir := t.TempDir()
	httpClient := srv.Client()
	if wrap != nil {
		httpClient = &http.Client{Transport: wrap(httpClient.Transport)}
	}
	client := NewClient(Options{
		APIBase:    srv.URL + "/v1",
		UploadURL:  srv.URL + "/upload",
		Settings:   settings,
		HTTPClient: httpClient,
		Clock:      clock,
		TempDir:    tempDir,
	})
	return client, clock, tempDir
}

func statusBody(status string) string {
	return fmt.Sprintf(`{"task_status":%q}`, status)
}
