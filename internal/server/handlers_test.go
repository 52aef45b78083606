package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/nrcae/ai-s3-search/internal/config"
	"github.com/nrcae/ai-s3-search/internal/embedding"
	"github.com/nrcae/ai-s3-search/internal/ingest"
	"github.com/nrcae/ai-s3-search/internal/models"
	"github.com/nrcae/ai-s3-search/internal/search"
	"github.com/nrcae/ai-s3-search/internal/vector"
)

type fakeService struct {
	hits       []models.Hit
	err        error
	status     models.Status
	triggerErr error
	last       models.SearchQuery
}

func (f *fakeService) Search(_ context.Context, q models.SearchQuery) ([]models.Hit, error) {
	f.last = q
	return f.hits, f.err
}

func (f *fakeService) Status() models.Status { return f.status }

func (f *fakeService) TriggerIngestion() error { return f.triggerErr }

func newTestServer(svc Service, opts ...Option) http.Handler {
	return NewServer(svc, &config.ServerConfig{Port: 8080}, zap.NewNop(), opts...).Router()
}

func do(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestHandleSearch_Get(t *testing.T) {
	svc := &fakeService{hits: []models.Hit{{Score: 1, Text: "hello world", SourceID: "a.pdf"}}}
	w := do(t, newTestServer(svc), http.MethodGet, "/api/v1/search?q=hello&top_k=3&source=a.pdf", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	if svc.last.Query != "hello" || svc.last.TopK != 3 || svc.last.SourceID != "a.pdf" {
		t.Errorf("query not forwarded: %+v", svc.last)
	}
	var out searchResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Count != 1 || out.Results[0].Text != "hello world" {
		t.Errorf("unexpected response: %+v", out)
	}
}

func TestHandleSearch_Post(t *testing.T) {
	svc := &fakeService{}
	body, _ := json.Marshal(map[string]any{"query": "hello", "top_k": 2})
	w := do(t, newTestServer(svc), http.MethodPost, "/api/v1/search", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	if svc.last.TopK != 2 {
		t.Errorf("top_k: got %d", svc.last.TopK)
	}
	if !strings.Contains(w.Body.String(), `"results":[]`) {
		t.Errorf("empty results should encode as []: %s", w.Body.String())
	}
}

func TestHandleSearch_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		want   int
	}{
		{"bad top_k", "/api/v1/search?q=x&top_k=abc", nil, http.StatusBadRequest},
		{"bad request", "/api/v1/search?q=", fmt.Errorf("%w: empty", search.ErrBadRequest), http.StatusBadRequest},
		{"not ready", "/api/v1/search?q=x", search.ErrNotReady, http.StatusServiceUnavailable},
		{"internal", "/api/v1/search?q=x", errors.New("boom"), http.StatusInternalServerError},
		{"alias", "/search?q=x", search.ErrNotReady, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, newTestServer(&fakeService{err: tt.err}), http.MethodGet, tt.target, nil)
			if w.Code != tt.want {
				t.Errorf("status: got %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestHandleSearch_InvalidBody(t *testing.T) {
	w := do(t, newTestServer(&fakeService{}), http.MethodPost, "/api/v1/search", []byte("{"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleIngest(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusAccepted},
		{ingest.ErrAlreadyRunning, http.StatusConflict},
		{errors.New("no source"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := do(t, newTestServer(&fakeService{triggerErr: tt.err}), http.MethodPost, "/api/v1/ingest", nil)
		if w.Code != tt.want {
			t.Errorf("trigger err %v: got %d, want %d", tt.err, w.Code, tt.want)
		}
	}
}

func TestHandleStatus(t *testing.T) {
	svc := &fakeService{status: models.Status{Ready: true, RecordCount: 42, Indexing: true}}
	w := do(t, newTestServer(svc, WithStatusInfo(map[string]any{"vector_index_type": "flat"})), http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out struct {
		Ready          bool           `json:"ready"`
		RecordCount    int            `json:"record_count"`
		Indexing       bool           `json:"indexing"`
		DiskUsageBytes *int64         `json:"disk_usage_bytes"`
		Config         map[string]any `json:"config"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if !out.Ready || out.RecordCount != 42 || !out.Indexing {
		t.Errorf("unexpected status: %+v", out)
	}
	if out.Config["vector_index_type"] != "flat" {
		t.Errorf("config info missing: %v", out.Config)
	}
	if out.DiskUsageBytes != nil {
		t.Error("disk_usage_bytes should be omitted without disk paths")
	}
}

func TestHandleStatus_WithDiskUsage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.db")
	if err := os.WriteFile(path, []byte("0123456789"), 0600); err != nil {
		t.Fatal(err)
	}
	w := do(t, newTestServer(&fakeService{}, WithDiskPaths(path)), http.MethodGet, "/status", nil)
	var out struct {
		DiskUsageBytes *int64 `json:"disk_usage_bytes"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.DiskUsageBytes == nil || *out.DiskUsageBytes != 10 {
		t.Errorf("disk_usage_bytes: got %v, want 10", out.DiskUsageBytes)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(&fakeService{})
	if w := do(t, h, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Errorf("health: got %d", w.Code)
	}
	w := do(t, h, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "s3search_") {
		t.Error("metrics output should include s3search collectors")
	}
}

func TestSearchEndToEnd(t *testing.T) {
	ctx := context.Background()
	cache := embedding.NewCache(embedding.StaticLoader(embedding.NewMockModel(8)), nil)
	store, err := vector.NewStore(8)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	svc := search.NewService(cache, store, nil, search.DefaultConfig())
	h := newTestServer(svc)

	if w := do(t, h, http.MethodGet, "/api/v1/search?q=hello", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("before ready: got %d", w.Code)
	}

	texts := []string{"hello world", "goodbye moon"}
	vecs, err := cache.Embed(ctx, texts)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Add(ctx, vecs, texts, []string{"a.pdf", "b.pdf"}); err != nil {
		t.Fatal(err)
	}
	store.MarkReady()

	w := do(t, h, http.MethodGet, "/api/v1/search?q=Hello+World", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out searchResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Count != 2 || out.Results[0].SourceID != "a.pdf" {
		t.Errorf("unexpected results: %+v", out.Results)
	}
	if w := do(t, h, http.MethodGet, "/api/v1/search?q=%20%20", nil); w.Code != http.StatusBadRequest {
		t.Errorf("blank query: got %d", w.Code)
	}
}
