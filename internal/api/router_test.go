package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smartclips-editor/internal/domain"
	"github.com/smartclips-editor/internal/flight"
	"github.com/smartclips-editor/internal/media"
	"github.com/smartclips-editor/internal/service/editor"
	"github.com/smartclips-editor/internal/service/upload"
	"github.com/smartclips-editor/internal/submission"
	"github.com/smartclips-editor/pkg/logger"
)

type memHistory struct {
	mu      sync.Mutex
	records []*domain.EditRecord
}

func (m *memHistory) Record(_ context.Context, rec *domain.EditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memHistory) ListBySession(_ context.Context, sessionID string, _ int) ([]*domain.EditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.EditRecord
	for _, r := range m.records {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

type testAPI struct {
	handler  http.Handler
	previews *media.PreviewServer
	gotAuth  chan string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	return newTestAPIWith(t, http.StatusOK, false)
}

// newTestAPIWith answers processing requests with status; strict turns
// processing failures into errors instead of fallback media.
func newTestAPIWith(t *testing.T, status int, strict bool) *testAPI {
	t.Helper()
	gotAuth := make(chan string, 8)
	processing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		gotAuth <- r.Header.Get("Authorization")
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":"encoder crashed"}`))
			return
		}
		w.Write([]byte(`{"url":"https://cdn.example.com/out` + r.URL.Path + `.mp4"}`))
	}))
	t.Cleanup(processing.Close)

	log := logger.Nop()
	previews := media.NewPreviewServer("http://editor.test")
	refs := media.NewFactory(previews, false)
	pipeline := submission.NewPipeline(submission.Config{
		Endpoint:    processing.URL,
		Timeout:     5 * time.Second,
		FallbackURL: "https://cdn.example.com/fallback.mp4",
		Strict:      strict,
	}, refs, log)
	svc := editor.NewService(refs, pipeline, flight.NewLocalGuard(), &memHistory{}, t.TempDir(), log)
	t.Cleanup(svc.CloseAll)

	return &testAPI{
		handler: NewRouter(RouterConfig{
			Editor:    svc,
			Publisher: upload.NewService(nil, time.Hour, log),
			Previews:  previews,
			Logger:    log,
		}),
		previews: previews,
		gotAuth:  gotAuth,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer user-token")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var out map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func (a *testAPI) createFromURL(t *testing.T) string {
	t.Helper()
	rec, out := a.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{"url": "https://cdn.example.com/source.mp4"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	return out["id"].(string)
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)
	rec, out := a.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK || out["status"] != "healthy" {
		t.Fatalf("health = %d %v", rec.Code, out)
	}
}

func TestSessionFlow_TrimCommit(t *testing.T) {
	a := newTestAPI(t)
	id := a.createFromURL(t)
	base := "/api/v1/sessions/" + id

	rec, _ := a.do(t, http.MethodPost, base+"/playback/events", map[string]interface{}{"type": "loadedmetadata", "value": 42})
	if rec.Code != http.StatusOK {
		t.Fatalf("event status = %d: %s", rec.Code, rec.Body.String())
	}

	rec, out := a.do(t, http.MethodPut, base+"/recipe/trim", map[string]float64{"startTime": 2, "endTime": 12})
	if rec.Code != http.StatusOK {
		t.Fatalf("trim status = %d: %s", rec.Code, rec.Body.String())
	}
	if valid := out["recipe"].(map[string]interface{})["valid"]; valid != true {
		t.Fatalf("recipe should be valid: %v", out["recipe"])
	}

	rec, out = a.do(t, http.MethodPost, base+"/commit", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("commit status = %d: %s", rec.Code, rec.Body.String())
	}
	result := out["result"].(map[string]interface{})
	if result["degraded"] != false || result["media_url"] != "https://cdn.example.com/out/api/video/trim.mp4" {
		t.Errorf("result = %v", result)
	}
	if auth := <-a.gotAuth; auth != "Bearer user-token" {
		t.Errorf("forwarded auth = %q", auth)
	}

	rec, out = a.do(t, http.MethodGet, base+"/history", nil)
	if rec.Code != http.StatusOK || out["count"].(float64) != 1 {
		t.Fatalf("history = %d %v", rec.Code, out)
	}

	rec, out = a.do(t, http.MethodPost, base+"/publish", nil)
	if rec.Code != http.StatusOK || out["uploaded"] != false {
		t.Fatalf("publish of remote media = %d %v", rec.Code, out)
	}
}

func TestCommit_InvalidRecipe(t *testing.T) {
	a := newTestAPI(t)
	id := a.createFromURL(t)
	base := "/api/v1/sessions/" + id

	a.do(t, http.MethodPut, base+"/mode", map[string]string{"mode": "speed"})
	a.do(t, http.MethodPut, base+"/recipe/speed", map[string]float64{"speedFactor": 9})

	rec, _ := a.do(t, http.MethodPost, base+"/commit", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body.String())
	}
}

func TestCommit_StrictFailureIsBadGateway(t *testing.T) {
	a := newTestAPIWith(t, http.StatusInternalServerError, true)
	id := a.createFromURL(t)
	base := "/api/v1/sessions/" + id

	a.do(t, http.MethodPut, base+"/mode", map[string]string{"mode": "effect"})
	a.do(t, http.MethodPut, base+"/recipe/effect", map[string]string{"effectType": "sepia"})

	rec, _ := a.do(t, http.MethodPost, base+"/commit", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502: %s", rec.Code, rec.Body.String())
	}

	rec, out := a.do(t, http.MethodGet, base, nil)
	if rec.Code != http.StatusOK || out["state"] != "failed" || out["last_error"] == nil {
		t.Fatalf("session = %d %v", rec.Code, out)
	}
	if m := out["media"].(map[string]interface{}); m["playback_url"] != "https://cdn.example.com/source.mp4" {
		t.Errorf("media = %v, want the source kept", m)
	}
}

func TestSelectMode_Unknown(t *testing.T) {
	a := newTestAPI(t)
	id := a.createFromURL(t)

	rec, _ := a.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/mode", map[string]string{"mode": "rotate"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSession_NotFoundAndClosed(t *testing.T) {
	a := newTestAPI(t)

	rec, _ := a.do(t, http.MethodGet, "/api/v1/sessions/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	id := a.createFromURL(t)
	rec, _ = a.do(t, http.MethodDelete, "/api/v1/sessions/"+id, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec, _ = a.do(t, http.MethodDelete, "/api/v1/sessions/"+id, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestCreateSession_UploadServesPreview(t *testing.T) {
	a := newTestAPI(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "clip.mp4")
	part.Write([]byte("0123456789"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}

	var view struct {
		ID    string `json:"id"`
		Media struct {
			Kind        string `json:"kind"`
			PlaybackURL string `json:"playback_url"`
		} `json:"media"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.Media.Kind != "local" || !strings.HasPrefix(view.Media.PlaybackURL, "http://editor.test/preview/") {
		t.Fatalf("media = %+v", view.Media)
	}

	u, _ := url.Parse(view.Media.PlaybackURL)
	preview := httptest.NewRequest(http.MethodGet, u.Path, nil)
	preview.Header.Set("Range", "bytes=2-5")
	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, preview)
	if rec.Code != http.StatusPartialContent || rec.Body.String() != "2345" {
		t.Fatalf("preview = %d %q", rec.Code, rec.Body.String())
	}

	a.do(t, http.MethodDelete, "/api/v1/sessions/"+view.ID, nil)
	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, u.Path, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("revoked preview status = %d, want 404", rec.Code)
	}
}

func TestCreateSession_RejectsBadURL(t *testing.T) {
	a := newTestAPI(t)
	rec, _ := a.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{"url": "file:///etc/passwd"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":  "abc",
		"bearer  xyz": "xyz",
		"Basic abc":   "",
		"":            "",
	}
	for header, want := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", header)
		if got := bearerToken(r); got != want {
			t.Errorf("bearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}
