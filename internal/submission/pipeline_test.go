package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smartclips-editor/internal/domain"
	"github.com/smartclips-editor/internal/media"
	"github.com/smartclips-editor/internal/recipe"
	"github.com/smartclips-editor/pkg/logger"
)

const fallbackURL = "https://res.cloudinary.com/demo/video/upload/v1690380631/samples/sea-turtle.mp4"

func testFactory() *media.Factory {
	return media.NewFactory(media.NewPreviewServer("http://preview.local"), false)
}

func testPipeline(endpoint string, strict bool) *Pipeline {
	return NewPipeline(Config{
		Endpoint:    endpoint,
		Timeout:     5 * time.Second,
		FallbackURL: fallbackURL,
		Strict:      strict,
	}, testFactory(), logger.Nop())
}

func localRef(t *testing.T, name, content string) *media.Reference {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	ref, err := testFactory().Local(path)
	if err != nil {
		t.Fatalf("Local() error = %v", err)
	}
	t.Cleanup(ref.Release)
	return ref
}

func trimRecipe(duration, start, end float64) *recipe.Recipe {
	r := recipe.New()
	r.SetDuration(duration)
	r.SetTrim(start, end)
	return r
}

func TestSubmit_TrimSuccess(t *testing.T) {
	var gotAuth, gotRequestID string
	var gotFields map[string][]string
	var gotFile string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/video/trim" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-Id")

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotFields = r.MultipartForm.Value
		if f, _, err := r.FormFile("file"); err == nil {
			b, _ := io.ReadAll(f)
			gotFile = string(b)
			f.Close()
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"url":      "https://cdn.example.com/out/trimmed.mp4",
			"duration": 15,
		})
	}))
	defer server.Close()

	ref := localRef(t, "clip.mp4", "video-bytes")
	result, err := testPipeline(server.URL, false).Submit(context.Background(), ref, trimRecipe(30, 5, 20), "test-token")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if result.Outcome != OutcomeSucceeded || result.Degraded() {
		t.Errorf("outcome = %s, want succeeded", result.Outcome)
	}
	if result.Media.Locator() != "https://cdn.example.com/out/trimmed.mp4" {
		t.Errorf("result locator = %q", result.Media.Locator())
	}
	if result.Media.IsLocal() {
		t.Error("result should be a remote reference")
	}
	if result.Duration != 15 {
		t.Errorf("duration = %v, want 15", result.Duration)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotRequestID == "" || gotRequestID != result.RequestID {
		t.Errorf("request id header = %q, result = %q", gotRequestID, result.RequestID)
	}
	if gotFile != "video-bytes" {
		t.Errorf("file part = %q", gotFile)
	}
	if gotFields["startTime"][0] != "5" || gotFields["endTime"][0] != "20" {
		t.Errorf("fields = %v", gotFields)
	}
}

func TestSubmit_RemoteSourceSendsURL(t *testing.T) {
	var sourceURL, speed string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseMultipartForm(1 << 20)
		sourceURL = r.FormValue("sourceUrl")
		speed = r.FormValue("speedFactor")
		if _, _, err := r.FormFile("file"); err == nil {
			t.Error("remote source must not be uploaded as a file")
		}
		w.Write([]byte(`{"url":"https://cdn.example.com/out/fast.mp4"}`))
	}))
	defer server.Close()

	ref := testFactory().Remote("https://cdn.example.com/in/source.mp4")
	r := recipe.New()
	_ = r.SetMode(recipe.ModeSpeed)
	r.SetSpeed(2)

	if _, err := testPipeline(server.URL, false).Submit(context.Background(), ref, r, ""); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if sourceURL != "https://cdn.example.com/in/source.mp4" {
		t.Errorf("sourceUrl = %q", sourceURL)
	}
	if speed != "2" {
		t.Errorf("speedFactor = %q", speed)
	}
}

func TestSubmit_SplitScreenSendsBothSources(t *testing.T) {
	var file1, url2, layout string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/video/split-screen" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_ = r.ParseMultipartForm(1 << 20)
		if f, _, err := r.FormFile("file1"); err == nil {
			b, _ := io.ReadAll(f)
			file1 = string(b)
			f.Close()
		}
		url2 = r.FormValue("sourceUrl2")
		layout = r.FormValue("layout")
		w.Write([]byte(`{"url":"https://cdn.example.com/out/split.mp4"}`))
	}))
	defer server.Close()

	primary := localRef(t, "left.mp4", "left")
	r := recipe.New()
	_ = r.SetMode(recipe.ModeSplitScreen)
	r.SetSplitScreen(testFactory().Remote("https://cdn.example.com/right.mp4"), recipe.LayoutVertical)

	if _, err := testPipeline(server.URL, false).Submit(context.Background(), primary, r, "tok"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if file1 != "left" || url2 != "https://cdn.example.com/right.mp4" || layout != "vertical" {
		t.Errorf("file1=%q url2=%q layout=%q", file1, url2, layout)
	}
}

func TestSubmit_InvalidRecipeNeverSent(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	_, err := testPipeline(server.URL, false).Submit(context.Background(), localRef(t, "a.mp4", "x"), trimRecipe(45, 20, 15), "tok")
	if !errors.Is(err, domain.ErrInvalidRecipe) {
		t.Fatalf("err = %v, want ErrInvalidRecipe", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatal("invalid recipe reached the network")
	}
}

func TestSubmit_ServerErrorDegradesToFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"ffmpeg crashed"}`))
	}))
	defer server.Close()

	result, err := testPipeline(server.URL, false).Submit(context.Background(), localRef(t, "a.mp4", "x"), trimRecipe(30, 0, 10), "tok")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !result.Degraded() {
		t.Fatal("expected degraded outcome")
	}
	if result.Media.Locator() != fallbackURL {
		t.Errorf("locator = %q, want fallback", result.Media.Locator())
	}
	var remoteErr *domain.RemoteProcessingError
	if !errors.As(result.Cause, &remoteErr) || remoteErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("cause = %v", result.Cause)
	}
}

func TestSubmit_NetworkErrorDegradesToFallback(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	result, err := testPipeline(endpoint, false).Submit(context.Background(), localRef(t, "a.mp4", "x"), trimRecipe(30, 0, 10), "tok")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !result.Degraded() || result.Media.Locator() != fallbackURL {
		t.Fatalf("result = %+v, want fallback", result)
	}
	if !errors.Is(result.Cause, domain.ErrTransport) {
		t.Errorf("cause = %v, want transport error", result.Cause)
	}
}

func TestSubmit_MissingResultURLDegrades(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	result, err := testPipeline(server.URL, false).Submit(context.Background(), localRef(t, "a.mp4", "x"), trimRecipe(30, 0, 10), "tok")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !errors.Is(result.Cause, domain.ErrRemoteProcessing) {
		t.Errorf("cause = %v, want remote processing error", result.Cause)
	}
}

func TestSubmit_StrictSurfacesFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	result, err := testPipeline(server.URL, true).Submit(context.Background(), localRef(t, "a.mp4", "x"), trimRecipe(30, 0, 10), "tok")
	if result != nil {
		t.Fatalf("strict pipeline returned a result: %+v", result)
	}
	var remoteErr *domain.RemoteProcessingError
	if !errors.As(err, &remoteErr) || remoteErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("err = %v, want RemoteProcessingError 502", err)
	}
}

func TestSubmit_CallerCancellationIsNotMasked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Write([]byte(`{"url":"https://cdn.example.com/out.mp4"}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testPipeline(server.URL, false).Submit(ctx, localRef(t, "a.mp4", "x"), trimRecipe(30, 0, 10), "tok")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestSubmit_TimeoutDegrades(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		<-release
	}))
	defer server.Close()
	defer close(release)

	p := NewPipeline(Config{
		Endpoint:    server.URL,
		Timeout:     50 * time.Millisecond,
		FallbackURL: fallbackURL,
	}, testFactory(), logger.Nop())

	result, err := p.Submit(context.Background(), localRef(t, "a.mp4", "x"), trimRecipe(30, 0, 10), "tok")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !result.Degraded() {
		t.Fatal("timed out request should degrade")
	}
}

func TestSubmit_ReleasedSourceIsRejected(t *testing.T) {
	ref := localRef(t, "a.mp4", "x")
	ref.Release()

	_, err := testPipeline("http://127.0.0.1:1", false).Submit(context.Background(), ref, trimRecipe(30, 0, 10), "tok")
	if !errors.Is(err, domain.ErrReleased) {
		t.Fatalf("err = %v, want ErrReleased", err)
	}
}

func TestSubmit_LogsMaskedToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Write([]byte(`{"url":"https://cdn.example.com/out.mp4"}`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	log := logger.NewWithWriter("info", "json", &buf)
	p := NewPipeline(Config{Endpoint: server.URL, Timeout: 5 * time.Second, FallbackURL: fallbackURL}, testFactory(), log)

	const token = "secret-bearer-token-1234"
	if _, err := p.Submit(context.Background(), localRef(t, "a.mp4", "x"), trimRecipe(30, 0, 10), token); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	_ = log.Sync()

	if strings.Contains(buf.String(), token) {
		t.Fatalf("bearer token leaked into logs: %s", buf.String())
	}
	if !strings.Contains(buf.String(), logger.SanitizeToken(token)) {
		t.Errorf("masked token missing from logs: %s", buf.String())
	}
}
