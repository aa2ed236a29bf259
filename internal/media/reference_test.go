package media

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartclips-editor/internal/domain"
)

type countingAllocator struct {
	allocated int
	revoked   map[string]int
}

func newCountingAllocator() *countingAllocator {
	return &countingAllocator{revoked: make(map[string]int)}
}

func (a *countingAllocator) Allocate(path string) (string, error) {
	a.allocated++
	return "blob:" + path, nil
}

func (a *countingAllocator) Revoke(url string) {
	a.revoked[url]++
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLocal_AllocatesPreviewImmediately(t *testing.T) {
	alloc := newCountingAllocator()
	path := writeTempFile(t, "clip.mp4", "data")

	ref, err := NewFactory(alloc, false).Local(path)
	if err != nil {
		t.Fatalf("Local() error = %v", err)
	}

	if alloc.allocated != 1 {
		t.Fatalf("allocated = %d, want 1", alloc.allocated)
	}
	url, err := ref.PlaybackURL()
	if err != nil {
		t.Fatalf("PlaybackURL() error = %v", err)
	}
	if url != "blob:"+path {
		t.Errorf("preview url = %q", url)
	}
	if !ref.IsLocal() || ref.Name() != "clip.mp4" {
		t.Errorf("unexpected kind/name: %s %s", ref.Kind(), ref.Name())
	}
}

func TestLocal_MissingFile(t *testing.T) {
	_, err := NewFactory(newCountingAllocator(), false).Local(filepath.Join(t.TempDir(), "nope.mp4"))
	if !errors.Is(err, domain.ErrMediaUnavailable) {
		t.Fatalf("err = %v, want ErrMediaUnavailable", err)
	}
}

func TestRelease_IsIdempotent(t *testing.T) {
	alloc := newCountingAllocator()
	path := writeTempFile(t, "clip.mp4", "data")
	ref, err := NewFactory(alloc, false).Local(path)
	if err != nil {
		t.Fatalf("Local() error = %v", err)
	}

	ref.Release()
	ref.Release()

	if got := alloc.revoked["blob:"+path]; got != 1 {
		t.Fatalf("revoked %d times, want 1", got)
	}
	if !ref.Released() {
		t.Fatal("reference should report released")
	}
}

func TestUseAfterRelease_ReturnsErrReleased(t *testing.T) {
	path := writeTempFile(t, "clip.mp4", "data")
	ref, _ := NewFactory(newCountingAllocator(), false).Local(path)
	ref.Release()

	if _, err := ref.PlaybackURL(); !errors.Is(err, domain.ErrReleased) {
		t.Errorf("PlaybackURL err = %v, want ErrReleased", err)
	}
	if _, err := ref.Open(); !errors.Is(err, domain.ErrReleased) {
		t.Errorf("Open err = %v, want ErrReleased", err)
	}
}

func TestUseAfterRelease_StrictPanics(t *testing.T) {
	path := writeTempFile(t, "clip.mp4", "data")
	ref, _ := NewFactory(newCountingAllocator(), true).Local(path)
	ref.Release()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on use after release in strict mode")
		}
	}()
	_, _ = ref.PlaybackURL()
}

func TestAdopt_RemovesFileOnRelease(t *testing.T) {
	path := writeTempFile(t, "upload.mp4", "data")
	ref, err := NewFactory(newCountingAllocator(), false).Adopt(path)
	if err != nil {
		t.Fatalf("Adopt() error = %v", err)
	}

	ref.Release()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("adopted file should be removed, stat err = %v", err)
	}
}

func TestOpen_ReadsLocalBytes(t *testing.T) {
	path := writeTempFile(t, "clip.mp4", "frames")
	ref, _ := NewFactory(newCountingAllocator(), false).Local(path)
	defer ref.Release()

	rc, err := ref.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()

	b, _ := io.ReadAll(rc)
	if string(b) != "frames" {
		t.Errorf("read %q, want frames", b)
	}
}

func TestRemote_PlaybackURLIsLocator(t *testing.T) {
	alloc := newCountingAllocator()
	ref := NewFactory(alloc, false).Remote("https://cdn.example.com/out/result.mp4")

	url, err := ref.PlaybackURL()
	if err != nil {
		t.Fatalf("PlaybackURL() error = %v", err)
	}
	if url != "https://cdn.example.com/out/result.mp4" {
		t.Errorf("url = %q", url)
	}
	if ref.Name() != "result.mp4" {
		t.Errorf("name = %q", ref.Name())
	}

	ref.Release()
	if alloc.allocated != 0 || len(alloc.revoked) != 0 {
		t.Fatal("remote reference must not touch the preview allocator")
	}
	if _, err := ref.Open(); !errors.Is(err, domain.ErrReleased) {
		t.Errorf("Open err = %v, want ErrReleased", err)
	}
}

func TestDetectContentType(t *testing.T) {
	tests := map[string]string{
		"a.mp4":  "video/mp4",
		"B.MOV":  "video/quicktime",
		"c.mp3":  "audio/mpeg",
		"d.bin":  "application/octet-stream",
		"noext":  "application/octet-stream",
		"e.webm": "video/webm",
	}
	for name, want := range tests {
		if got := DetectContentType(name); got != want {
			t.Errorf("DetectContentType(%q) = %q, want %q", name, got, want)
		}
	}
	if IsSupported("notes.txt") {
		t.Error("txt should not be supported")
	}
}
