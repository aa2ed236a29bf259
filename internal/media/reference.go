package media

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/smartclips-editor/internal/domain"
)

// SourceKind tells where the bytes of a Reference live
type SourceKind string

const (
	SourceLocalFile SourceKind = "local"
	SourceRemoteURL SourceKind = "remote"
)

// PreviewAllocator hands out transient playback URLs for local files
type PreviewAllocator interface {
	Allocate(path string) (string, error)
	Revoke(url string)
}

// Reference is the media currently viewed or edited. A local reference holds
// exactly one live preview URL from allocation until Release.
type Reference struct {
	kind     SourceKind
	locator  string
	previews PreviewAllocator
	strict   bool
	owned    bool

	mu         sync.Mutex
	previewURL string
	released   bool
}

// Factory creates references sharing one preview allocator
type Factory struct {
	previews PreviewAllocator
	strict   bool
}

// NewFactory creates a reference factory. With strict set, use after release
// panics instead of returning domain.ErrReleased.
func NewFactory(previews PreviewAllocator, strict bool) *Factory {
	return &Factory{previews: previews, strict: strict}
}

// Local creates a reference to an existing file and allocates its preview URL
func (f *Factory) Local(filePath string) (*Reference, error) {
	return f.local(filePath, false)
}

// Adopt is Local for files the reference owns: the file is removed on Release
func (f *Factory) Adopt(filePath string) (*Reference, error) {
	return f.local(filePath, true)
}

func (f *Factory) local(filePath string, owned bool) (*Reference, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMediaUnavailable, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", domain.ErrMediaUnavailable, filePath)
	}

	url, err := f.previews.Allocate(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate preview: %w", err)
	}

	return &Reference{
		kind:       SourceLocalFile,
		locator:    filePath,
		previews:   f.previews,
		strict:     f.strict,
		owned:      owned,
		previewURL: url,
	}, nil
}

// Remote creates a reference to media addressed by URL
func (f *Factory) Remote(url string) *Reference {
	return &Reference{
		kind:    SourceRemoteURL,
		locator: url,
		strict:  f.strict,
	}
}

// Kind returns the source kind
func (r *Reference) Kind() SourceKind {
	return r.kind
}

// Locator returns the file path or URL the reference was created from
func (r *Reference) Locator() string {
	return r.locator
}

// Name returns the base name of the locator, used for multipart filenames
func (r *Reference) Name() string {
	if r.kind == SourceRemoteURL {
		return path.Base(r.locator)
	}
	return filepath.Base(r.locator)
}

// IsLocal reports whether the bytes live on the local filesystem
func (r *Reference) IsLocal() bool {
	return r.kind == SourceLocalFile
}

// PlaybackURL returns the URL a media element should load: the preview URL
// for local files, the locator itself for remote media.
func (r *Reference) PlaybackURL() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkLive(); err != nil {
		return "", err
	}
	if r.kind == SourceRemoteURL {
		return r.locator, nil
	}
	return r.previewURL, nil
}

// Open returns the bytes of a local reference
func (r *Reference) Open() (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkLive(); err != nil {
		return nil, err
	}
	if r.kind != SourceLocalFile {
		return nil, fmt.Errorf("%w: remote reference has no local bytes", domain.ErrInvalidInput)
	}

	f, err := os.Open(r.locator)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMediaUnavailable, err)
	}
	return f, nil
}

// Released reports whether Release has been called
func (r *Reference) Released() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

// Release revokes the preview URL. Calling it again is a no-op.
func (r *Reference) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return
	}
	r.released = true

	if r.previewURL != "" {
		r.previews.Revoke(r.previewURL)
		r.previewURL = ""
	}
	if r.owned {
		_ = os.Remove(r.locator)
	}
}

func (r *Reference) checkLive() error {
	if !r.released {
		return nil
	}
	if r.strict {
		panic(fmt.Sprintf("%v: %s", domain.ErrReleased, r.locator))
	}
	return domain.ErrReleased
}
