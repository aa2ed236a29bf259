package media

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// PreviewPrefix is the path the preview handler is mounted on
const PreviewPrefix = "/preview/"

// PreviewServer serves local files under revocable, unguessable URLs so a
// browser can play them without a round-trip to storage.
type PreviewServer struct {
	baseURL string

	mu    sync.RWMutex
	files map[string]string
}

// NewPreviewServer creates a preview server whose URLs start with baseURL
func NewPreviewServer(baseURL string) *PreviewServer {
	return &PreviewServer{
		baseURL: strings.TrimRight(baseURL, "/"),
		files:   make(map[string]string),
	}
}

// Allocate registers path and returns its preview URL
func (s *PreviewServer) Allocate(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty preview path")
	}

	token := uuid.NewString()

	s.mu.Lock()
	s.files[token] = path
	s.mu.Unlock()

	return s.baseURL + PreviewPrefix + token, nil
}

// Revoke unregisters a preview URL. Unknown URLs are ignored.
func (s *PreviewServer) Revoke(url string) {
	token := strings.TrimPrefix(url, s.baseURL+PreviewPrefix)
	if token == url {
		return
	}

	s.mu.Lock()
	delete(s.files, token)
	s.mu.Unlock()
}

// Live returns the number of preview URLs not yet revoked
func (s *PreviewServer) Live() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// Routes returns the preview handler, to be mounted at PreviewPrefix
func (s *PreviewServer) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{token}", s.serve)
	r.Head("/{token}", s.serve)
	return r
}

func (s *PreviewServer) serve(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	s.mu.RLock()
	path, ok := s.files[token]
	s.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "failed to stat preview", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", DetectContentType(path))
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}
