// Package editor hosts editor sessions: one media reference, recipe and
// playback cursor per session, committed through the submission pipeline.
package editor

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/smartclips-editor/internal/domain"
	"github.com/smartclips-editor/internal/flight"
	"github.com/smartclips-editor/internal/media"
	"github.com/smartclips-editor/internal/playback"
	"github.com/smartclips-editor/pkg/logger"
)

const historyLimit = 100

// Service is the registry of live editor sessions
type Service struct {
	refs    *media.Factory
	workDir string
	deps    deps

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewService creates a session registry. history may be nil.
func NewService(refs *media.Factory, submitter Submitter, guard flight.Guard, history HistoryStore, workDir string, log *logger.Logger) *Service {
	return &Service{
		refs:    refs,
		workDir: workDir,
		deps: deps{
			submitter: submitter,
			guard:     guard,
			history:   history,
			log:       log.WithComponent("editor"),
		},
		sessions: make(map[string]*Session),
	}
}

// CreateFromUpload stores body in the work directory and opens a session on
// it. The stored file is removed when the session lets go of it.
func (s *Service) CreateFromUpload(filename string, body io.Reader, userID string) (*Session, error) {
	ref, err := s.ImportUpload(filename, body)
	if err != nil {
		return nil, err
	}
	return s.Open(ref, userID)
}

// CreateFromURL opens a session on remote media
func (s *Service) CreateFromURL(rawURL, userID string) (*Session, error) {
	ref, err := s.ImportURL(rawURL)
	if err != nil {
		return nil, err
	}
	return s.Open(ref, userID)
}

// ImportUpload stores body and returns an owned local reference
func (s *Service) ImportUpload(filename string, body io.Reader) (*media.Reference, error) {
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || name == "." || !media.IsSupported(name) {
		return nil, fmt.Errorf("%w: unsupported media file %q", domain.ErrInvalidInput, filename)
	}

	if err := os.MkdirAll(s.workDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create work dir: %v", domain.ErrStorageError, err)
	}

	path := filepath.Join(s.workDir, uuid.NewString()+"-"+name)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: create upload file: %v", domain.ErrStorageError, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: write upload: %v", domain.ErrStorageError, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: close upload: %v", domain.ErrStorageError, err)
	}

	ref, err := s.refs.Adopt(path)
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	return ref, nil
}

// ImportURL validates rawURL and returns a remote reference
func (s *Service) ImportURL(rawURL string) (*media.Reference, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: media url must be absolute http(s): %q", domain.ErrInvalidInput, rawURL)
	}
	return s.refs.Remote(u.String()), nil
}

// Open starts a session on ref. The session owns ref from here on.
func (s *Service) Open(ref *media.Reference, userID string) (*Session, error) {
	id := uuid.NewString()
	sess, err := newSession(id, userID, ref, playback.NewMirrorElement(), s.deps)
	if err != nil {
		ref.Release()
		return nil, err
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	s.deps.log.Infow("session opened", "session_id", id, "source", ref.Kind())
	return sess, nil
}

// Get returns a live session
func (s *Service) Get(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

// Close closes and forgets a session
func (s *Service) Close(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	sess.Close()
	return nil
}

// CloseAll closes every session
func (s *Service) CloseAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
	s.deps.log.Infow("all sessions closed", "count", len(sessions))
}

// Len returns the number of live sessions
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// History lists the recorded edits of a session
func (s *Service) History(ctx context.Context, id string) ([]*domain.EditRecord, error) {
	if s.deps.history == nil {
		return nil, domain.ErrHistoryDisabled
	}
	return s.deps.history.ListBySession(ctx, id, historyLimit)
}
