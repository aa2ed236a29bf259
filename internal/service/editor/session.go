package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smartclips-editor/internal/domain"
	"github.com/smartclips-editor/internal/flight"
	"github.com/smartclips-editor/internal/media"
	"github.com/smartclips-editor/internal/playback"
	"github.com/smartclips-editor/internal/recipe"
	"github.com/smartclips-editor/internal/submission"
	"github.com/smartclips-editor/pkg/logger"
)

// State is the commit lifecycle of a session
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateSucceeded  State = "succeeded"
	StateDegraded   State = "degraded"
	StateFailed     State = "failed"
)

const historyTimeout = 5 * time.Second

// Submitter sends a validated payload for processing
type Submitter interface {
	Send(ctx context.Context, ref *media.Reference, payload recipe.Payload, token string) (*submission.Result, error)
}

// HistoryStore records committed edits
type HistoryStore interface {
	Record(ctx context.Context, rec *domain.EditRecord) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*domain.EditRecord, error)
}

type deps struct {
	submitter Submitter
	guard     flight.Guard
	history   HistoryStore
	log       *logger.Logger
}

// Session owns the media being edited, its recipe and its playback cursor.
// All methods are safe for concurrent use.
type Session struct {
	id        string
	userID    string
	createdAt time.Time
	deps

	cursor  *playback.Cursor
	element playback.Element

	mu      sync.Mutex
	current *media.Reference
	recipe  *recipe.Recipe
	state   State
	lastErr error
	closed  bool

	// busy counts commits and holds reading media outside mu; releases
	// queue in pending until it drops to zero
	busy    int
	pending []*media.Reference
}

func newSession(id, userID string, ref *media.Reference, el playback.Element, d deps) (*Session, error) {
	playURL, err := ref.PlaybackURL()
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:        id,
		userID:    userID,
		createdAt: time.Now().UTC(),
		deps:      d,
		cursor:    playback.NewCursor(),
		element:   el,
		current:   ref,
		recipe:    recipe.New(),
		state:     StateIdle,
	}
	s.log = d.log.WithFields("session_id", id)
	s.cursor.OnMetadata(s.onMetadata)

	el.SetSource(playURL)
	s.cursor.Attach(el)
	return s, nil
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

func (s *Session) onMetadata(duration float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.recipe.SetDuration(duration)
	}
}

// edit runs fn on the recipe unless the session is closed
func (s *Session) edit(fn func(r *recipe.Recipe) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	return fn(s.recipe)
}

// SelectMode switches the active edit mode
func (s *Session) SelectMode(m recipe.Mode) error {
	return s.edit(func(r *recipe.Recipe) error { return r.SetMode(m) })
}

// SetTrim stores the trim window
func (s *Session) SetTrim(start, end float64) error {
	return s.edit(func(r *recipe.Recipe) error {
		r.SetTrim(start, end)
		return nil
	})
}

// SetSpeed stores the speed factor
func (s *Session) SetSpeed(factor float64) error {
	return s.edit(func(r *recipe.Recipe) error {
		r.SetSpeed(factor)
		return nil
	})
}

// SetEffect stores the effect selection
func (s *Session) SetEffect(e recipe.Effect) error {
	return s.edit(func(r *recipe.Recipe) error {
		r.SetEffect(e)
		return nil
	})
}

// SetSplitScreen hands partner to the recipe. On a closed session the
// partner is released immediately. A displaced partner stays open until no
// commit is reading it.
func (s *Session) SetSplitScreen(partner *media.Reference, layout recipe.Layout) error {
	err := s.edit(func(r *recipe.Recipe) error {
		s.releaseLocked(r.SwapSplitScreen(partner, layout))
		return nil
	})
	if err != nil && partner != nil {
		partner.Release()
	}
	return err
}

// SetLayout changes the split-screen layout
func (s *Session) SetLayout(layout recipe.Layout) error {
	return s.edit(func(r *recipe.Recipe) error {
		r.SetLayout(layout)
		return nil
	})
}

// TogglePlayPause starts or pauses playback
func (s *Session) TogglePlayPause() error {
	if s.isClosed() {
		return domain.ErrSessionClosed
	}
	return s.cursor.TogglePlayPause()
}

// Seek moves playback to target seconds
func (s *Session) Seek(target float64) error {
	if s.isClosed() {
		return domain.ErrSessionClosed
	}
	s.cursor.Seek(target)
	return nil
}

// ToggleMute flips the muted flag
func (s *Session) ToggleMute() error {
	if s.isClosed() {
		return domain.ErrSessionClosed
	}
	s.cursor.ToggleMute()
	return nil
}

// Deliver feeds a native event from the remote player into the session
func (s *Session) Deliver(ev playback.Event) error {
	if s.isClosed() {
		return domain.ErrSessionClosed
	}
	em, ok := s.element.(playback.Emitter)
	if !ok {
		return fmt.Errorf("%w: element does not accept remote events", domain.ErrInvalidInput)
	}
	em.Emit(ev)
	return nil
}

// Playback returns the transport state
func (s *Session) Playback() playback.State {
	return s.cursor.State()
}

// Current returns the media currently shown
func (s *Session) Current() *media.Reference {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// State returns the commit state and the last failure, if any
func (s *Session) State() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.lastErr
}

// Hold pins the current media so a concurrent commit or Close cannot release
// it. The returned func unpins it and is safe to call more than once.
func (s *Session) Hold() (*media.Reference, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, domain.ErrSessionClosed
	}
	s.busy++
	var once sync.Once
	return s.current, func() {
		once.Do(func() {
			s.mu.Lock()
			s.busy--
			pending := s.takePendingLocked()
			s.mu.Unlock()
			releaseAll(pending)
		})
	}, nil
}

// releaseLocked releases ref now, or once nothing is reading media
func (s *Session) releaseLocked(ref *media.Reference) {
	if ref == nil {
		return
	}
	if s.busy > 0 {
		s.pending = append(s.pending, ref)
		return
	}
	ref.Release()
}

func (s *Session) takePendingLocked() []*media.Reference {
	if s.busy > 0 {
		return nil
	}
	pending := s.pending
	s.pending = nil
	return pending
}

func releaseAll(refs []*media.Reference) {
	for _, ref := range refs {
		ref.Release()
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// CommitResult describes a finished commit
type CommitResult struct {
	State     State  `json:"state"`
	Degraded  bool   `json:"degraded"`
	MediaURL  string `json:"media_url"`
	RequestID string `json:"request_id,omitempty"`
	Cause     string `json:"cause,omitempty"`
}

// Commit submits the active recipe and, on arrival, replaces the current
// media with the result. A second Commit while one is outstanding fails with
// domain.ErrCommitInFlight. A result arriving after Close is released and
// discarded.
func (s *Session) Commit(ctx context.Context, token string) (*CommitResult, error) {
	if s.isClosed() {
		return nil, domain.ErrSessionClosed
	}

	acquired, err := s.guard.TryAcquire(ctx, s.id)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, domain.ErrCommitInFlight
	}
	defer func() {
		if err := s.guard.Release(context.WithoutCancel(ctx), s.id); err != nil {
			s.log.Errorw("failed to release commit guard", "error", err)
		}
	}()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, domain.ErrSessionClosed
	}
	payload, err := s.recipe.ToRequestPayload()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	source := s.current
	prevState, prevErr := s.state, s.lastErr
	s.state = StateSubmitting
	s.busy++
	s.mu.Unlock()

	// Runs on every exit, panics included, so the session never stays
	// submitting and deferred releases are not lost.
	defer func() {
		s.mu.Lock()
		if s.state == StateSubmitting {
			s.state, s.lastErr = prevState, prevErr
		}
		s.busy--
		pending := s.takePendingLocked()
		s.mu.Unlock()
		releaseAll(pending)
	}()

	rec := domain.NewEditRecord(uuid.NewString(), s.id, string(payload.Mode()))
	rec.UserID = s.userID
	rec.Params = payload.Params()
	rec.SourceLocator = source.Locator()

	result, err := s.submitter.Send(ctx, source, payload, token)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if result != nil {
			result.Media.Release()
		}
		s.log.Infow("discarding result of closed session")
		return nil, domain.ErrSessionClosed
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.state, s.lastErr = prevState, prevErr
		} else {
			s.state, s.lastErr = StateFailed, err
		}
		s.mu.Unlock()

		rec.Outcome = domain.EditOutcomeFailed
		rec.Error = err.Error()
		s.record(ctx, rec)
		return nil, err
	}

	s.current = result.Media
	// Zero clears the old bound until the player reports the new duration
	s.recipe.SetDuration(result.Duration)
	s.state = StateSucceeded
	s.lastErr = nil
	if result.Degraded() {
		s.state = StateDegraded
		s.lastErr = result.Cause
	}
	s.releaseLocked(source)

	playURL, urlErr := result.Media.PlaybackURL()
	if urlErr == nil {
		s.element.SetSource(playURL)
	}
	s.cursor.Attach(s.element)
	state := s.state
	s.mu.Unlock()

	rec.ResultURL = result.Media.Locator()
	rec.Outcome = domain.EditOutcomeSucceeded
	if result.Degraded() {
		rec.Outcome = domain.EditOutcomeDegraded
		rec.Error = result.Cause.Error()
	}
	s.record(ctx, rec)

	out := &CommitResult{
		State:     state,
		Degraded:  result.Degraded(),
		MediaURL:  playURL,
		RequestID: result.RequestID,
	}
	if result.Cause != nil {
		out.Cause = result.Cause.Error()
	}
	return out, nil
}

func (s *Session) record(ctx context.Context, rec *domain.EditRecord) {
	if s.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
	defer cancel()

	if err := s.history.Record(ctx, rec); err != nil {
		s.log.Errorw("failed to record edit history", "error", err, "edit_id", rec.ID)
	}
}

// Close releases the current media and the split-screen partner and detaches
// playback. Closing twice is a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	current := s.current
	partner := s.recipe.TakePartner()
	s.mu.Unlock()

	s.cursor.Detach()

	s.mu.Lock()
	s.releaseLocked(partner)
	s.releaseLocked(current)
	s.mu.Unlock()
	s.log.Infow("session closed")
}

// Closed reports whether Close has been called
func (s *Session) Closed() bool {
	return s.isClosed()
}

// MediaView describes a media reference for clients
type MediaView struct {
	Kind        media.SourceKind `json:"kind"`
	Name        string           `json:"name"`
	PlaybackURL string           `json:"playback_url,omitempty"`
}

// View is the serializable state of a session
type View struct {
	ID        string              `json:"id"`
	State     State               `json:"state"`
	LastError string              `json:"last_error,omitempty"`
	Media     MediaView           `json:"media"`
	Recipe    recipe.View         `json:"recipe"`
	Playback  playback.State      `json:"playback"`
	Player    *playback.Commanded `json:"player,omitempty"`
	Time      string              `json:"time"`
	CreatedAt time.Time           `json:"created_at"`
}

// View returns a snapshot of the session
func (s *Session) View() View {
	s.mu.Lock()
	v := View{
		ID:        s.id,
		State:     s.state,
		Recipe:    s.recipe.View(),
		CreatedAt: s.createdAt,
		Media: MediaView{
			Kind: s.current.Kind(),
			Name: s.current.Name(),
		},
	}
	if s.lastErr != nil {
		v.LastError = s.lastErr.Error()
	}
	if !s.closed {
		v.Media.PlaybackURL, _ = s.current.PlaybackURL()
	}
	s.mu.Unlock()

	v.Playback = s.cursor.State()
	v.Time = playback.FormatTime(v.Playback.Position) + " / " + playback.FormatTime(v.Playback.Duration)
	if em, ok := s.element.(playback.Emitter); ok {
		cmd := em.Commanded()
		v.Player = &cmd
	}
	return v
}
