package playback

import (
	"sort"
	"sync"
)

// Commanded is the transport state last requested of a MirrorElement
type Commanded struct {
	Source   string  `json:"source"`
	Playing  bool    `json:"playing"`
	Position float64 `json:"position"`
	Muted    bool    `json:"muted"`
}

// MirrorElement is an Element living on the far side of a wire. Commands are
// recorded for the remote player to apply, and the player's native events are
// fed back through Emit.
type MirrorElement struct {
	mu        sync.Mutex
	commanded Commanded
	nextID    int
	listeners map[int]func(Event)
}

// NewMirrorElement creates an element with no source
func NewMirrorElement() *MirrorElement {
	return &MirrorElement{listeners: make(map[int]func(Event))}
}

func (m *MirrorElement) Play() error {
	m.mu.Lock()
	m.commanded.Playing = true
	m.mu.Unlock()
	return nil
}

func (m *MirrorElement) Pause() error {
	m.mu.Lock()
	m.commanded.Playing = false
	m.mu.Unlock()
	return nil
}

func (m *MirrorElement) SetCurrentTime(seconds float64) {
	m.mu.Lock()
	m.commanded.Position = seconds
	m.mu.Unlock()
}

func (m *MirrorElement) SetMuted(muted bool) {
	m.mu.Lock()
	m.commanded.Muted = muted
	m.mu.Unlock()
}

// SetSource loads a new source; playback stops and rewinds
func (m *MirrorElement) SetSource(url string) {
	m.mu.Lock()
	m.commanded.Source = url
	m.commanded.Playing = false
	m.commanded.Position = 0
	m.mu.Unlock()
}

func (m *MirrorElement) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Emit delivers a native event to every subscriber in subscription order
func (m *MirrorElement) Emit(ev Event) {
	m.mu.Lock()
	switch ev.Type {
	case EventTimeUpdate:
		m.commanded.Position = ev.Value
	case EventPlay:
		m.commanded.Playing = true
	case EventPause, EventEnded:
		m.commanded.Playing = false
	}
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.listeners[id])
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Commanded returns the state the remote player should apply
func (m *MirrorElement) Commanded() Commanded {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commanded
}

// Listeners returns the number of live subscriptions
func (m *MirrorElement) Listeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}
