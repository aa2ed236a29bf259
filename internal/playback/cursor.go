package playback

import (
	"math"
	"sync"
)

// State is a snapshot of transport state
type State struct {
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
	Playing  bool    `json:"playing"`
	Muted    bool    `json:"muted"`
}

// Ready reports whether media metadata has loaded
func (s State) Ready() bool {
	return s.Duration > 0
}

// Cursor mirrors the transport state of a single Element. Native element
// events are authoritative for position; Seek and TogglePlayPause update the
// state optimistically until the next event arrives.
type Cursor struct {
	mu          sync.Mutex
	el          Element
	unsubscribe func()
	generation  uint64
	state       State
	onMetadata  func(duration float64)
}

// NewCursor creates a detached cursor
func NewCursor() *Cursor {
	return &Cursor{}
}

// OnMetadata registers fn to run whenever the attached element reports a
// duration.
func (c *Cursor) OnMetadata(fn func(duration float64)) {
	c.mu.Lock()
	c.onMetadata = fn
	c.mu.Unlock()
}

// Attach binds the cursor to el. Listeners on a previously attached element
// are removed first and the transport state starts over at zero.
func (c *Cursor) Attach(el Element) {
	c.mu.Lock()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	c.generation++
	gen := c.generation
	c.el = el
	muted := c.state.Muted
	c.state = State{Muted: muted}
	c.mu.Unlock()

	if el == nil {
		return
	}

	el.SetMuted(muted)
	unsubscribe := el.Subscribe(func(ev Event) {
		c.handle(gen, ev)
	})

	c.mu.Lock()
	if c.generation == gen {
		c.unsubscribe = unsubscribe
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	// Re-attached concurrently; this subscription is already stale.
	unsubscribe()
}

// Detach removes the listeners from the attached element
func (c *Cursor) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	c.generation++
	c.el = nil
	c.state.Playing = false
}

// Attached reports whether an element is bound
func (c *Cursor) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.el != nil
}

// State returns a snapshot of the transport state
func (c *Cursor) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TogglePlayPause issues play or pause. It is a no-op before attach or
// before metadata loads.
func (c *Cursor) TogglePlayPause() error {
	c.mu.Lock()
	el := c.el
	if el == nil || !c.state.Ready() {
		c.mu.Unlock()
		return nil
	}
	wasPlaying := c.state.Playing
	c.state.Playing = !wasPlaying
	c.mu.Unlock()

	var err error
	if wasPlaying {
		err = el.Pause()
	} else {
		err = el.Play()
	}
	if err != nil {
		c.mu.Lock()
		if c.el == el {
			c.state.Playing = wasPlaying
		}
		c.mu.Unlock()
	}
	return err
}

// Seek moves the element to target, clamped to [0, duration]. It is a no-op
// before attach or before metadata loads.
func (c *Cursor) Seek(target float64) {
	c.mu.Lock()
	el := c.el
	if el == nil || !c.state.Ready() || math.IsNaN(target) {
		c.mu.Unlock()
		return
	}
	pos := clamp(target, 0, c.state.Duration)
	c.state.Position = pos
	c.mu.Unlock()

	el.SetCurrentTime(pos)
}

// ToggleMute flips the muted flag and applies it to the element
func (c *Cursor) ToggleMute() {
	c.mu.Lock()
	c.state.Muted = !c.state.Muted
	muted := c.state.Muted
	el := c.el
	c.mu.Unlock()

	if el != nil {
		el.SetMuted(muted)
	}
}

func (c *Cursor) handle(gen uint64, ev Event) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}

	var notify func(float64)
	switch ev.Type {
	case EventLoadedMetadata:
		if ev.Value > 0 && !math.IsInf(ev.Value, 0) {
			c.state.Duration = ev.Value
			c.state.Position = clamp(c.state.Position, 0, ev.Value)
			notify = c.onMetadata
		}
	case EventTimeUpdate:
		if math.IsNaN(ev.Value) {
			break
		}
		pos := math.Max(ev.Value, 0)
		if c.state.Ready() {
			pos = math.Min(pos, c.state.Duration)
		}
		c.state.Position = pos
	case EventEnded, EventPause:
		c.state.Playing = false
	case EventPlay:
		c.state.Playing = true
	}
	duration := c.state.Duration
	c.mu.Unlock()

	if notify != nil {
		notify(duration)
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
