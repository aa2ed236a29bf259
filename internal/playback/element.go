package playback

// EventType names a native media element signal
type EventType string

const (
	EventLoadedMetadata EventType = "loadedmetadata"
	EventTimeUpdate     EventType = "timeupdate"
	EventEnded          EventType = "ended"
	EventPlay           EventType = "play"
	EventPause          EventType = "pause"
)

// Event is a signal delivered by a media element. Value carries the duration
// for loadedmetadata and the current position for timeupdate.
type Event struct {
	Type  EventType `json:"type"`
	Value float64   `json:"value,omitempty"`
}

// Element is the media element a Cursor mirrors
type Element interface {
	Play() error
	Pause() error
	SetCurrentTime(seconds float64)
	SetMuted(muted bool)
	SetSource(url string)
	// Subscribe registers fn for every event and returns the function that
	// removes it.
	Subscribe(fn func(Event)) (unsubscribe func())
}

// Emitter is implemented by elements whose native events are delivered from
// outside the process.
type Emitter interface {
	Emit(ev Event)
	Commanded() Commanded
}
