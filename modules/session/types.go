package session

import (
	"github.com/zachfi/radioplayer/modules/events"
)

// ItemStatus describes the media item loaded into a Player.
type ItemStatus int

const (
	ItemNone ItemStatus = iota
	ItemLoading
	ItemReady
	ItemFailed
	// ItemEmpty is an item that played to its end or was stopped.
	ItemEmpty
)

func (s ItemStatus) String() string {
	switch s {
	case ItemNone:
		return "none"
	case ItemLoading:
		return "loading"
	case ItemReady:
		return "ready"
	case ItemFailed:
		return "failed"
	case ItemEmpty:
		return "empty"
	}
	return "unknown"
}

// rearm reports whether the item must be loaded again before it can play.
func (s ItemStatus) rearm() bool {
	return s == ItemNone || s == ItemFailed || s == ItemEmpty
}

type Readiness int

const (
	ReadinessIdle Readiness = iota
	ReadinessBuffering
	ReadinessReady
	ReadinessEnded
)

// PlayerState is what a Player reports on every change.
type PlayerState struct {
	Readiness     Readiness
	PlayWhenReady bool
	Err           error
}

// StreamMetadata is an in-stream announcement as received from the stream.
type StreamMetadata struct {
	Title string
	URL   string
}

// Handlers are invoked by a Player from its own goroutines. A Player never
// holds its locks while calling them.
type Handlers struct {
	OnStateChanged func(PlayerState)
	OnMetadata     func(StreamMetadata)
	OnError        func(error)
}

// Player is the audio engine a Controller drives.
type Player interface {
	Load(url string) error
	Play() error
	Pause() error
	Stop() error
	Unload() error
	ItemStatus() ItemStatus
	SetHandlers(Handlers)
}

// Translate maps a player state onto the playback states the application
// sees. Errors always read as paused.
func Translate(s PlayerState) string {
	switch {
	case s.Err != nil:
		return events.StatePaused
	case s.Readiness == ReadinessBuffering && s.PlayWhenReady:
		return events.StateBuffering
	case s.Readiness == ReadinessReady && s.PlayWhenReady:
		return events.StatePlaying
	default:
		return events.StatePaused
	}
}

// Intent is what the user last asked the session to do.
type Intent int

const (
	IntentIdle Intent = iota
	IntentLoading
	IntentPlaying
	IntentPaused
)

func (i Intent) String() string {
	switch i {
	case IntentIdle:
		return "idle"
	case IntentLoading:
		return "loading"
	case IntentPlaying:
		return "playing"
	case IntentPaused:
		return "paused"
	}
	return "unknown"
}
