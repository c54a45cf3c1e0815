// Package events fans now-playing and playback changes out to independent
// application subscribers.
package events

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Kind string

const (
	KindPlaybackState Kind = "playback_state"
	KindPlaying       Kind = "playing"
	KindMetadata      Kind = "metadata"
	KindRemoteCommand Kind = "remote_command"
)

// Playback states published on the playback_state stream.
const (
	StateBuffering = "buffering"
	StatePlaying   = "playing"
	StatePaused    = "paused"
)

// Remote commands published when the now-playing surface buttons are tapped.
const (
	CommandNext     = "next"
	CommandPrevious = "previous"
)

// Metadata is the application view of a published track. Absent fields are
// empty strings.
type Metadata struct {
	Artist      string `json:"artist"`
	Title       string `json:"title"`
	ArtworkURL  string `json:"artworkUrl"`
	ArtworkData []byte `json:"artworkData"`
}

type Event struct {
	Kind Kind

	State    string    // KindPlaybackState
	Playing  bool      // KindPlaying
	Metadata *Metadata // KindMetadata
	Command  string    // KindRemoteCommand
}

// Payload returns the value delivered to the application for this event.
func (e Event) Payload() interface{} {
	switch e.Kind {
	case KindPlaybackState:
		return e.State
	case KindPlaying:
		return e.Playing
	case KindMetadata:
		return e.Metadata
	case KindRemoteCommand:
		return e.Command
	}
	return nil
}

var (
	metricPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "radioplayer",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Events delivered to subscribers.",
	}, []string{"kind"})

	metricDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "radioplayer",
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Events dropped because a subscriber buffer was full.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(metricPublished, metricDropped)
}

// Broker delivers events to every interested subscriber without blocking the
// publisher. Playback state and playing flags are duplicate-suppressed, and
// their latest values are replayed to new subscribers.
type Broker struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[*Subscription]struct{}

	lastState   string
	lastPlaying *bool
}

func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{
		logger: logger.With("component", "events"),
		subs:   make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a subscriber for the given kinds, or every kind when
// none are given. buffer is the channel capacity; events beyond it are dropped.
func (b *Broker) Subscribe(buffer int, kinds ...Kind) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	s := &Subscription{
		b:  b,
		ch: make(chan Event, buffer),
	}
	if len(kinds) > 0 {
		s.kinds = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			s.kinds[k] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[s] = struct{}{}
	if b.lastState != "" {
		s.offer(Event{Kind: KindPlaybackState, State: b.lastState}, b.logger)
	}
	if b.lastPlaying != nil {
		s.offer(Event{Kind: KindPlaying, Playing: *b.lastPlaying}, b.logger)
	}

	return s
}

// PublishPlaybackState emits state unless it equals the previous one. It
// reports whether an event was emitted.
func (b *Broker) PublishPlaybackState(state string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if state == b.lastState {
		return false
	}
	b.lastState = state
	b.broadcast(Event{Kind: KindPlaybackState, State: state})
	return true
}

// PublishPlaying emits the play intent unless it equals the previous one.
func (b *Broker) PublishPlaying(playing bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.lastPlaying != nil && *b.lastPlaying == playing {
		return false
	}
	b.lastPlaying = &playing
	b.broadcast(Event{Kind: KindPlaying, Playing: playing})
	return true
}

func (b *Broker) PublishMetadata(m Metadata) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcast(Event{Kind: KindMetadata, Metadata: &m})
}

func (b *Broker) PublishRemoteCommand(command string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcast(Event{Kind: KindRemoteCommand, Command: command})
}

// SubscriberCount returns the number of open subscriptions.
func (b *Broker) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// broadcast must be called with b.mu held.
func (b *Broker) broadcast(ev Event) {
	for s := range b.subs {
		s.offer(ev, b.logger)
	}
}

func (b *Broker) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.ch)
}

type Subscription struct {
	b     *Broker
	ch    chan Event
	kinds map[Kind]struct{}
}

// Events is closed when the subscription is closed.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

func (s *Subscription) Close() {
	s.b.remove(s)
}

func (s *Subscription) wants(k Kind) bool {
	if s.kinds == nil {
		return true
	}
	_, ok := s.kinds[k]
	return ok
}

// offer must be called with the broker lock held.
func (s *Subscription) offer(ev Event, logger *slog.Logger) {
	if !s.wants(ev.Kind) {
		return
	}

	select {
	case s.ch <- ev:
		metricPublished.WithLabelValues(string(ev.Kind)).Inc()
	default:
		metricDropped.WithLabelValues(string(ev.Kind)).Inc()
		logger.Warn("subscriber buffer full, dropping event", "kind", ev.Kind)
	}
}
