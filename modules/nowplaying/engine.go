// Package nowplaying owns the current station and track and keeps the
// now-playing surface and the application event stream consistent with them.
package nowplaying

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/grafana/dskit/services"
	"go.uber.org/atomic"

	"github.com/zachfi/radioplayer/modules/events"
	"github.com/zachfi/radioplayer/pkg/artwork"
	"github.com/zachfi/radioplayer/pkg/metadata"
)

var (
	ErrNoStation  = errors.New("no station selected")
	ErrNotRunning = errors.New("now-playing engine is not running")
)

const module = "nowplaying"

// ArtworkResolver turns a track into artwork. It must give up when ctx is
// done and never fail; an empty Result means no artwork.
type ArtworkResolver interface {
	Resolve(ctx context.Context, req artwork.Request) artwork.Result
}

// Publisher receives every published track for the application.
type Publisher interface {
	PublishMetadata(events.Metadata)
}

// Engine is the now-playing state machine. All state below the ops channel
// is owned by the running loop and only touched from functions it executes.
type Engine struct {
	services.Service

	cfg       *Config
	logger    *slog.Logger
	surface   Surface
	publisher Publisher
	resolver  ArtworkResolver

	ops        chan func()
	stopped    chan struct{}
	generation atomic.Uint64
	inflight   sync.WaitGroup

	runCtx        context.Context
	station       *Station
	track         *metadata.Track
	lastKey       string
	cancelResolve context.CancelFunc
}

func New(cfg Config, logger *slog.Logger, surface Surface, publisher Publisher, resolver ArtworkResolver) (*Engine, error) {
	switch {
	case surface == nil:
		return nil, errors.New("surface is required")
	case publisher == nil:
		return nil, errors.New("publisher is required")
	case resolver == nil:
		return nil, errors.New("artwork resolver is required")
	}

	e := &Engine{
		cfg:       &cfg,
		logger:    logger.With("module", module),
		surface:   surface,
		publisher: publisher,
		resolver:  resolver,
		ops:       make(chan func()),
		stopped:   make(chan struct{}),
	}

	e.Service = services.NewBasicService(nil, e.running, e.stopping)

	return e, nil
}

func (e *Engine) running(ctx context.Context) error {
	defer close(e.stopped)
	e.runCtx = ctx

	for {
		select {
		case <-ctx.Done():
			return nil
		case op := <-e.ops:
			op()
		}
	}
}

func (e *Engine) stopping(_ error) error {
	// The run context is already cancelled, which aborts every resolution.
	e.inflight.Wait()
	e.logger.Info("stopped")
	return nil
}

// exec runs fn on the loop and waits for it to finish.
func (e *Engine) exec(ctx context.Context, fn func()) error {
	if e.State() != services.Running {
		return ErrNotRunning
	}

	done := make(chan struct{})
	op := func() {
		defer close(done)
		fn()
	}

	select {
	case e.ops <- op:
	case <-e.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	<-done
	return nil
}

// post queues fn on the loop without waiting. fn is dropped once the loop
// has exited.
func (e *Engine) post(fn func()) {
	select {
	case e.ops <- fn:
	case <-e.stopped:
	}
}

// SetStation selects a new station from any state. The previous track and
// any pending resolution are abandoned, and the surface shows the station
// with its default artwork until the first track arrives.
func (e *Engine) SetStation(ctx context.Context, st Station) error {
	st = st.clone()
	return e.exec(ctx, func() {
		e.supersede()
		e.station = &st
		e.track = nil
		e.lastKey = ""

		e.logger.Info("station selected", "station", st.Title, "url", st.StreamURL)
		e.surface.SetNowPlaying(Info{
			StationTitle: st.Title,
			Title:        st.Title,
			Artwork:      st.DefaultArtwork,
			Initial:      true,
		})
	})
}

// SetMetadata announces the current track. Repeats of the published artist
// and title are ignored.
func (e *Engine) SetMetadata(ctx context.Context, artist, title, artworkURL string) error {
	var err error
	execErr := e.exec(ctx, func() {
		err = e.setMetadata(metadata.Normalize(artist, title, artworkURL))
	})
	if execErr != nil {
		return execErr
	}
	return err
}

// OnIcyMetadata handles a StreamTitle notification from the stream. It is
// ignored without a station, when the station does not want in-stream
// metadata, or when the title is blank.
func (e *Engine) OnIcyMetadata(ctx context.Context, rawTitle, rawArtworkURL string) error {
	return e.exec(ctx, func() {
		if e.station == nil {
			metricIgnored.WithLabelValues("no_station").Inc()
			return
		}
		if !e.station.ParseStreamMetadata {
			metricIgnored.WithLabelValues("disabled").Inc()
			return
		}

		artist, title, ok := metadata.ParseStreamTitle(rawTitle)
		if !ok {
			metricIgnored.WithLabelValues("empty").Inc()
			return
		}

		_ = e.setMetadata(metadata.Normalize(artist, title, rawArtworkURL))
	})
}

// Reset forgets the station and track and clears the surface.
func (e *Engine) Reset(ctx context.Context) error {
	return e.exec(ctx, func() {
		e.supersede()
		e.station = nil
		e.track = nil
		e.lastKey = ""

		e.logger.Info("reset")
		e.surface.Clear()
	})
}

func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := e.exec(ctx, func() {
		snap.Generation = e.generation.Load()
		if e.station == nil {
			return
		}

		snap.Phase = StationReady
		st := e.station.clone()
		snap.Station = &st
		if e.track != nil {
			t := *e.track
			t.Artwork = bytes.Clone(t.Artwork)
			snap.Track = &t
		}
	})
	return snap, err
}

// setMetadata runs on the loop.
func (e *Engine) setMetadata(t metadata.Track) error {
	if e.station == nil {
		return ErrNoStation
	}

	key := t.Key()
	if key == e.lastKey {
		metricDuplicates.Inc()
		e.logger.Debug("duplicate track ignored", "artist", t.Artist, "title", t.Title)
		return nil
	}
	e.lastKey = key

	gen := e.supersede()
	e.resolve(gen, *e.station, t)
	return nil
}

// supersede invalidates all pending work and returns the new generation.
func (e *Engine) supersede() uint64 {
	gen := e.generation.Inc()
	if e.cancelResolve != nil {
		if e.cfg.CancelStale {
			e.cancelResolve()
		}
		e.cancelResolve = nil
	}
	return gen
}

func (e *Engine) resolve(gen uint64, st Station, t metadata.Track) {
	ctx, cancel := context.WithCancel(e.runCtx)
	e.cancelResolve = cancel

	req := artwork.Request{
		Artist:       t.Artist,
		Title:        t.Title,
		ArtworkURL:   t.ArtworkURL,
		LookupOnline: st.LookupOnlineArtwork,
	}

	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		defer cancel()

		res := e.resolver.Resolve(ctx, req)
		e.post(func() { e.apply(gen, t, res) })
	}()
}

// apply publishes a resolution result if nothing superseded it.
func (e *Engine) apply(gen uint64, t metadata.Track, res artwork.Result) {
	if gen != e.generation.Load() || e.station == nil {
		metricStale.Inc()
		e.logger.Debug("discarding stale artwork result", "artist", t.Artist, "title", t.Title, "generation", gen)
		return
	}
	e.cancelResolve = nil

	if t.Title == "" {
		t.Title = e.station.Title
	}
	t.ArtworkURL = res.URL
	t.Artwork = res.Data
	if len(t.Artwork) == 0 {
		t.Artwork = e.station.DefaultArtwork
	}

	e.track = &t
	e.publish(t)
}

func (e *Engine) publish(t metadata.Track) {
	e.logger.Info("now playing", "station", e.station.Title, "artist", t.Artist, "title", t.Title, "artwork", len(t.Artwork) > 0)

	e.surface.SetNowPlaying(Info{
		StationTitle: e.station.Title,
		Artist:       t.Artist,
		Title:        t.Title,
		ArtworkURL:   t.ArtworkURL,
		Artwork:      t.Artwork,
	})

	e.publisher.PublishMetadata(events.Metadata{
		Artist:      t.Artist,
		Title:       t.Title,
		ArtworkURL:  t.ArtworkURL,
		ArtworkData: bytes.Clone(t.Artwork),
	})

	metricPublished.Inc()
}
