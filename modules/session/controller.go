// Package session drives the audio player for the selected station and
// translates between player callbacks, user commands and the now-playing
// engine.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/grafana/dskit/services"

	"github.com/zachfi/radioplayer/modules/events"
	"github.com/zachfi/radioplayer/modules/nowplaying"
)

var (
	ErrNoStation          = nowplaying.ErrNoStation
	ErrCommandUnavailable = errors.New("command is not enabled on the now-playing surface")
	ErrUnknownCommand     = errors.New("unknown remote command")
)

// Remote commands accepted from the now-playing surface.
const (
	CommandPlay     = "play"
	CommandPause    = "pause"
	CommandStop     = "stop"
	CommandNext     = events.CommandNext
	CommandPrevious = events.CommandPrevious
)

const module = "session"

// NowPlaying is the part of the now-playing engine the session drives.
type NowPlaying interface {
	SetStation(ctx context.Context, st nowplaying.Station) error
	SetMetadata(ctx context.Context, artist, title, artworkURL string) error
	OnIcyMetadata(ctx context.Context, rawTitle, rawArtworkURL string) error
	Reset(ctx context.Context) error
}

// Publisher receives playback changes for the application.
type Publisher interface {
	PublishPlaybackState(state string) bool
	PublishPlaying(playing bool) bool
	PublishRemoteCommand(command string)
}

// Status is a point in time view of the session.
type Status struct {
	Station       *nowplaying.Station
	Intent        Intent
	Item          ItemStatus
	PlaybackState string
	SleepDeadline time.Time
}

type Controller struct {
	services.Service

	logger    *slog.Logger
	engine    NowPlaying
	surface   nowplaying.Surface
	publisher Publisher
	player    Player

	// callbackCtx bounds engine calls made from player callbacks.
	callbackCtx    context.Context
	callbackCancel context.CancelFunc

	// opMu serializes commands, which may call into the player.
	opMu sync.Mutex

	// mu guards the fields below. Player callbacks only take mu, so it is
	// never held while calling the player.
	mu            sync.Mutex
	station       *nowplaying.Station
	intent        Intent
	playbackState string
	sleepTimer    *time.Timer
	sleepSeq      uint64
	sleepDeadline time.Time
}

func New(logger *slog.Logger, engine NowPlaying, surface nowplaying.Surface, publisher Publisher, player Player) (*Controller, error) {
	switch {
	case engine == nil:
		return nil, errors.New("now-playing engine is required")
	case surface == nil:
		return nil, errors.New("surface is required")
	case publisher == nil:
		return nil, errors.New("publisher is required")
	case player == nil:
		return nil, errors.New("player is required")
	}

	c := &Controller{
		logger:        logger.With("module", module),
		engine:        engine,
		surface:       surface,
		publisher:     publisher,
		player:        player,
		playbackState: events.StatePaused,
	}
	c.callbackCtx, c.callbackCancel = context.WithCancel(context.Background())

	c.Service = services.NewIdleService(c.starting, c.stopping)

	return c, nil
}

func (c *Controller) starting(_ context.Context) error {
	c.player.SetHandlers(Handlers{
		OnStateChanged: c.onStateChanged,
		OnMetadata:     c.onMetadata,
		OnError:        c.onError,
	})
	return nil
}

func (c *Controller) stopping(_ error) error {
	c.logger.Info("stopping")

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.CancelSleepTimer()
	c.callbackCancel()

	var errs []error
	if err := c.player.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := c.player.Unload(); err != nil {
		errs = append(errs, err)
	}
	c.player.SetHandlers(Handlers{})
	if closer, ok := c.player.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}

	return errors.Join(errs...)
}

// SetStation selects the station and loads its stream. Playback continues on
// the new station when the session was playing.
func (c *Controller) SetStation(ctx context.Context, st nowplaying.Station) (err error) {
	defer func() { observe("set_station", err) }()

	if st.StreamURL == "" {
		return errors.New("station stream URL is required")
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err = c.engine.SetStation(ctx, st); err != nil {
		return err
	}

	c.mu.Lock()
	c.station = &st
	resume := c.intent == IntentPlaying || c.intent == IntentLoading
	c.mu.Unlock()

	c.logger.Info("loading station", "station", st.Title, "url", st.StreamURL)
	if err = c.player.Load(st.StreamURL); err != nil {
		return fmt.Errorf("load stream: %w", err)
	}

	if resume {
		return c.play()
	}
	return nil
}

func (c *Controller) Play(_ context.Context) (err error) {
	defer func() { observe("play", err) }()

	c.opMu.Lock()
	defer c.opMu.Unlock()

	return c.play()
}

// play must be called with opMu held.
func (c *Controller) play() error {
	c.mu.Lock()
	st := c.station
	c.mu.Unlock()
	if st == nil {
		return ErrNoStation
	}

	status := c.player.ItemStatus()
	if status.rearm() {
		c.logger.Debug("reloading stream", "item", status)
		if err := c.player.Load(st.StreamURL); err != nil {
			return fmt.Errorf("load stream: %w", err)
		}
		status = c.player.ItemStatus()
	}

	c.mu.Lock()
	if status == ItemReady {
		c.intent = IntentPlaying
	} else {
		c.intent = IntentLoading
	}
	c.mu.Unlock()

	return c.player.Play()
}

func (c *Controller) Pause(_ context.Context) (err error) {
	defer func() { observe("pause", err) }()

	c.opMu.Lock()
	defer c.opMu.Unlock()

	return c.pause()
}

func (c *Controller) pause() error {
	c.mu.Lock()
	if c.intent != IntentIdle {
		c.intent = IntentPaused
	}
	c.mu.Unlock()

	return c.player.Pause()
}

func (c *Controller) Stop(_ context.Context) (err error) {
	defer func() { observe("stop", err) }()

	c.opMu.Lock()
	defer c.opMu.Unlock()

	return c.stop()
}

func (c *Controller) stop() error {
	c.mu.Lock()
	c.intent = IntentIdle
	c.mu.Unlock()

	return c.player.Stop()
}

// Reset stops playback and forgets the station, the track and the sleep
// timer.
func (c *Controller) Reset(ctx context.Context) (err error) {
	defer func() { observe("reset", err) }()

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.CancelSleepTimer()

	var errs []error
	if err := c.player.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := c.player.Unload(); err != nil {
		errs = append(errs, err)
	}

	c.mu.Lock()
	c.station = nil
	c.intent = IntentIdle
	c.mu.Unlock()

	if err := c.engine.Reset(ctx); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// SetCustomMetadata announces a track supplied by the application.
func (c *Controller) SetCustomMetadata(ctx context.Context, artist, title, artworkURL string) (err error) {
	defer func() { observe("set_metadata", err) }()
	return c.engine.SetMetadata(ctx, artist, title, artworkURL)
}

// SetNavigationControls changes which navigation buttons the now-playing
// surface offers. Playback and metadata are untouched.
func (c *Controller) SetNavigationControls(next, previous bool) {
	c.surface.SetCommands(nowplaying.Commands{Next: next, Previous: previous})
	observe("set_navigation", nil)
}

// RemoteCommand handles a button press on the now-playing surface. Next and
// previous are only reported to the application; the session never changes
// station by itself.
func (c *Controller) RemoteCommand(ctx context.Context, command string) (err error) {
	defer func() { observe("remote", err) }()

	switch command {
	case CommandPlay:
		return c.Play(ctx)
	case CommandPause:
		return c.Pause(ctx)
	case CommandStop:
		return c.Stop(ctx)
	case CommandNext:
		if !c.surface.Commands().Next {
			return ErrCommandUnavailable
		}
	case CommandPrevious:
		if !c.surface.Commands().Previous {
			return ErrCommandUnavailable
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}

	c.publisher.PublishRemoteCommand(command)
	return nil
}

// Interruption reports an audio focus interruption. An active session is
// paused when it begins; when the interruption ends with shouldResume the
// session plays again.
func (c *Controller) Interruption(ctx context.Context, began, shouldResume bool) error {
	if began {
		c.logger.Info("interruption began")

		c.opMu.Lock()
		defer c.opMu.Unlock()

		c.mu.Lock()
		idle := c.intent == IntentIdle
		c.mu.Unlock()
		if idle {
			return nil
		}
		return c.pause()
	}

	c.logger.Info("interruption ended", "resume", shouldResume)
	if !shouldResume {
		return nil
	}
	return c.Play(ctx)
}

// StartSleepTimer stops playback after d, replacing any running timer.
func (c *Controller) StartSleepTimer(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("sleep duration must be positive, got %s", d)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sleepTimer != nil {
		c.sleepTimer.Stop()
	}

	c.sleepSeq++
	seq := c.sleepSeq
	c.sleepTimer = time.AfterFunc(d, func() { c.sleepExpired(seq) })
	c.sleepDeadline = time.Now().Add(d)
	c.logger.Info("sleep timer started", "duration", d)

	return nil
}

func (c *Controller) CancelSleepTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopSleepTimerLocked()
}

func (c *Controller) stopSleepTimerLocked() {
	if c.sleepTimer != nil {
		c.sleepTimer.Stop()
		c.sleepTimer = nil
		c.sleepDeadline = time.Time{}
	}
}

func (c *Controller) sleepExpired(seq uint64) {
	c.mu.Lock()
	if c.sleepTimer == nil || c.sleepSeq != seq {
		c.mu.Unlock()
		return
	}
	c.sleepTimer = nil
	c.sleepDeadline = time.Time{}
	c.mu.Unlock()

	c.logger.Info("sleep timer expired")
	if err := c.Stop(c.callbackCtx); err != nil {
		c.logger.Error("failed to stop at sleep timer expiry", "err", err)
	}
}

func (c *Controller) Status() Status {
	item := c.player.ItemStatus()

	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		Intent:        c.intent,
		Item:          item,
		PlaybackState: c.playbackState,
		SleepDeadline: c.sleepDeadline,
	}
	if c.station != nil {
		st := *c.station
		s.Station = &st
	}
	return s
}

func (c *Controller) onStateChanged(st PlayerState) {
	state := Translate(st)

	c.mu.Lock()
	c.playbackState = state
	if st.Readiness == ReadinessReady && st.PlayWhenReady && c.intent == IntentLoading {
		c.intent = IntentPlaying
	}
	c.mu.Unlock()

	if c.publisher.PublishPlaybackState(state) {
		c.logger.Debug("playback state changed", "state", state)
	}
	c.publisher.PublishPlaying(st.PlayWhenReady)
}

func (c *Controller) onMetadata(m StreamMetadata) {
	if err := c.engine.OnIcyMetadata(c.callbackCtx, m.Title, m.URL); err != nil {
		c.logger.Warn("failed to apply stream metadata", "err", err)
	}
}

func (c *Controller) onError(err error) {
	c.logger.Error("player error", "err", err)
}
