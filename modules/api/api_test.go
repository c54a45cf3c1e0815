package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/grafana/dskit/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zachfi/radioplayer/modules/events"
	"github.com/zachfi/radioplayer/modules/nowplaying"
	"github.com/zachfi/radioplayer/modules/session"
	"github.com/zachfi/radioplayer/pkg/artwork"
)

type stubSession struct {
	mu        sync.Mutex
	station   *nowplaying.Station
	calls     []string
	sleep     time.Duration
	errs      map[string]error
	navigated nowplaying.Commands
}

func (s *stubSession) call(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
	return s.errs[name]
}

func (s *stubSession) SetStation(_ context.Context, st nowplaying.Station) error {
	s.mu.Lock()
	s.station = &st
	s.mu.Unlock()
	return s.call("station")
}

func (s *stubSession) Play(context.Context) error  { return s.call("play") }
func (s *stubSession) Pause(context.Context) error { return s.call("pause") }
func (s *stubSession) Stop(context.Context) error  { return s.call("stop") }
func (s *stubSession) Reset(context.Context) error { return s.call("reset") }

func (s *stubSession) SetCustomMetadata(_ context.Context, artist, title, _ string) error {
	return s.call("metadata " + artist + " - " + title)
}

func (s *stubSession) SetNavigationControls(next, previous bool) {
	s.mu.Lock()
	s.navigated = nowplaying.Commands{Next: next, Previous: previous}
	s.mu.Unlock()
}

func (s *stubSession) RemoteCommand(_ context.Context, command string) error {
	return s.call("remote " + command)
}

func (s *stubSession) Interruption(_ context.Context, began, shouldResume bool) error {
	return s.call(fmt.Sprintf("interruption %t %t", began, shouldResume))
}

func (s *stubSession) StartSleepTimer(d time.Duration) error {
	s.mu.Lock()
	s.sleep = d
	s.mu.Unlock()
	return s.call("sleep")
}

func (s *stubSession) CancelSleepTimer() { _ = s.call("cancel sleep") }

func (s *stubSession) Status() session.Status {
	return session.Status{Intent: session.IntentPlaying, Item: session.ItemReady, PlaybackState: events.StatePlaying}
}

func (s *stubSession) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type fixture struct {
	router  *mux.Router
	api     *API
	session *stubSession
	engine  *nowplaying.Engine
	surface *nowplaying.MemorySurface
	broker  *events.Broker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	surface := nowplaying.NewMemorySurface()
	broker := events.NewBroker(slog.Default())
	engine, err := nowplaying.New(nowplaying.Config{CancelStale: true}, slog.Default(), surface, broker, artwork.New(artwork.Config{}, slog.Default()))
	require.NoError(t, err)
	require.NoError(t, services.StartAndAwaitRunning(ctx, engine))
	t.Cleanup(func() { require.NoError(t, services.StopAndAwaitTerminated(ctx, engine)) })

	s := &stubSession{errs: map[string]error{}}
	router := mux.NewRouter()
	a, err := New(Config{KeepAlive: time.Hour}, slog.Default(), router, s, engine, surface, broker)
	require.NoError(t, err)
	require.NoError(t, services.StartAndAwaitRunning(ctx, a))
	t.Cleanup(func() { require.NoError(t, services.StopAndAwaitTerminated(ctx, a)) })

	return &fixture{router: router, api: a, session: s, engine: engine, surface: surface, broker: broker}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestSetStation(t *testing.T) {
	f := newFixture(t)

	// "QQ==" is base64 for "A".
	rec := f.do(http.MethodPut, "/api/v1/station", `{"title":"Jazz FM","url":"https://x/stream.mp3","defaultArtwork":"QQ=="}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	f.session.mu.Lock()
	st := f.session.station
	f.session.mu.Unlock()
	require.NotNil(t, st)
	assert.Equal(t, nowplaying.Station{
		Title:               "Jazz FM",
		StreamURL:           "https://x/stream.mp3",
		DefaultArtwork:      []byte("A"),
		ParseStreamMetadata: true,
	}, *st)

	rec = f.do(http.MethodPut, "/api/v1/station", `{"title":"Jazz FM","url":"https://x","parseStreamMetadata":false}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	f.session.mu.Lock()
	assert.False(t, f.session.station.ParseStreamMetadata)
	f.session.mu.Unlock()

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, "/api/v1/station", `{"title":"Jazz FM"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, "/api/v1/station", `{"title":`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, "/api/v1/station", `{"url":"x","colour":"red"}`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(http.MethodGet, "/api/v1/station", "").Code)
}

func TestCommands(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"play", "pause", "stop", "reset"} {
		rec := f.do(http.MethodPost, "/api/v1/"+path, "")
		assert.Equal(t, http.StatusNoContent, rec.Code, path)
	}

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPut, "/api/v1/metadata", `{"artist":"Miles Davis","title":"So What"}`).Code)
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/api/v1/remote/next", "").Code)
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/api/v1/interruption", `{"began":false,"shouldResume":true}`).Code)

	assert.Equal(t, []string{
		"play", "pause", "stop", "reset",
		"metadata Miles Davis - So What",
		"remote next",
		"interruption false true",
	}, f.session.Calls())
}

func TestErrorStatus(t *testing.T) {
	f := newFixture(t)
	f.session.errs["play"] = nowplaying.ErrNoStation
	f.session.errs["remote previous"] = session.ErrCommandUnavailable
	f.session.errs["remote shuffle"] = fmt.Errorf("%w: %q", session.ErrUnknownCommand, "shuffle")
	f.session.errs["stop"] = nowplaying.ErrNotRunning
	f.session.errs["pause"] = errors.New("player exploded")

	cases := map[string]int{
		"/api/v1/play":            http.StatusConflict,
		"/api/v1/remote/previous": http.StatusConflict,
		"/api/v1/remote/shuffle":  http.StatusNotFound,
		"/api/v1/stop":            http.StatusServiceUnavailable,
		"/api/v1/pause":           http.StatusInternalServerError,
	}

	for path, code := range cases {
		rec := f.do(http.MethodPost, path, "")
		assert.Equal(t, code, rec.Code, path)

		var body errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), path)
		assert.NotEmpty(t, body.Error, path)
	}
}

func TestNavigation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPut, "/api/v1/navigation", `{"next":true,"previous":false}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	f.session.mu.Lock()
	defer f.session.mu.Unlock()
	assert.Equal(t, nowplaying.Commands{Next: true}, f.session.navigated)
}

func TestSleepTimer(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/api/v1/sleep", `{"duration":"30m"}`).Code)
	f.session.mu.Lock()
	assert.Equal(t, 30*time.Minute, f.session.sleep)
	f.session.mu.Unlock()

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/v1/sleep", `{"duration":"soon"}`).Code)

	f.session.errs["sleep"] = errors.New("sleep duration must be positive")
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/v1/sleep", `{"duration":"-1m"}`).Code)

	require.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/api/v1/sleep", "").Code)
	assert.Contains(t, f.session.Calls(), "cancel sleep")
}

func TestNowPlaying(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/nowplaying", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var empty nowPlayingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &empty))
	assert.Equal(t, "no_station", empty.Phase)
	assert.Nil(t, empty.Station)
	assert.Nil(t, empty.Surface)

	require.NoError(t, f.engine.SetStation(ctx, nowplaying.Station{
		Title:               "Jazz FM",
		StreamURL:           "https://x/stream.mp3",
		DefaultArtwork:      []byte("A"),
		ParseStreamMetadata: true,
	}))
	require.NoError(t, f.engine.OnIcyMetadata(ctx, "Miles Davis - So What", ""))
	require.Eventually(t, func() bool {
		snap, err := f.engine.Snapshot(ctx)
		return err == nil && snap.Track != nil
	}, 2*time.Second, 10*time.Millisecond)
	f.surface.SetCommands(nowplaying.Commands{Next: true})

	rec = f.do(http.MethodGet, "/api/v1/nowplaying", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp nowPlayingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "station_ready", resp.Phase)
	require.NotNil(t, resp.Station)
	assert.Equal(t, "Jazz FM", resp.Station.Title)
	require.NotNil(t, resp.Track)
	assert.Equal(t, "Miles Davis", resp.Track.Artist)
	assert.Equal(t, "So What", resp.Track.Title)
	assert.Equal(t, []byte("A"), resp.Track.ArtworkData)
	require.NotNil(t, resp.Surface)
	assert.False(t, resp.Surface.Initial)
	assert.True(t, resp.Surface.HasArtwork)
	assert.Equal(t, nowplaying.Commands{Next: true}, resp.Commands)
	assert.Equal(t, "playing", resp.Session.PlaybackState)
}

// readData returns the data of the next SSE event on r.
func readData(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			return event, strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

func TestEventStreams(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	f.broker.PublishPlaybackState(events.StatePlaying)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	open := func(stream string) (*http.Response, *bufio.Reader) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events/"+stream, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp, bufio.NewReader(resp.Body)
	}

	resp, states := open("playback-state")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	event, data := readData(t, states)
	assert.Equal(t, "playback_state", event)
	assert.Equal(t, events.StatePlaying, data)

	_, meta := open("metadata")
	f.broker.PublishMetadata(events.Metadata{Artist: "Miles Davis", Title: "So What", ArtworkData: []byte("A")})

	event, data = readData(t, meta)
	assert.Equal(t, "metadata", event)
	var m events.Metadata
	require.NoError(t, json.Unmarshal([]byte(data), &m))
	assert.Equal(t, events.Metadata{Artist: "Miles Davis", Title: "So What", ArtworkData: []byte("A")}, m)

	_, commands := open("remote-command")
	f.broker.PublishRemoteCommand(events.CommandNext)
	event, data = readData(t, commands)
	assert.Equal(t, "remote_command", event)
	assert.Equal(t, events.CommandNext, data)

	resp, _ = open("nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
