// Package api exposes the playback session over HTTP: commands as JSON
// requests and the application event streams as server-sent events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/grafana/dskit/services"

	"github.com/zachfi/radioplayer/modules/events"
	"github.com/zachfi/radioplayer/modules/nowplaying"
	"github.com/zachfi/radioplayer/modules/session"
)

const module = "api"

// Session is the playback session driven by the API.
type Session interface {
	SetStation(ctx context.Context, st nowplaying.Station) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	Reset(ctx context.Context) error
	SetCustomMetadata(ctx context.Context, artist, title, artworkURL string) error
	SetNavigationControls(next, previous bool)
	RemoteCommand(ctx context.Context, command string) error
	Interruption(ctx context.Context, began, shouldResume bool) error
	StartSleepTimer(d time.Duration) error
	CancelSleepTimer()
	Status() session.Status
}

type Snapshotter interface {
	Snapshot(ctx context.Context) (nowplaying.Snapshot, error)
}

// Surface is the readable side of the now-playing surface.
type Surface interface {
	NowPlaying() (nowplaying.Info, bool)
	Commands() nowplaying.Commands
}

type API struct {
	services.Service

	cfg     *Config
	logger  *slog.Logger
	session Session
	engine  Snapshotter
	surface Surface
	broker  *events.Broker

	// done ends open event streams so the server can shut down.
	done chan struct{}
}

func New(cfg Config, logger *slog.Logger, router *mux.Router, s Session, engine Snapshotter, surface Surface, broker *events.Broker) (*API, error) {
	if router == nil {
		return nil, errors.New("router is required")
	}
	cfg.applyDefaults()

	a := &API{
		cfg:     &cfg,
		logger:  logger.With("module", module),
		session: s,
		engine:  engine,
		surface: surface,
		broker:  broker,
		done:    make(chan struct{}),
	}
	a.registerRoutes(router.PathPrefix(cfg.PathPrefix).Subrouter())

	a.Service = services.NewIdleService(nil, a.stopping)

	return a, nil
}

func (a *API) stopping(_ error) error {
	close(a.done)
	return nil
}

func (a *API) registerRoutes(r *mux.Router) {
	r.HandleFunc("/station", a.setStation).Methods(http.MethodPut)
	r.HandleFunc("/play", a.command(a.session.Play)).Methods(http.MethodPost)
	r.HandleFunc("/pause", a.command(a.session.Pause)).Methods(http.MethodPost)
	r.HandleFunc("/stop", a.command(a.session.Stop)).Methods(http.MethodPost)
	r.HandleFunc("/reset", a.command(a.session.Reset)).Methods(http.MethodPost)
	r.HandleFunc("/metadata", a.setMetadata).Methods(http.MethodPut)
	r.HandleFunc("/navigation", a.setNavigation).Methods(http.MethodPut)
	r.HandleFunc("/remote/{command}", a.remoteCommand).Methods(http.MethodPost)
	r.HandleFunc("/interruption", a.interruption).Methods(http.MethodPost)
	r.HandleFunc("/sleep", a.startSleep).Methods(http.MethodPost)
	r.HandleFunc("/sleep", a.cancelSleep).Methods(http.MethodDelete)
	r.HandleFunc("/nowplaying", a.nowPlaying).Methods(http.MethodGet)
	r.HandleFunc("/events/{stream}", a.streamEvents).Methods(http.MethodGet)
}

// badRequest marks errors caused by the request itself.
type badRequest struct {
	err error
}

func (e badRequest) Error() string { return e.err.Error() }
func (e badRequest) Unwrap() error { return e.err }

func statusFor(err error) int {
	var br badRequest
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest
	case errors.Is(err, nowplaying.ErrNoStation), errors.Is(err, session.ErrCommandUnavailable):
		return http.StatusConflict
	case errors.Is(err, session.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, nowplaying.ErrNotRunning), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		a.logger.Error("request failed", "path", r.URL.Path, "err", err)
	} else {
		a.logger.Debug("request rejected", "path", r.URL.Path, "err", err)
	}
	a.writeJSON(w, code, errorResponse{Error: err.Error()})
}

func (a *API) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("failed to write response", "err", err)
	}
}

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest{fmt.Errorf("invalid request body: %w", err)}
	}
	return nil
}
