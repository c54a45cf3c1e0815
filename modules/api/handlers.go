package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/zachfi/radioplayer/modules/nowplaying"
)

type stationRequest struct {
	Title               string `json:"title"`
	URL                 string `json:"url"`
	DefaultArtwork      []byte `json:"defaultArtwork,omitempty"`
	ParseStreamMetadata *bool  `json:"parseStreamMetadata,omitempty"`
	LookupOnlineArtwork bool   `json:"lookupOnlineArtwork,omitempty"`
}

func (a *API) setStation(w http.ResponseWriter, r *http.Request) {
	var req stationRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if req.URL == "" {
		a.writeError(w, r, badRequest{errors.New("url is required")})
		return
	}

	st := nowplaying.Station{
		Title:               req.Title,
		StreamURL:           req.URL,
		DefaultArtwork:      req.DefaultArtwork,
		ParseStreamMetadata: true,
		LookupOnlineArtwork: req.LookupOnlineArtwork,
	}
	if req.ParseStreamMetadata != nil {
		st.ParseStreamMetadata = *req.ParseStreamMetadata
	}

	if err := a.session.SetStation(r.Context(), st); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) command(fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r.Context()); err != nil {
			a.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type metadataRequest struct {
	Artist     string `json:"artist"`
	Title      string `json:"title"`
	ArtworkURL string `json:"artworkUrl"`
}

func (a *API) setMetadata(w http.ResponseWriter, r *http.Request) {
	var req metadataRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	if err := a.session.SetCustomMetadata(r.Context(), req.Artist, req.Title, req.ArtworkURL); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type navigationRequest struct {
	Next     bool `json:"next"`
	Previous bool `json:"previous"`
}

func (a *API) setNavigation(w http.ResponseWriter, r *http.Request) {
	var req navigationRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	a.session.SetNavigationControls(req.Next, req.Previous)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) remoteCommand(w http.ResponseWriter, r *http.Request) {
	if err := a.session.RemoteCommand(r.Context(), mux.Vars(r)["command"]); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type interruptionRequest struct {
	Began        bool `json:"began"`
	ShouldResume bool `json:"shouldResume"`
}

func (a *API) interruption(w http.ResponseWriter, r *http.Request) {
	var req interruptionRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	if err := a.session.Interruption(r.Context(), req.Began, req.ShouldResume); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sleepRequest struct {
	Duration string `json:"duration"`
}

func (a *API) startSleep(w http.ResponseWriter, r *http.Request) {
	var req sleepRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	d, err := time.ParseDuration(req.Duration)
	if err != nil {
		a.writeError(w, r, badRequest{err})
		return
	}

	if err := a.session.StartSleepTimer(d); err != nil {
		a.writeError(w, r, badRequest{err})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) cancelSleep(w http.ResponseWriter, _ *http.Request) {
	a.session.CancelSleepTimer()
	w.WriteHeader(http.StatusNoContent)
}

type stationView struct {
	Title               string `json:"title"`
	URL                 string `json:"url"`
	HasDefaultArtwork   bool   `json:"hasDefaultArtwork"`
	ParseStreamMetadata bool   `json:"parseStreamMetadata"`
	LookupOnlineArtwork bool   `json:"lookupOnlineArtwork"`
}

type trackView struct {
	Artist      string `json:"artist"`
	Title       string `json:"title"`
	ArtworkURL  string `json:"artworkUrl"`
	ArtworkData []byte `json:"artworkData"`
}

type surfaceView struct {
	StationTitle string `json:"stationTitle"`
	Artist       string `json:"artist"`
	Title        string `json:"title"`
	ArtworkURL   string `json:"artworkUrl"`
	HasArtwork   bool   `json:"hasArtwork"`
	Initial      bool   `json:"initial"`
}

type sessionView struct {
	Intent        string     `json:"intent"`
	Item          string     `json:"item"`
	PlaybackState string     `json:"playbackState"`
	SleepDeadline *time.Time `json:"sleepDeadline,omitempty"`
}

type nowPlayingResponse struct {
	Phase      string              `json:"phase"`
	Generation uint64              `json:"generation"`
	Station    *stationView        `json:"station,omitempty"`
	Track      *trackView          `json:"track,omitempty"`
	Surface    *surfaceView        `json:"surface,omitempty"`
	Commands   nowplaying.Commands `json:"commands"`
	Session    sessionView         `json:"session"`
}

func (a *API) nowPlaying(w http.ResponseWriter, r *http.Request) {
	snap, err := a.engine.Snapshot(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	resp := nowPlayingResponse{
		Phase:      snap.Phase.String(),
		Generation: snap.Generation,
		Commands:   a.surface.Commands(),
	}

	if st := snap.Station; st != nil {
		resp.Station = &stationView{
			Title:               st.Title,
			URL:                 st.StreamURL,
			HasDefaultArtwork:   len(st.DefaultArtwork) > 0,
			ParseStreamMetadata: st.ParseStreamMetadata,
			LookupOnlineArtwork: st.LookupOnlineArtwork,
		}
	}

	if t := snap.Track; t != nil {
		resp.Track = &trackView{
			Artist:      t.Artist,
			Title:       t.Title,
			ArtworkURL:  t.ArtworkURL,
			ArtworkData: t.Artwork,
		}
	}

	if info, ok := a.surface.NowPlaying(); ok {
		resp.Surface = &surfaceView{
			StationTitle: info.StationTitle,
			Artist:       info.Artist,
			Title:        info.Title,
			ArtworkURL:   info.ArtworkURL,
			HasArtwork:   len(info.Artwork) > 0,
			Initial:      info.Initial,
		}
	}

	status := a.session.Status()
	resp.Session = sessionView{
		Intent:        status.Intent.String(),
		Item:          status.Item.String(),
		PlaybackState: status.PlaybackState,
	}
	if !status.SleepDeadline.IsZero() {
		d := status.SleepDeadline
		resp.Session.SleepDeadline = &d
	}

	a.writeJSON(w, http.StatusOK, resp)
}
