package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gorilla/mux"

	"github.com/zachfi/radioplayer/modules/events"
)

// streams maps event stream names to the event kinds they carry.
var streams = map[string][]events.Kind{
	"state":          {events.KindPlaying},
	"playback-state": {events.KindPlaybackState},
	"metadata":       {events.KindMetadata},
	"remote-command": {events.KindRemoteCommand},
	"all":            nil,
}

func (a *API) streamEvents(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["stream"]
	kinds, ok := streams[name]
	if !ok {
		a.writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("unknown event stream %q", name)})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		a.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	sub := a.broker.Subscribe(a.cfg.EventBuffer, kinds...)
	defer sub.Close()

	w.Header().Set("Content-Type", sse.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	a.logger.Debug("event stream opened", "stream", name, "remote", r.RemoteAddr)
	defer a.logger.Debug("event stream closed", "stream", name, "remote", r.RemoteAddr)

	keepAlive := time.NewTicker(a.cfg.KeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-a.done:
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			err := sse.Encode(w, sse.Event{
				Event: string(ev.Kind),
				Data:  eventData(ev),
			})
			if err != nil {
				a.logger.Debug("failed to write event", "stream", name, "err", err)
				return
			}
			flusher.Flush()
		}
	}
}

// eventData is the SSE data for ev. Metadata goes out as a JSON object.
func eventData(ev events.Event) interface{} {
	if ev.Kind == events.KindMetadata && ev.Metadata != nil {
		return *ev.Metadata
	}
	return ev.Payload()
}
