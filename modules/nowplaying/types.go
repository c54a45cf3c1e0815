package nowplaying

import (
	"bytes"

	"github.com/zachfi/radioplayer/pkg/metadata"
)

// Station is the stream currently selected for playback.
type Station struct {
	Title               string
	StreamURL           string
	DefaultArtwork      []byte
	ParseStreamMetadata bool
	LookupOnlineArtwork bool
}

func (s Station) clone() Station {
	s.DefaultArtwork = bytes.Clone(s.DefaultArtwork)
	return s
}

type Phase int

const (
	NoStation Phase = iota
	StationReady
)

func (p Phase) String() string {
	switch p {
	case NoStation:
		return "no_station"
	case StationReady:
		return "station_ready"
	}
	return "unknown"
}

// Snapshot is a copy of the engine state at one point in time. Track is nil
// until a track has been published for the current station.
type Snapshot struct {
	Phase      Phase
	Station    *Station
	Track      *metadata.Track
	Generation uint64
}

// Info is one complete now-playing surface entry.
type Info struct {
	StationTitle string
	Artist       string
	Title        string
	ArtworkURL   string
	Artwork      []byte

	// Initial marks the entry written when a station is selected, before any
	// track is known.
	Initial bool
}

func (i Info) clone() Info {
	i.Artwork = bytes.Clone(i.Artwork)
	return i
}
