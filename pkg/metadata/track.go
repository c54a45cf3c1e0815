// Package metadata normalizes raw track announcements into canonical
// artist/title/artwork triples.
package metadata

import (
	"strconv"
	"strings"
)

// Separator splits an in-band announcement into artist and title.
const Separator = " - "

// absentMarker stands in for a missing field when building dedup keys, so that
// ("", "x") and ("x", "") never collide. Present fields are quoted and can
// never equal it.
const absentMarker = "-"

// Track is the canonical now-playing metadata. An empty string means absent.
type Track struct {
	Artist     string
	Title      string
	ArtworkURL string
	Artwork    []byte
}

// Normalize trims every field of an app or stream supplied announcement.
func Normalize(artist, title, artworkURL string) Track {
	return Track{
		Artist:     strings.TrimSpace(artist),
		Title:      strings.TrimSpace(title),
		ArtworkURL: strings.TrimSpace(artworkURL),
	}
}

// Key returns the duplicate-suppression key. Artwork is deliberately not part
// of it: a repeated announcement of the same track is not a new track.
func Key(artist, title string) string {
	return field(artist) + " " + field(title)
}

func field(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return absentMarker
	}
	return strconv.Quote(s)
}

// Key returns the duplicate-suppression key of t.
func (t Track) Key() string {
	return Key(t.Artist, t.Title)
}

// Equal reports whether two tracks announce the same artist and title.
func (t Track) Equal(o Track) bool {
	return t.Key() == o.Key()
}

// ParseStreamTitle splits an in-band "Artist - Title" announcement. Exactly one
// separator yields both halves; zero or several separators yield the whole
// string as the title. ok is false when raw is blank.
func ParseStreamTitle(raw string) (artist, title string, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", false
	}

	if strings.Count(raw, Separator) != 1 {
		return "", raw, true
	}

	parts := strings.SplitN(raw, Separator, 2)
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
}
