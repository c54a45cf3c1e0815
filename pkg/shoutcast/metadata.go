package shoutcast

import (
	"github.com/zachfi/radioplayer/pkg/metadata"
)

// Metadata is the decoded content of one ICY metadata block.
type Metadata struct {
	// Raw StreamTitle value, usually "Artist - Title"
	StreamTitle string

	// Optional StreamUrl value; some stations put cover art here
	StreamURL string
}

// NewMetadata decodes a raw metadata block.
func NewMetadata(block []byte) *Metadata {
	title, url := metadata.ParseICYBlock(block)
	return &Metadata{
		StreamTitle: title,
		StreamURL:   url,
	}
}

// Equals compares two metadata blocks; a nil receiver only equals nil.
func (m *Metadata) Equals(other *Metadata) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.StreamTitle == other.StreamTitle && m.StreamURL == other.StreamURL
}
