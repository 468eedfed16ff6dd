// Package track provides the Track domain entity.
package track

import "time"

// Track represents a single playable or placeholder track.
// A track with an empty Encoded field is a placeholder: it carries
// metadata only and must be resolved before it can be played.
type Track struct {
	Encoded    string        // Opaque playable handle from the search backend (empty = placeholder)
	Identifier string        // Source-specific identifier
	Title      string        // Track title
	Author     string        // Track author / primary artist
	Length     time.Duration // Track duration (0 if unknown)
	IsSeekable bool          // Whether the rendering node can seek within the track
	IsStream   bool          // Whether the track is a live stream
	SourceName string        // Originating source ("youtube", "spotify", ...)
	URI        string        // Canonical URL
	Thumbnail  string        // Artwork URL (optional)
	Requester  *Requester    // Who queued the track (optional)
}

// Requester identifies who requested a track.
type Requester struct {
	ID          string
	DisplayName string
}

// Playable reports whether the track can be handed to a rendering node.
func (t *Track) Playable() bool {
	return t.Encoded != ""
}
