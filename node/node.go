// Package node defines the boundary to a remote audio-rendering node.
// The node decodes and streams audio; this library only drives it.
// Implementations of these interfaces live in the embedding application.
package node

import (
	"context"
	"time"

	"github.com/hibiki-audio/hibiki/track"
)

// Node is a single rendering-node connection pool. It also fronts the
// node's search backend via Resolve.
type Node interface {
	// Name identifies the node in logs.
	Name() string
	// Online reports whether the node can accept players.
	Online() bool
	// Players returns the number of players currently bound to the node.
	Players() int
	// Join connects to a voice channel and returns the player connection.
	Join(ctx context.Context, guildID, channelID string, shardID int, deaf bool) (Conn, error)
	// Resolve runs a search or URL load against the node's search backend.
	// The identifier is either an engine-prefixed query ("ytsearch:...")
	// or a bare URL.
	Resolve(ctx context.Context, identifier string) (*LoadResult, error)
}

// Conn is one guild's connection to a rendering node.
type Conn interface {
	Play(ctx context.Context, encoded string) error
	SetPaused(ctx context.Context, paused bool) error
	Stop(ctx context.Context) error
	SeekTo(ctx context.Context, position time.Duration) error
	// SetVolume takes a normalized 0..1 value.
	SetVolume(ctx context.Context, volume float64) error
	// Events returns the node's lifecycle event stream for this guild.
	// The channel is closed when the connection closes.
	Events() <-chan Event
	// Node returns the node this connection is bound to.
	Node() Node
	Close(ctx context.Context) error
}

// EventType represents a node lifecycle event type.
type EventType int

const (
	EventStart     EventType = iota // Track started playing on the node
	EventEnd                        // Track ended (see Reason)
	EventClosed                     // Voice websocket closed
	EventException                  // Track raised an exception
	EventUpdate                     // Periodic player state update
	EventStuck                      // Track stopped making progress
	EventResumed                    // Node session resumed
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventEnd:
		return "end"
	case EventClosed:
		return "closed"
	case EventException:
		return "exception"
	case EventUpdate:
		return "update"
	case EventStuck:
		return "stuck"
	case EventResumed:
		return "resumed"
	default:
		return "unknown"
	}
}

// EndReason explains why a track ended.
type EndReason string

const (
	ReasonFinished   EndReason = "FINISHED"
	ReasonReplaced   EndReason = "REPLACED"
	ReasonLoadFailed EndReason = "LOAD_FAILED"
	ReasonCleanup    EndReason = "CLEAN_UP"
	ReasonStopped    EndReason = "STOPPED"
)

// Faulty reports whether the reason indicates the node failed the track
// rather than completing it.
func (r EndReason) Faulty() bool {
	return r == ReasonLoadFailed || r == ReasonCleanup
}

// Event is a single lifecycle event from the node.
type Event struct {
	Type      EventType
	Reason    EndReason     // end
	Code      int           // closed
	ByRemote  bool          // closed
	Error     error         // exception
	Position  time.Duration // update
	Threshold time.Duration // stuck
}

// LoadType classifies a search backend response.
type LoadType string

const (
	LoadTypeTrack     LoadType = "TRACK_LOADED"
	LoadTypePlaylist  LoadType = "PLAYLIST_LOADED"
	LoadTypeNoMatches LoadType = "NO_MATCHES"
	LoadTypeFailed    LoadType = "LOAD_FAILED"
)

// Exception carries a provider failure message back to the caller as data.
type Exception struct {
	Message  string
	Severity string
}

// LoadResult is the generic search backend response.
type LoadResult struct {
	LoadType     LoadType
	PlaylistName string // Set for playlist/album/artist loads
	Tracks       []*track.Track
	Exception    *Exception
}
