package hibiki

import "github.com/cockroachdb/errors"

// Errors
var (
	// ErrPlayerDestroyed is returned by any command issued on a destroyed
	// player. Destroyed is absorbing: the player has left the registry and
	// accepts nothing further.
	ErrPlayerDestroyed = errors.New("player is already destroyed")

	// ErrAlreadyDisconnected is returned by Disconnect when the player is
	// already disconnected or holds no voice channel.
	ErrAlreadyDisconnected = errors.New("player is already disconnected")

	// ErrInvalidVolume is returned for a NaN or infinite volume.
	ErrInvalidVolume = errors.New("volume must be a finite number")

	// ErrInvalidChannel is returned for an empty channel id.
	ErrInvalidChannel = errors.New("channel id must not be empty")

	// ErrUnknownEngine is returned for a search engine outside the fixed
	// engine table.
	ErrUnknownEngine = errors.New("unknown search engine")

	// ErrNoNodesOnline is returned when no rendering node can accept a
	// player or search.
	ErrNoNodesOnline = errors.New("no nodes are online")

	// ErrNoMatches is returned by the track resolver after both engines
	// came back empty. The track stays unplayable; callers must not loop.
	ErrNoMatches = errors.New("no playable match found")

	// ErrCatalogNotConfigured is returned when a search selects the
	// catalog engine but no catalog resolver was configured.
	ErrCatalogNotConfigured = errors.New("catalog resolver is not configured")
)
