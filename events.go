package hibiki

import (
	"github.com/hibiki-audio/hibiki/node"
	"github.com/hibiki-audio/hibiki/track"
)

// EventType represents an event produced for the embedding application.
type EventType int

const (
	EventTrackStart     EventType = iota // A track started playing
	EventTrackEnd                        // A track finished or was superseded
	EventTrackError                      // Resolution or play dispatch failed; queue does not auto-advance
	EventTrackException                  // The node raised a track exception
	EventTrackStuck                      // The node reported a stuck track
	EventQueueEnd                        // The queue drained after a normal completion
	EventPlayerEmpty                     // The queue drained after a faulty completion
	EventPlayerClosed                    // The node's voice websocket closed
	EventPlayerUpdate                    // Periodic node state update
	EventPlayerResumed                   // The node session resumed
	EventPlayerCreate                    // A player was registered
	EventPlayerDestroy                   // A player was destroyed and deregistered
	EventDebug                           // Diagnostic message
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStart:
		return "track_start"
	case EventTrackEnd:
		return "track_end"
	case EventTrackError:
		return "track_error"
	case EventTrackException:
		return "track_exception"
	case EventTrackStuck:
		return "track_stuck"
	case EventQueueEnd:
		return "queue_end"
	case EventPlayerEmpty:
		return "player_empty"
	case EventPlayerClosed:
		return "player_closed"
	case EventPlayerUpdate:
		return "player_update"
	case EventPlayerResumed:
		return "player_resumed"
	case EventPlayerCreate:
		return "player_create"
	case EventPlayerDestroy:
		return "player_destroy"
	case EventDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// Event is delivered on the manager's event channel.
type Event struct {
	Type    EventType
	GuildID string
	Player  *Player
	Track   *track.Track // Set for track-scoped events
	Err     error        // Set for track_error / track_exception
	Node    *node.Event  // Raw node payload for closed/exception/update/stuck
	Message string       // Set for debug
}
