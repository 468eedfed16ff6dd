package hibiki

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/hibiki-audio/hibiki/node"
	"github.com/hibiki-audio/hibiki/queue"
)

// Player is the per-guild playback session. It owns the queue, forwards
// commands to its rendering-node connection, and advances the queue as the
// node reports track lifecycle events. All mutation happens under the
// player mutex; node events are drained by a single goroutine, so delivery
// is serialized per session.
type Player struct {
	manager *Manager
	id      string // instance id, logging only
	guildID string
	conn    node.Conn
	queue   *queue.Queue

	mu      sync.RWMutex
	voiceID string
	textID  string
	volume  float64 // percentage units
	loop    LoopMode
	paused  bool
	playing bool
	state   State

	// generation tags in-flight resolutions; Skip and Destroy bump it so a
	// resolution finishing for a superseded track is discarded.
	generation uint64

	ctx    context.Context
	cancel context.CancelFunc
}

func newPlayer(m *Manager, conn node.Conn, opts PlayerOptions) *Player {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		manager: m,
		id:      uuid.New().String(),
		guildID: opts.GuildID,
		conn:    conn,
		queue:   queue.New(),
		voiceID: opts.VoiceChannelID,
		textID:  opts.TextChannelID,
		volume:  opts.Volume,
		loop:    LoopNone,
		state:   StateConnected,
		ctx:     ctx,
		cancel:  cancel,
	}
	go p.listen()
	return p
}

// GuildID returns the guild this player is bound to.
func (p *Player) GuildID() string { return p.guildID }

// Queue returns the player's queue.
func (p *Player) Queue() *queue.Queue { return p.queue }

// Node returns the rendering node this player is bound to.
func (p *Player) Node() node.Node { return p.conn.Node() }

// State returns the lifecycle state.
func (p *Player) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Paused reports whether playback is paused.
func (p *Player) Paused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

// Playing reports whether a track is playing.
func (p *Player) Playing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.playing
}

// Volume returns the volume in percentage units.
func (p *Player) Volume() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.volume
}

// Loop returns the loop mode.
func (p *Player) Loop() LoopMode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loop
}

// VoiceChannelID returns the bound voice channel, empty once disconnected.
func (p *Player) VoiceChannelID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.voiceID
}

// TextChannelID returns the bound text channel.
func (p *Player) TextChannelID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.textID
}

// Pause pauses or resumes playback. No-op when already in the requested
// state or when the queue has zero total size.
func (p *Player) Pause(ctx context.Context, pause bool) error {
	p.mu.Lock()
	if p.state == StateDestroyed {
		p.mu.Unlock()
		return errors.Wrapf(ErrPlayerDestroyed, "guild %s", p.guildID)
	}
	if p.paused == pause || p.queue.TotalSize() == 0 {
		p.mu.Unlock()
		return nil
	}
	p.paused = pause
	p.playing = !pause
	if pause {
		p.state = StatePaused
	} else {
		p.state = StatePlaying
	}
	p.mu.Unlock()

	return p.conn.SetPaused(ctx, pause)
}

// Skip asks the node to stop the current track. The node's end event then
// advances the queue; Skip itself never mutates it.
func (p *Player) Skip(ctx context.Context) error {
	p.mu.Lock()
	if p.state == StateDestroyed {
		p.mu.Unlock()
		return errors.Wrapf(ErrPlayerDestroyed, "guild %s", p.guildID)
	}
	p.generation++
	p.mu.Unlock()

	return p.conn.Stop(ctx)
}

// SeekTo seeks within the current track.
func (p *Player) SeekTo(ctx context.Context, position time.Duration) error {
	p.mu.RLock()
	destroyed := p.state == StateDestroyed
	p.mu.RUnlock()
	if destroyed {
		return errors.Wrapf(ErrPlayerDestroyed, "guild %s", p.guildID)
	}

	return p.conn.SeekTo(ctx, position)
}

// SetVolume stores the percentage volume and forwards the normalized 0..1
// value to the node.
func (p *Player) SetVolume(ctx context.Context, volume float64) error {
	if math.IsNaN(volume) || math.IsInf(volume, 0) {
		return errors.Wrapf(ErrInvalidVolume, "%v", volume)
	}

	p.mu.Lock()
	if p.state == StateDestroyed {
		p.mu.Unlock()
		return errors.Wrapf(ErrPlayerDestroyed, "guild %s", p.guildID)
	}
	p.volume = volume
	p.mu.Unlock()

	return p.conn.SetVolume(ctx, volume/100)
}

// SetTextChannel rebinds the text channel. Pure local state.
func (p *Player) SetTextChannel(id string) error {
	if id == "" {
		return errors.Wrap(ErrInvalidChannel, "text channel")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateDestroyed {
		return errors.Wrapf(ErrPlayerDestroyed, "guild %s", p.guildID)
	}
	p.textID = id
	return nil
}

// SetVoiceChannel rebinds the voice channel. Pure local state.
func (p *Player) SetVoiceChannel(id string) error {
	if id == "" {
		return errors.Wrap(ErrInvalidChannel, "voice channel")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateDestroyed {
		return errors.Wrapf(ErrPlayerDestroyed, "guild %s", p.guildID)
	}
	p.voiceID = id
	return nil
}

// SetLoop enables track or queue looping; any other mode resets to none.
func (p *Player) SetLoop(mode LoopMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateDestroyed {
		return errors.Wrapf(ErrPlayerDestroyed, "guild %s", p.guildID)
	}

	switch mode {
	case LoopTrack, LoopQueue:
		p.loop = mode
	default:
		p.loop = LoopNone
	}
	return nil
}

// Search delegates to the manager's search routing. Present on the player
// because results commonly target its queue.
func (p *Player) Search(ctx context.Context, query string, opts SearchOptions) (*node.LoadResult, error) {
	p.mu.RLock()
	destroyed := p.state == StateDestroyed
	p.mu.RUnlock()
	if destroyed {
		return nil, errors.Wrapf(ErrPlayerDestroyed, "guild %s", p.guildID)
	}

	return p.manager.Search(ctx, query, opts)
}

// Play pops the queue's front into current and issues a play command,
// resolving the track first when it is a placeholder. No-op on an empty
// queue. Resolution and dispatch failures surface as track_error events;
// the queue does not auto-advance past them.
func (p *Player) Play(ctx context.Context) error {
	p.mu.Lock()
	if p.state == StateDestroyed {
		p.mu.Unlock()
		return errors.Wrapf(ErrPlayerDestroyed, "guild %s", p.guildID)
	}
	next := p.queue.Shift()
	if next == nil {
		p.mu.Unlock()
		return nil
	}
	p.queue.SetCurrent(next)
	gen := p.generation
	volume := p.volume
	p.mu.Unlock()

	if !next.Playable() {
		if _, err := p.manager.ResolveTrack(ctx, next, p.conn.Node()); err != nil {
			p.manager.emit(Event{Type: EventTrackError, GuildID: p.guildID, Player: p, Track: next, Err: err})
			return nil
		}

		p.mu.RLock()
		stale := p.generation != gen || p.queue.Current() != next || p.state == StateDestroying || p.state == StateDestroyed
		p.mu.RUnlock()
		if stale {
			p.debug("discarding stale track resolution")
			return nil
		}
	}

	if err := p.conn.SetVolume(ctx, volume/100); err != nil {
		p.manager.emit(Event{Type: EventTrackError, GuildID: p.guildID, Player: p, Track: next, Err: err})
		return nil
	}
	if err := p.conn.Play(ctx, next.Encoded); err != nil {
		p.manager.emit(Event{Type: EventTrackError, GuildID: p.guildID, Player: p, Track: next, Err: err})
		return nil
	}
	return nil
}

// Disconnect pauses playback, leaves the voice channel, and clears the
// voice binding.
func (p *Player) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	if p.state == StateDestroyed {
		p.mu.Unlock()
		return errors.Wrapf(ErrPlayerDestroyed, "guild %s", p.guildID)
	}
	if p.state == StateDisconnected || p.voiceID == "" {
		p.mu.Unlock()
		return errors.Wrapf(ErrAlreadyDisconnected, "guild %s", p.guildID)
	}
	p.state = StateDisconnecting
	// Pause inline; going through Pause would overwrite the disconnecting
	// state mid-transition.
	pause := !p.paused && p.queue.TotalSize() > 0
	if pause {
		p.paused = true
		p.playing = false
	}
	p.mu.Unlock()

	if pause {
		if err := p.conn.SetPaused(ctx, true); err != nil {
			zlog.Warn().Err(err).Str("guild_id", p.guildID).Msg("pause during disconnect failed")
		}
	}

	if err := p.manager.gateway().UpdateVoiceState(ctx, p.guildID, "", false, false); err != nil {
		zlog.Warn().Err(err).Str("guild_id", p.guildID).Msg("voice leave failed")
	}

	p.mu.Lock()
	p.voiceID = ""
	p.state = StateDisconnected
	p.mu.Unlock()

	p.debug("player disconnected")
	return nil
}

// Destroy disconnects, releases the node binding, removes the player from
// the registry, and emits a destroy notification. A failed disconnect
// guard is swallowed: destroy's job is cleanup regardless of prior state.
func (p *Player) Destroy(ctx context.Context) error {
	p.mu.Lock()
	if p.state == StateDestroyed {
		p.mu.Unlock()
		return errors.Wrapf(ErrPlayerDestroyed, "guild %s", p.guildID)
	}
	p.state = StateDestroying
	p.generation++
	p.mu.Unlock()

	if err := p.Disconnect(ctx); err != nil {
		zlog.Debug().Err(err).Str("guild_id", p.guildID).Msg("disconnect during destroy")
	}

	p.mu.Lock()
	p.state = StateDestroyed
	p.mu.Unlock()

	p.cancel()
	if err := p.conn.Close(ctx); err != nil {
		zlog.Warn().Err(err).Str("guild_id", p.guildID).Msg("node connection close failed")
	}

	p.manager.removePlayer(p.guildID)
	p.manager.emit(Event{Type: EventPlayerDestroy, GuildID: p.guildID, Player: p})
	p.debug("player destroyed")
	return nil
}

// listen drains the node's event stream until the player is destroyed or
// the connection closes.
func (p *Player) listen() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case ev, ok := <-p.conn.Events():
			if !ok {
				return
			}
			p.handleEvent(ev)
		}
	}
}

func (p *Player) handleEvent(ev node.Event) {
	switch ev.Type {
	case node.EventStart:
		p.mu.Lock()
		p.playing = true
		p.state = StatePlaying
		cur := p.queue.Current()
		p.mu.Unlock()
		p.manager.emit(Event{Type: EventTrackStart, GuildID: p.guildID, Player: p, Track: cur})

	case node.EventEnd:
		p.handleEnd(ev)

	case node.EventClosed:
		p.mu.Lock()
		p.playing = false
		p.mu.Unlock()
		p.manager.emit(Event{Type: EventPlayerClosed, GuildID: p.guildID, Player: p, Node: &ev})

	case node.EventException:
		p.mu.Lock()
		p.playing = false
		p.mu.Unlock()
		p.manager.emit(Event{Type: EventTrackException, GuildID: p.guildID, Player: p, Track: p.queue.Current(), Err: ev.Error, Node: &ev})

	case node.EventUpdate:
		p.manager.emit(Event{Type: EventPlayerUpdate, GuildID: p.guildID, Player: p, Node: &ev})

	case node.EventStuck:
		p.manager.emit(Event{Type: EventTrackStuck, GuildID: p.guildID, Player: p, Track: p.queue.Current(), Node: &ev})

	case node.EventResumed:
		p.manager.emit(Event{Type: EventPlayerResumed, GuildID: p.guildID, Player: p})
	}
}

// handleEnd advances the queue according to the end reason and loop mode.
// This is the only place the queue advances.
func (p *Player) handleEnd(ev node.Event) {
	p.mu.Lock()

	if p.state == StateDestroying || p.state == StateDestroyed {
		p.mu.Unlock()
		p.debug("end event after destroy, suppressed")
		return
	}

	if ev.Reason == node.ReasonReplaced {
		cur := p.queue.Current()
		p.mu.Unlock()
		// A replacement play is already in flight; no queue advance.
		p.manager.emit(Event{Type: EventTrackEnd, GuildID: p.guildID, Player: p, Track: cur})
		return
	}

	if ev.Reason.Faulty() {
		cur := p.queue.Current()
		p.queue.SetPrevious(cur)
		p.playing = false
		if p.queue.IsEmpty() {
			p.mu.Unlock()
			p.manager.emit(Event{Type: EventPlayerEmpty, GuildID: p.guildID, Player: p})
			return
		}
		p.queue.SetCurrent(nil)
		p.mu.Unlock()
		p.manager.emit(Event{Type: EventTrackEnd, GuildID: p.guildID, Player: p, Track: cur})
		_ = p.Play(p.ctx)
		return
	}

	// Normal completion. Loop re-insertion happens before the empty check,
	// so a single-track queue in queue-loop mode never empties.
	cur := p.queue.Current()
	if cur != nil {
		switch p.loop {
		case LoopTrack:
			p.queue.PushFront(cur)
		case LoopQueue:
			p.queue.PushBack(cur)
		}
	}
	p.queue.SetPrevious(cur)
	p.queue.SetCurrent(nil)

	if p.queue.IsEmpty() {
		p.playing = false
		p.mu.Unlock()
		p.manager.emit(Event{Type: EventQueueEnd, GuildID: p.guildID, Player: p})
		return
	}
	p.mu.Unlock()

	p.manager.emit(Event{Type: EventTrackEnd, GuildID: p.guildID, Player: p, Track: cur})
	_ = p.Play(p.ctx)
}

func (p *Player) debug(msg string) {
	zlog.Debug().Str("player_id", p.id).Str("guild_id", p.guildID).Msg(msg)
	p.manager.emit(Event{Type: EventDebug, GuildID: p.guildID, Player: p, Message: msg})
}
