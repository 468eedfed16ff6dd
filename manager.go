// Package hibiki is a guild audio-playback orchestration layer. It keeps
// one playback session per guild, drives each session's queue as a remote
// rendering node reports progress, and resolves placeholder tracks into
// playable ones, with an external-catalog import pipeline on the side.
package hibiki

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"

	"github.com/hibiki-audio/hibiki/node"
	"github.com/hibiki-audio/hibiki/spotify"
	"github.com/hibiki-audio/hibiki/track"
)

// SearchEngine selects which backend a free-text search targets.
type SearchEngine string

const (
	EngineYouTube      SearchEngine = "youtube"
	EngineYouTubeMusic SearchEngine = "youtubemusic"
	EngineSoundCloud   SearchEngine = "soundcloud"
	EngineSpotify      SearchEngine = "spotify" // node-side Spotify search
	EngineDeezer       SearchEngine = "deezer"
	EngineYandex       SearchEngine = "yandex"
	// EngineCatalog routes to the external-catalog resolver instead of the
	// node's search backend.
	EngineCatalog SearchEngine = "catalog"
)

// enginePrefixes is the fixed engine to query-prefix table for the node's
// search backend.
var enginePrefixes = map[SearchEngine]string{
	EngineYouTube:      "ytsearch",
	EngineYouTubeMusic: "ytmsearch",
	EngineSoundCloud:   "scsearch",
	EngineSpotify:      "spsearch",
	EngineDeezer:       "dzsearch",
	EngineYandex:       "ymsearch",
}

var urlRe = regexp.MustCompile(`^https?://`)

// VoiceGateway sends voice-state updates to the platform gateway. An empty
// channel id leaves the current channel.
type VoiceGateway interface {
	UpdateVoiceState(ctx context.Context, guildID, channelID string, selfMute, selfDeaf bool) error
}

// Options configures a Manager.
type Options struct {
	// Nodes are the rendering nodes available to players. The first online
	// node is the default; LoadBalance picks the least loaded instead.
	Nodes []node.Node `validate:"required,min=1"`
	// Gateway receives voice join/leave signaling.
	Gateway VoiceGateway `validate:"required"`
	// DefaultEngine is used when a search names no engine.
	DefaultEngine SearchEngine `default:"youtube"`
	// Spotify enables the external-catalog resolver when set.
	Spotify *spotify.Config
	// EventBufferSize sizes the event channel. Events are dropped with a
	// warning when the consumer falls behind.
	EventBufferSize int `default:"64"`
}

// PlayerOptions configures a player created by CreatePlayer.
type PlayerOptions struct {
	GuildID        string `validate:"required"`
	VoiceChannelID string `validate:"required"`
	TextChannelID  string
	ShardID        int
	Volume         float64 `default:"80"` // percentage units
	Deaf           bool    `default:"true"`
	LoadBalance    bool
}

// SearchOptions configures Search.
type SearchOptions struct {
	Engine SearchEngine // Empty means the manager default
}

var validate = validator.New()

// Manager is the session registry: it creates, finds, and destroys players
// keyed by guild id, selects rendering nodes, routes searches, and fans all
// player events into a single typed channel.
type Manager struct {
	mu      sync.RWMutex
	opts    Options
	players map[string]*Player
	catalog *spotify.Resolver

	// emitMu orders sends against the channel close so a node event still
	// in flight during shutdown is dropped instead of hitting a closed
	// channel.
	emitMu sync.Mutex
	closed bool
	events chan Event
}

// New creates a Manager. Malformed options fail immediately.
func New(opts Options) (*Manager, error) {
	if err := defaults.Set(&opts); err != nil {
		return nil, errors.Wrap(err, "failed to apply option defaults")
	}
	if err := validate.Struct(opts); err != nil {
		return nil, errors.Wrap(err, "invalid manager options")
	}

	m := &Manager{
		opts:    opts,
		players: make(map[string]*Player),
		events:  make(chan Event, opts.EventBufferSize),
	}
	if opts.Spotify != nil {
		m.catalog = spotify.New(*opts.Spotify)
	}
	return m, nil
}

// Events returns the manager's event channel. Closed by Close.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Catalog returns the external-catalog resolver, nil when not configured.
func (m *Manager) Catalog() *spotify.Resolver {
	return m.catalog
}

// CreatePlayer creates the player for a guild, joining the voice channel on
// a selected node. Idempotent: an existing player is returned unchanged.
func (m *Manager) CreatePlayer(ctx context.Context, opts PlayerOptions) (*Player, error) {
	if err := defaults.Set(&opts); err != nil {
		return nil, errors.Wrap(err, "failed to apply player defaults")
	}
	if err := validate.Struct(opts); err != nil {
		return nil, errors.Wrap(err, "invalid player options")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.players[opts.GuildID]; ok {
		return existing, nil
	}

	n, err := m.selectNodeLocked(opts.LoadBalance)
	if err != nil {
		return nil, err
	}

	conn, err := n.Join(ctx, opts.GuildID, opts.VoiceChannelID, opts.ShardID, opts.Deaf)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to join voice channel %s", opts.VoiceChannelID)
	}

	p := newPlayer(m, conn, opts)
	m.players[opts.GuildID] = p

	zlog.Info().Str("guild_id", opts.GuildID).Str("node", n.Name()).Msg("player created")
	m.emit(Event{Type: EventPlayerCreate, GuildID: opts.GuildID, Player: p})
	return p, nil
}

// Player returns the player for a guild.
func (m *Manager) Player(guildID string) (*Player, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[guildID]
	return p, ok
}

// Players returns a snapshot of all registered players.
func (m *Manager) Players() []*Player {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Player, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, p)
	}
	return out
}

// DestroyPlayer destroys the player for a guild. No-op when absent.
func (m *Manager) DestroyPlayer(ctx context.Context, guildID string) error {
	m.mu.RLock()
	p := m.players[guildID]
	m.mu.RUnlock()

	if p == nil {
		return nil
	}
	return p.Destroy(ctx)
}

// Search routes a query. URLs matching the catalog pattern go to the
// catalog resolver when the catalog engine is selected; other URLs go to
// the node's search backend verbatim. Free text is prefixed from the fixed
// engine table or handed to the catalog's generic search.
func (m *Manager) Search(ctx context.Context, query string, opts SearchOptions) (*node.LoadResult, error) {
	engine := opts.Engine
	if engine == "" {
		engine = m.opts.DefaultEngine
	}

	if urlRe.MatchString(query) {
		if engine == EngineCatalog && m.catalog != nil && m.catalog.Check(query) {
			return m.catalog.Resolve(ctx, query)
		}
		n, err := m.selectNode(false)
		if err != nil {
			return nil, err
		}
		return n.Resolve(ctx, query)
	}

	if engine == EngineCatalog {
		if m.catalog == nil {
			return nil, ErrCatalogNotConfigured
		}
		return m.catalog.Search(ctx, query)
	}

	prefix, ok := enginePrefixes[engine]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownEngine, "%q", engine)
	}

	n, err := m.selectNode(false)
	if err != nil {
		return nil, err
	}
	return n.Resolve(ctx, prefix+":"+query)
}

// ResolveTrack obtains a playable encoding for a placeholder track: one
// music-engine search, then exactly one general-engine retry on an empty
// result. Search errors propagate without triggering the fallback. On
// success the encoding is copied onto the same record.
func (m *Manager) ResolveTrack(ctx context.Context, t *track.Track, n node.Node) (*track.Track, error) {
	query := resolveQuery(t)

	result, err := n.Resolve(ctx, "ytmsearch:"+query)
	if err != nil {
		return nil, err
	}
	if result == nil || len(result.Tracks) == 0 {
		result, err = n.Resolve(ctx, "ytsearch:"+query)
		if err != nil {
			return nil, err
		}
		if result == nil || len(result.Tracks) == 0 {
			return nil, errors.Wrapf(ErrNoMatches, "%q", query)
		}
	}

	t.Encoded = result.Tracks[0].Encoded
	return t, nil
}

// ResolvePlaceholder re-resolves a catalog-sourced placeholder through the
// catalog's single composed-query path against the default search engine.
func (m *Manager) ResolvePlaceholder(ctx context.Context, t *track.Track) (*track.Track, error) {
	if m.catalog == nil {
		return nil, ErrCatalogNotConfigured
	}
	return m.catalog.ResolvePlaceholder(ctx, t, func(ctx context.Context, query string) (*node.LoadResult, error) {
		return m.Search(ctx, query, SearchOptions{})
	})
}

// Close destroys every player and closes the event channel. Safe to call
// more than once.
func (m *Manager) Close(ctx context.Context) error {
	for _, p := range m.Players() {
		if err := p.Destroy(ctx); err != nil {
			zlog.Warn().Err(err).Str("guild_id", p.GuildID()).Msg("destroy during close failed")
		}
	}

	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.events)
	return nil
}

func (m *Manager) gateway() VoiceGateway {
	return m.opts.Gateway
}

func (m *Manager) removePlayer(guildID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.players, guildID)
}

func (m *Manager) selectNode(loadBalance bool) (node.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selectNodeLocked(loadBalance)
}

// selectNodeLocked picks the first online node, or with loadBalance the
// online node bound to the fewest players, ties broken by order.
func (m *Manager) selectNodeLocked(loadBalance bool) (node.Node, error) {
	var best node.Node
	for _, n := range m.opts.Nodes {
		if !n.Online() {
			continue
		}
		if !loadBalance {
			return n, nil
		}
		if best == nil || n.Players() < best.Players() {
			best = n
		}
	}
	if best == nil {
		return nil, ErrNoNodesOnline
	}
	return best, nil
}

// emit delivers an event without blocking; when the buffer is full the
// event is dropped with a warning. After Close every event is dropped.
func (m *Manager) emit(e Event) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	if m.closed {
		return
	}

	select {
	case m.events <- e:
	default:
		zlog.Warn().Str("event", e.Type.String()).Str("guild_id", e.GuildID).Msg("event channel full, dropping event")
	}
}

// resolveQuery builds the "<author> - <title>" fallback query, omitting
// either side when empty.
func resolveQuery(t *track.Track) string {
	parts := make([]string, 0, 2)
	if t.Author != "" {
		parts = append(parts, t.Author)
	}
	if t.Title != "" {
		parts = append(parts, t.Title)
	}
	return strings.Join(parts, " - ")
}
