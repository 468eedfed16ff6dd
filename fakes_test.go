package hibiki

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hibiki-audio/hibiki/node"
	"github.com/hibiki-audio/hibiki/track"
)

type voiceCall struct {
	guildID   string
	channelID string
	selfMute  bool
	selfDeaf  bool
}

type fakeGateway struct {
	mu    sync.Mutex
	calls []voiceCall
	err   error
}

func (g *fakeGateway) UpdateVoiceState(_ context.Context, guildID, channelID string, selfMute, selfDeaf bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, voiceCall{guildID, channelID, selfMute, selfDeaf})
	return g.err
}

func (g *fakeGateway) voiceCalls() []voiceCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]voiceCall(nil), g.calls...)
}

// fakeNode serves canned search results keyed by identifier. Identifiers
// with no entry resolve to an empty NO_MATCHES result.
type fakeNode struct {
	name    string
	online  bool
	players int
	joinErr error
	conn    *fakeConn

	mu       sync.Mutex
	results  map[string]*node.LoadResult
	errs     map[string]error
	resolved []string
}

func newFakeNode(name string) *fakeNode {
	n := &fakeNode{
		name:    name,
		online:  true,
		results: make(map[string]*node.LoadResult),
		errs:    make(map[string]error),
	}
	n.conn = newFakeConn(n)
	return n
}

func (n *fakeNode) Name() string { return n.name }

func (n *fakeNode) Online() bool { return n.online }

func (n *fakeNode) Players() int { return n.players }

func (n *fakeNode) Join(_ context.Context, _, _ string, _ int, _ bool) (node.Conn, error) {
	if n.joinErr != nil {
		return nil, n.joinErr
	}
	return n.conn, nil
}

func (n *fakeNode) Resolve(_ context.Context, identifier string) (*node.LoadResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resolved = append(n.resolved, identifier)
	if err, ok := n.errs[identifier]; ok {
		return nil, err
	}
	if res, ok := n.results[identifier]; ok {
		return res, nil
	}
	return &node.LoadResult{LoadType: node.LoadTypeNoMatches}, nil
}

func (n *fakeNode) resolvedQueries() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.resolved...)
}

func (n *fakeNode) stub(identifier string, tracks ...*track.Track) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results[identifier] = &node.LoadResult{LoadType: node.LoadTypeTrack, Tracks: tracks}
}

func (n *fakeNode) stubErr(identifier string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errs[identifier] = err
}

type fakeConn struct {
	owner  *fakeNode
	events chan node.Event
	playCh chan string

	// onSetPaused, when set, observes each pause command as it arrives.
	onSetPaused func(paused bool)

	mu      sync.Mutex
	played  []string
	volumes []float64
	pauses  []bool
	seeks   []time.Duration
	stops   int
	closed  bool
}

func newFakeConn(owner *fakeNode) *fakeConn {
	return &fakeConn{
		owner:  owner,
		events: make(chan node.Event, 16),
		playCh: make(chan string, 16),
	}
}

func (c *fakeConn) Play(_ context.Context, encoded string) error {
	c.mu.Lock()
	c.played = append(c.played, encoded)
	c.mu.Unlock()
	c.playCh <- encoded
	return nil
}

func (c *fakeConn) SetPaused(_ context.Context, paused bool) error {
	c.mu.Lock()
	c.pauses = append(c.pauses, paused)
	hook := c.onSetPaused
	c.mu.Unlock()
	if hook != nil {
		hook(paused)
	}
	return nil
}

func (c *fakeConn) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return nil
}

func (c *fakeConn) SeekTo(_ context.Context, position time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seeks = append(c.seeks, position)
	return nil
}

func (c *fakeConn) SetVolume(_ context.Context, volume float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volumes = append(c.volumes, volume)
	return nil
}

func (c *fakeConn) Events() <-chan node.Event { return c.events }

func (c *fakeConn) Node() node.Node { return c.owner }

func (c *fakeConn) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) playedTracks() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.played...)
}

func (c *fakeConn) lastVolume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.volumes) == 0 {
		return -1
	}
	return c.volumes[len(c.volumes)-1]
}

func (c *fakeConn) pauseCalls() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bool(nil), c.pauses...)
}

func (c *fakeConn) stopCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newTestManager(t *testing.T, nodes ...node.Node) (*Manager, *fakeGateway) {
	t.Helper()
	gw := &fakeGateway{}
	m, err := New(Options{Nodes: nodes, Gateway: gw})
	require.NoError(t, err)
	return m, gw
}

func newTestPlayer(t *testing.T, m *Manager, guildID string) (*Player, *fakeConn) {
	t.Helper()
	p, err := m.CreatePlayer(context.Background(), PlayerOptions{GuildID: guildID, VoiceChannelID: "vc-1"})
	require.NoError(t, err)
	return p, p.conn.(*fakeConn)
}

func resolvedTrack(id string) *track.Track {
	return &track.Track{
		Identifier: id,
		Title:      "Title " + id,
		Author:     "Author " + id,
		Encoded:    "enc-" + id,
		Length:     3 * time.Minute,
	}
}

func placeholderTrack(id string) *track.Track {
	return &track.Track{
		Identifier: id,
		Title:      "Title " + id,
		Author:     "Author " + id,
		SourceName: "spotify",
		Length:     3 * time.Minute,
	}
}

// awaitEvent receives from the manager's event channel until an event of
// the wanted type arrives, discarding others.
func awaitEvent(t *testing.T, m *Manager, want EventType) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-m.Events():
			if e.Type == want {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", want)
			return Event{}
		}
	}
}

func awaitPlay(t *testing.T, c *fakeConn) string {
	t.Helper()
	select {
	case encoded := <-c.playCh:
		return encoded
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for play command")
		return ""
	}
}

func assertNoPlay(t *testing.T, c *fakeConn) {
	t.Helper()
	select {
	case encoded := <-c.playCh:
		t.Fatalf("unexpected play command for %q", encoded)
	case <-time.After(100 * time.Millisecond):
	}
}
