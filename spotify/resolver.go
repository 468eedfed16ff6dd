// Package spotify provides the external-catalog resolver: it classifies
// Spotify URLs, imports tracks/albums/playlists/artists as placeholder
// records, and exposes the catalog's free-text search.
package spotify

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/hibiki-audio/hibiki/node"
	"github.com/hibiki-audio/hibiki/track"
)

// ErrNoMatches is returned by ResolvePlaceholder when the search backend
// has no playable match for a placeholder.
var ErrNoMatches = errors.New("no playable match found")

// ErrUnsupportedURL is returned by Resolve for input that does not match
// the catalog's canonical URL pattern. Callers are expected to gate on
// Check first.
var ErrUnsupportedURL = errors.New("url does not belong to the spotify catalog")

// urlPattern matches the catalog's canonical track/album/playlist/artist
// URLs and URIs.
var urlPattern = regexp.MustCompile(`^(?:https://open\.spotify\.com/(?:user/[A-Za-z0-9]+/)?|spotify:)(album|playlist|track|artist)[/:]([A-Za-z0-9]+)`)

// Config represents catalog resolver configuration. Leaving ClientID and
// ClientSecret empty switches the token lifecycle to the anonymous embed
// endpoint.
type Config struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	SearchMarket string `mapstructure:"search_market" default:"US"`
	// Per-kind import caps. Each limit truncates to limit*100 raw items
	// (the provider's page size) before placeholder construction; zero
	// disables the cap.
	PlaylistLimit int `mapstructure:"playlist_limit" default:"5"`
	AlbumLimit    int `mapstructure:"album_limit" default:"5"`
	ArtistLimit   int `mapstructure:"artist_limit" default:"5"`
	// RequestsPerSecond bounds outbound catalog and token calls.
	RequestsPerSecond int `mapstructure:"requests_per_second" default:"8"`
}

// Resolver is the catalog resolver. A single instance is shared by every
// player using the provider; the credential cache inside tolerates
// concurrent refreshes.
type Resolver struct {
	client  *spotify.Client
	tokens  *tokenSource
	limiter *rate.Limiter
	cfg     Config
}

// SearchFunc runs a free-text search against the primary search backend.
// Used by ResolvePlaceholder so the resolver stays decoupled from the
// session registry.
type SearchFunc func(ctx context.Context, query string) (*node.LoadResult, error)

// New creates a catalog resolver.
func New(cfg Config) *Resolver {
	if cfg.SearchMarket == "" {
		cfg.SearchMarket = "US"
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 8
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestsPerSecond)
	tokens := newTokenSource(cfg, limiter)
	httpClient := oauth2.NewClient(context.Background(), tokens)

	return &Resolver{
		client:  spotify.New(httpClient),
		tokens:  tokens,
		limiter: limiter,
		cfg:     cfg,
	}
}

// Check reports whether the URL belongs to the catalog.
func (r *Resolver) Check(url string) bool {
	return urlPattern.MatchString(url)
}

// Resolve classifies the URL and imports the referenced resource as
// placeholder tracks. Provider failures are returned as structured
// NO_MATCHES / LOAD_FAILED results, not errors; only credential failures
// and context cancellation propagate.
func (r *Resolver) Resolve(ctx context.Context, url string) (*node.LoadResult, error) {
	m := urlPattern.FindStringSubmatch(url)
	if m == nil {
		return nil, errors.Wrapf(ErrUnsupportedURL, "%q", url)
	}
	kind, id := m[1], m[2]

	switch kind {
	case "track":
		return r.fetchTrack(ctx, id)
	case "album":
		return r.fetchAlbum(ctx, id)
	case "playlist":
		return r.fetchPlaylist(ctx, id)
	case "artist":
		return r.fetchArtist(ctx, id)
	default:
		return nil, errors.Wrapf(ErrUnsupportedURL, "%q", url)
	}
}

func (r *Resolver) fetchTrack(ctx context.Context, id string) (*node.LoadResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	t, err := r.client.GetTrack(ctx, spotify.ID(id), spotify.Market(r.cfg.SearchMarket))
	if err != nil {
		return r.failure(ctx, err)
	}
	return &node.LoadResult{
		LoadType: node.LoadTypeTrack,
		Tracks:   []*track.Track{placeholderFromFull(t)},
	}, nil
}

func (r *Resolver) fetchAlbum(ctx context.Context, id string) (*node.LoadResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	album, err := r.client.GetAlbum(ctx, spotify.ID(id), spotify.Market(r.cfg.SearchMarket))
	if err != nil {
		return r.failure(ctx, err)
	}

	items := truncate(album.Tracks.Tracks, r.cfg.AlbumLimit)
	tracks := make([]*track.Track, 0, len(items))
	for _, st := range items {
		tracks = append(tracks, placeholderFromSimple(st))
	}
	return &node.LoadResult{
		LoadType:     node.LoadTypePlaylist,
		PlaylistName: album.Name,
		Tracks:       tracks,
	}, nil
}

func (r *Resolver) fetchPlaylist(ctx context.Context, id string) (*node.LoadResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	playlist, err := r.client.GetPlaylist(ctx, spotify.ID(id), spotify.Market(r.cfg.SearchMarket))
	if err != nil {
		return r.failure(ctx, err)
	}

	items := append([]spotify.PlaylistTrack(nil), playlist.Tracks.Tracks...)

	// The track list arrives page-wise; follow the next links exhaustively.
	// An error page ends pagination with the partial result kept.
	for {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		err := r.client.NextPage(ctx, &playlist.Tracks)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			zlog.Warn().Err(err).Str("playlist", id).Msg("spotify: pagination stopped early, keeping partial result")
			break
		}
		items = append(items, playlist.Tracks.Tracks...)
	}

	items = truncate(items, r.cfg.PlaylistLimit)
	tracks := make([]*track.Track, 0, len(items))
	for _, item := range items {
		if item.Track.ID == "" {
			// Local files and episodes have no catalog id.
			continue
		}
		tracks = append(tracks, placeholderFromFull(&item.Track))
	}
	return &node.LoadResult{
		LoadType:     node.LoadTypePlaylist,
		PlaylistName: playlist.Name,
		Tracks:       tracks,
	}, nil
}

func (r *Resolver) fetchArtist(ctx context.Context, id string) (*node.LoadResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	artist, err := r.client.GetArtist(ctx, spotify.ID(id))
	if err != nil {
		return r.failure(ctx, err)
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	top, err := r.client.GetArtistsTopTracks(ctx, spotify.ID(id), r.cfg.SearchMarket)
	if err != nil {
		return r.failure(ctx, err)
	}

	items := truncate(top, r.cfg.ArtistLimit)
	tracks := make([]*track.Track, 0, len(items))
	for i := range items {
		tracks = append(tracks, placeholderFromFull(&items[i]))
	}
	return &node.LoadResult{
		LoadType:     node.LoadTypePlaylist,
		PlaylistName: artist.Name,
		Tracks:       tracks,
	}, nil
}

// Search runs the catalog's free-text search and returns the hits as
// placeholder tracks.
func (r *Resolver) Search(ctx context.Context, query string) (*node.LoadResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := r.client.Search(ctx, fmt.Sprintf("%q", query),
		spotify.SearchTypeArtist|spotify.SearchTypeAlbum|spotify.SearchTypeTrack,
		spotify.Market(r.cfg.SearchMarket))
	if err != nil {
		return r.failure(ctx, err)
	}

	var tracks []*track.Track
	if result.Tracks != nil {
		tracks = make([]*track.Track, 0, len(result.Tracks.Tracks))
		for i := range result.Tracks.Tracks {
			tracks = append(tracks, placeholderFromFull(&result.Tracks.Tracks[i]))
		}
	}
	return &node.LoadResult{
		LoadType: node.LoadTypeTrack,
		Tracks:   tracks,
	}, nil
}

// ResolvePlaceholder obtains a playable encoding for a catalog-sourced
// placeholder with a single "<title> <author>" search against the primary
// backend, copying the first hit's encoding and identifier back onto the
// placeholder.
func (r *Resolver) ResolvePlaceholder(ctx context.Context, t *track.Track, search SearchFunc) (*track.Track, error) {
	result, err := search(ctx, t.Title+" "+t.Author)
	if err != nil {
		return nil, err
	}
	if result == nil || len(result.Tracks) == 0 {
		return nil, errors.Wrapf(ErrNoMatches, "%s %s", t.Title, t.Author)
	}

	hit := result.Tracks[0]
	t.Encoded = hit.Encoded
	t.Identifier = hit.Identifier
	return t, nil
}

// failure converts a provider error into a structured load result.
// Credential errors and cancellation stay errors so callers can tell a
// broken provider from an empty answer.
func (r *Resolver) failure(ctx context.Context, err error) (*node.LoadResult, error) {
	if errors.Is(err, ErrInvalidCredentials) {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var serr spotify.Error
	if errors.As(err, &serr) {
		if serr.Status == http.StatusNotFound || serr.Message == "invalid id" {
			return &node.LoadResult{LoadType: node.LoadTypeNoMatches, Tracks: []*track.Track{}}, nil
		}
		return &node.LoadResult{
			LoadType:  node.LoadTypeFailed,
			Tracks:    []*track.Track{},
			Exception: &node.Exception{Message: serr.Message, Severity: "COMMON"},
		}, nil
	}
	return &node.LoadResult{
		LoadType:  node.LoadTypeFailed,
		Tracks:    []*track.Track{},
		Exception: &node.Exception{Message: err.Error(), Severity: "COMMON"},
	}, nil
}

// truncate applies a limit*100 cap, the provider's page-size grouping.
func truncate[T any](items []T, limit int) []T {
	if limit <= 0 {
		return items
	}
	n := limit * 100
	if len(items) > n {
		return items[:n]
	}
	return items
}

func placeholderFromFull(t *spotify.FullTrack) *track.Track {
	var author string
	if len(t.Artists) > 0 {
		author = t.Artists[0].Name
	}
	var thumbnail string
	if len(t.Album.Images) > 0 {
		thumbnail = t.Album.Images[0].URL
	}
	return &track.Track{
		Identifier: string(t.ID),
		Title:      t.Name,
		Author:     author,
		Length:     time.Duration(t.Duration) * time.Millisecond,
		IsSeekable: true,
		IsStream:   false,
		SourceName: "spotify",
		URI:        trackURL(string(t.ID)),
		Thumbnail:  thumbnail,
	}
}

func placeholderFromSimple(t spotify.SimpleTrack) *track.Track {
	var author string
	if len(t.Artists) > 0 {
		author = t.Artists[0].Name
	}
	return &track.Track{
		Identifier: string(t.ID),
		Title:      t.Name,
		Author:     author,
		Length:     time.Duration(t.Duration) * time.Millisecond,
		IsSeekable: true,
		IsStream:   false,
		SourceName: "spotify",
		URI:        trackURL(string(t.ID)),
	}
}

func trackURL(id string) string {
	return fmt.Sprintf("https://open.spotify.com/track/%s", id)
}
