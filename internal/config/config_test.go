package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "stdout", cfg.Log.Output)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "spotify", cfg.Catalog.Provider)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
log:
  output: /var/log/hibiki.log
  level: debug
catalog:
  provider: spotify
  settings:
    client_id: file-id
    client_secret: file-secret
    search_market: DE
    playlist_limit: 2
`)

	t.Setenv("SPOTIFY_CLIENT_ID", "")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/log/hibiki.log", cfg.Log.Output)
	assert.Equal(t, "debug", cfg.Log.Level)

	sc, err := cfg.SpotifyConfig()
	require.NoError(t, err)
	assert.Equal(t, "file-id", sc.ClientID)
	assert.Equal(t, "file-secret", sc.ClientSecret)
	assert.Equal(t, "DE", sc.SearchMarket)
	assert.Equal(t, 2, sc.PlaylistLimit)
	// Unset limits keep their defaults.
	assert.Equal(t, 5, sc.AlbumLimit)
	assert.Equal(t, 8, sc.RequestsPerSecond)
}

func TestSpotifyConfigEnvOverrides(t *testing.T) {
	t.Setenv("SPOTIFY_CLIENT_ID", "env-id")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "env-secret")

	path := writeConfig(t, `
catalog:
  settings:
    client_id: file-id
    client_secret: file-secret
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	sc, err := cfg.SpotifyConfig()
	require.NoError(t, err)
	assert.Equal(t, "env-id", sc.ClientID)
	assert.Equal(t, "env-secret", sc.ClientSecret)
}

func TestSpotifyConfigUnsupportedProvider(t *testing.T) {
	path := writeConfig(t, `
catalog:
  provider: deezer
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	_, err = cfg.SpotifyConfig()
	assert.ErrorContains(t, err, "unsupported catalog provider")
}
