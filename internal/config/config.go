// Package config provides configuration loading for the hibiki CLIs.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/hibiki-audio/hibiki/spotify"
)

// Config represents the CLI configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Catalog CatalogConfig `yaml:"catalog"`
}

// LogConfig represents logger configuration.
type LogConfig struct {
	Output string `yaml:"output" default:"stdout"`
	Level  string `yaml:"level" default:"info"`
}

// CatalogConfig represents the external-catalog provider configuration.
// Settings is provider-specific and decoded per provider type.
type CatalogConfig struct {
	Provider string         `yaml:"provider" default:"spotify" validate:"required"`
	Settings map[string]any `yaml:"settings"`
}

// Load loads configuration from a YAML file. Credentials from the
// environment take precedence over file values.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	}

	if err := defaults.Set(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to apply config defaults")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

// SpotifyConfig decodes the catalog settings block into a spotify.Config,
// applying SPOTIFY_CLIENT_ID / SPOTIFY_CLIENT_SECRET overrides.
func (c *Config) SpotifyConfig() (*spotify.Config, error) {
	if c.Catalog.Provider != "spotify" {
		return nil, errors.Newf("unsupported catalog provider %q", c.Catalog.Provider)
	}

	var sc spotify.Config
	if err := defaults.Set(&sc); err != nil {
		return nil, errors.Wrap(err, "failed to apply catalog defaults")
	}
	if c.Catalog.Settings != nil {
		if err := mapstructure.Decode(c.Catalog.Settings, &sc); err != nil {
			return nil, errors.Wrap(err, "invalid catalog settings")
		}
	}

	if id := os.Getenv("SPOTIFY_CLIENT_ID"); id != "" {
		sc.ClientID = id
	}
	if secret := os.Getenv("SPOTIFY_CLIENT_SECRET"); secret != "" {
		sc.ClientSecret = secret
	}
	return &sc, nil
}
