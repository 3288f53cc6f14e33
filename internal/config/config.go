// Package config reads the TOML configuration file shared by the
// harelc and harelserve front ends, mirroring the way the DSL host
// file's front matter is parsed in internal/dsl/extract: a small
// recognized prefix unmarshaled with BurntSushi/toml, with everything
// else left to command-line flags and environment variables.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/dekarrin/harel/internal/dsl/extract"
)

// Extract holds the delimiter pair that marks a DSL region inside a
// host source file, mirroring extract.Options.
type Extract struct {
	Start string `toml:"start"`
	End   string `toml:"end"`
}

// ToOptions converts e to an extract.Options, leaving fields empty so
// extract.Options' own defaulting applies if e itself is unset.
func (e Extract) ToOptions() extract.Options {
	return extract.Options{Start: e.Start, End: e.End}
}

// Server holds the settings needed to run the compile service.
type Server struct {
	Listen            string `toml:"listen"`
	CacheDBPath       string `toml:"cache_db"`
	TokenSecret       string `toml:"token_secret"`
	UnauthDelayMillis int    `toml:"unauth_delay_millis"`
}

// Config is the full on-disk configuration for the harel tools.
type Config struct {
	Extract Extract `toml:"extract"`
	Server  Server  `toml:"server"`
}

// Load reads and parses the TOML file at path. A missing file is not an
// error; it returns the zero Config, which callers should treat the
// same as "nothing configured" and fall back to flags/environment/
// built-in defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}
