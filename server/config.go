package server

import (
	"fmt"
	"time"
)

const (
	MaxSecretSize = 64
	MinSecretSize = 32
)

// Config is a configuration for a Server. It contains all parameters
// that can be used to configure the operation of the compile service.
type Config struct {

	// TokenSecret is the secret used for signing the bearer JWTs issued
	// in exchange for a valid API key. If not provided, a default key is
	// used, which is suitable only for local development.
	TokenSecret []byte

	// CacheDBPath is the path to the SQLite file holding the compiled
	// spec cache and the API key table. If not provided, it defaults to
	// "harel-cache.db" in the working directory.
	CacheDBPath string

	// UnauthDelayMillis is the amount of additional time to wait (in
	// milliseconds) before sending a response that indicates either that
	// the client was unauthorized or the client was unauthenticated.
	// This is something of an "anti-flood" measure for naive clients
	// attempting non-parallel connections. If not set it will default to
	// 1 second (1000ms). Set this to any negative number to disable the
	// delay.
	UnauthDelayMillis int
}

// UnauthDelay returns the configured time for the UnauthDelay as a
// time.Duration. If cfg.UnauthDelayMillis is set to a number less than
// 0, this will return a zero-valued time.Duration.
func (cfg Config) UnauthDelay() time.Duration {
	if cfg.UnauthDelayMillis < 1 {
		var dur time.Duration
		return dur
	}
	return time.Millisecond * time.Duration(cfg.UnauthDelayMillis)
}

// FillDefaults returns a new Config identical to cfg but with unset
// values set to their defaults.
func (cfg Config) FillDefaults() Config {
	newCFG := cfg

	if newCFG.TokenSecret == nil {
		newCFG.TokenSecret = []byte("DEFAULT_TOKEN_SECRET-DO_NOT_USE_IN_PROD!")
	}
	if newCFG.CacheDBPath == "" {
		newCFG.CacheDBPath = "harel-cache.db"
	}
	if newCFG.UnauthDelayMillis == 0 {
		newCFG.UnauthDelayMillis = 1000
	}

	return newCFG
}

// Validate returns an error if the Config has invalid field values set.
// Empty and unset values are considered invalid; if defaults are
// intended to be used, call Validate on the return value of
// FillDefaults.
func (cfg Config) Validate() error {
	if len(cfg.TokenSecret) < MinSecretSize {
		return fmt.Errorf("token secret: must be at least %d bytes, but is %d", MinSecretSize, len(cfg.TokenSecret))
	}
	if len(cfg.TokenSecret) > MaxSecretSize {
		return fmt.Errorf("token secret: must be no more than %d bytes, but is %d", MaxSecretSize, len(cfg.TokenSecret))
	}
	if cfg.CacheDBPath == "" {
		return fmt.Errorf("cache DB path: must not be empty")
	}

	// all possible values for UnauthDelayMillis are valid, so no need to
	// check it

	return nil
}
