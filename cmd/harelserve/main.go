/*
Harelserve starts the compile service and begins listening for new
connections.

Usage:

	harelserve [flags]
	harelserve [flags] -l [[ADDRESS]:PORT]

Once started, harelserve will listen for HTTP requests and serve the
compiler over REST. By default, it listens on localhost:8080. This can
be changed with the --listen/-l flag (or its environment variable).

If a JWT token secret is not given, one is automatically generated at
startup. As a consequence, in this mode of operation all tokens issued
become invalid as soon as the server shuts down; this is suitable for
testing but a real secret must be given via flag or environment
variable for production use.

The flags are:

	-v, --version
		Give the current version of harelserve and then exit.

	-l, --listen LISTEN_ADDRESS
		Listen on the given address. Must be in BIND_ADDRESS:PORT or :PORT
		format. If not given, defaults to the value of environment variable
		HAREL_LISTEN_ADDRESS, and if that is not given, defaults to
		localhost:8080.

	-s, --secret TOKEN_SECRET
		Use the provided secret for signing JWT tokens. If there are fewer
		than 32 bytes in the secret, it is repeated until it is. The maximum
		size is 64 bytes. If not given, defaults to the value of environment
		variable HAREL_TOKEN_SECRET. If no secret is specified, a random
		secret is automatically generated.

	--db PATH
		Use the given path for the SQLite cache database. If not given,
		defaults to the value of environment variable HAREL_CACHE_DB, and if
		that is not given, defaults to "harel-cache.db" in the working
		directory.

	-c, --config PATH
		Load base settings from the given TOML config file before applying
		flags and environment variables, which both take precedence over it.
		If not given, no config file is read.
*/
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"os"

	"github.com/spf13/pflag"

	"github.com/dekarrin/harel/internal/config"
	"github.com/dekarrin/harel/internal/version"
	"github.com/dekarrin/harel/server"
)

const (
	EnvListen = "HAREL_LISTEN_ADDRESS"
	EnvSecret = "HAREL_TOKEN_SECRET"
	EnvDB     = "HAREL_CACHE_DB"
)

var (
	flagVersion = pflag.BoolP("version", "v", false, "Give the current version of harelserve and then exit.")
	flagListen  = pflag.StringP("listen", "l", "", "Listen on the given address.")
	flagSecret  = pflag.StringP("secret", "s", "", "Use the given secret for token generation.")
	flagDB      = pflag.String("db", "", "Use the given path for the cache database.")
	flagConfig  = pflag.StringP("config", "c", "", "Load base settings from the given TOML config file.")
)

func main() {
	pflag.Parse()

	if *flagVersion {
		fmt.Printf("%s\n", version.ServerCurrent)
		return
	}

	if args := pflag.Args(); len(args) > 0 {
		fmt.Fprintf(os.Stderr, "Too many arguments\nDo -h for help.\n")
		os.Exit(1)
	}

	var fileCfg config.Config
	if *flagConfig != "" {
		var err error
		fileCfg, err = config.Load(*flagConfig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not load config file: %s\n", err.Error())
			os.Exit(1)
		}
	}

	listenAddr := fileCfg.Server.Listen
	if envListen := os.Getenv(EnvListen); envListen != "" {
		listenAddr = envListen
	}
	if pflag.Lookup("listen").Changed {
		listenAddr = *flagListen
	}
	if listenAddr == "" {
		listenAddr = "localhost:8080"
	}

	dbPath := fileCfg.Server.CacheDBPath
	if envDB := os.Getenv(EnvDB); envDB != "" {
		dbPath = envDB
	}
	if pflag.Lookup("db").Changed {
		dbPath = *flagDB
	}

	var tokSecret []byte
	tokSecStr := fileCfg.Server.TokenSecret
	if envSecret := os.Getenv(EnvSecret); envSecret != "" {
		tokSecStr = envSecret
	}
	if pflag.Lookup("secret").Changed {
		tokSecStr = *flagSecret
	}
	if tokSecStr != "" {
		tokSecret = []byte(tokSecStr)

		for len(tokSecret) < server.MinSecretSize {
			doubled := make([]byte, len(tokSecret)*2)
			copy(doubled, tokSecret)
			copy(doubled[len(tokSecret):], tokSecret)
			tokSecret = doubled
		}

		if len(tokSecret) > server.MaxSecretSize {
			fmt.Fprintf(os.Stderr, "Token secret is %d bytes, but it must be <= %d bytes\nDo -h for help.\n", len(tokSecret), server.MaxSecretSize)
			os.Exit(1)
		}
	} else {
		tokSecret = make([]byte, server.MaxSecretSize)
		if _, err := rand.Read(tokSecret); err != nil {
			fmt.Fprintf(os.Stderr, "Could not generate token secret: %s\n", err.Error())
			os.Exit(1)
		}
		log.Printf("WARN  Using generated token secret; all tokens issued will become invalid at shutdown")
	}

	cfg := server.Config{
		TokenSecret:       tokSecret,
		CacheDBPath:       dbPath,
		UnauthDelayMillis: fileCfg.Server.UnauthDelayMillis,
	}

	srv, err := server.New(cfg)
	if err != nil {
		log.Fatalf("FATAL could not start server: %s", err.Error())
	}
	defer srv.Close()
	log.Printf("DEBUG Server initialized")

	bootstrapAPIKey(srv)

	log.Printf("INFO  Starting harel compile service %s...", version.ServerCurrent)
	if err := srv.ServeForever(listenAddr); err != nil {
		log.Fatalf("FATAL server exited: %s", err.Error())
	}
}

// bootstrapAPIKey creates a default API key on first run, printing the
// plaintext once so the operator can use it, then never again.
func bootstrapAPIKey(srv *server.Server) {
	created, id, plainKey, err := srv.BootstrapAPIKey(context.Background(), "bootstrap")
	if err != nil {
		log.Printf("ERROR could not create bootstrap API key: %v", err)
		return
	}
	if created {
		log.Printf("INFO  Added bootstrap API key %s: %s", id, plainKey)
	}
}
