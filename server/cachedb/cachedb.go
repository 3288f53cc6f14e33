// Package cachedb is the persistence layer for the compile service: a
// SQLite-backed cache of compiled spec artifacts, keyed by the random ID
// assigned at submission time, plus the bcrypt-hashed API keys accepted
// as bearer-token subjects.
package cachedb

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dekarrin/rezi"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"modernc.org/sqlite"

	"github.com/dekarrin/harel/server/serr"
)

var (
	ErrNotFound            = errors.New("the requested resource was not found")
	ErrConstraintViolation = errors.New("a uniqueness constraint was violated")
)

// SpecMeta is the small envelope of bookkeeping data stored alongside
// each cached artifact's rendered text, REZI-encoded into its own
// column the way the sqlite DAO this package is grounded on encodes a
// game.State blob alongside its relational columns.
type SpecMeta struct {
	CreatedAt time.Time
	SourceLen int
}

// SpecRecord is one compiled artifact as persisted: the original DSL
// source plus every rendering the pipeline produced for it.
type SpecRecord struct {
	ID       uuid.UUID
	Source   string
	GoSource string
	YAML     []byte
	PlantUML string
	Meta     SpecMeta
}

// DB wraps a SQLite connection holding the specs and api_keys tables.
type DB struct {
	db *sql.DB
}

// Open connects to (creating if necessary) the SQLite database at path
// and ensures its schema exists.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrapDBError(err)
	}

	d := &DB{db: conn}
	if err := d.init(); err != nil {
		conn.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) init() error {
	_, err := d.db.Exec(`CREATE TABLE IF NOT EXISTS specs (
		id TEXT NOT NULL PRIMARY KEY,
		source TEXT NOT NULL,
		go_source TEXT NOT NULL,
		yaml BLOB NOT NULL,
		plantuml TEXT NOT NULL,
		meta BLOB NOT NULL
	);`)
	if err != nil {
		return wrapDBError(err)
	}

	_, err = d.db.Exec(`CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT NOT NULL PRIMARY KEY,
		label TEXT NOT NULL,
		key_hash TEXT NOT NULL,
		created_unix INTEGER NOT NULL
	);`)
	return wrapDBError(err)
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// PutSpec inserts or replaces the cached artifact for rec.ID.
func (d *DB) PutSpec(ctx context.Context, rec SpecRecord) error {
	rec.Meta.SourceLen = len(rec.Source)
	metaBytes := rezi.EncBinary(rec.Meta)

	_, err := d.db.ExecContext(ctx, `INSERT INTO specs (id, source, go_source, yaml, plantuml, meta)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET source=excluded.source, go_source=excluded.go_source,
			yaml=excluded.yaml, plantuml=excluded.plantuml, meta=excluded.meta`,
		rec.ID.String(), rec.Source, rec.GoSource, rec.YAML, rec.PlantUML, metaBytes)
	return wrapDBError(err)
}

// GetSpec retrieves the cached artifact for id.
func (d *DB) GetSpec(ctx context.Context, id uuid.UUID) (SpecRecord, error) {
	row := d.db.QueryRowContext(ctx, `SELECT id, source, go_source, yaml, plantuml, meta FROM specs WHERE id = ?`, id.String())

	var rec SpecRecord
	var idStr string
	var metaBytes []byte
	if err := row.Scan(&idStr, &rec.Source, &rec.GoSource, &rec.YAML, &rec.PlantUML, &metaBytes); err != nil {
		return SpecRecord{}, wrapDBError(err)
	}

	parsedID, err := uuid.Parse(idStr)
	if err != nil {
		return SpecRecord{}, fmt.Errorf("decode stored spec id: %w", err)
	}
	rec.ID = parsedID

	if _, err := rezi.DecBinary(metaBytes, &rec.Meta); err != nil {
		return SpecRecord{}, fmt.Errorf("REZI decode spec meta: %w", err)
	}

	return rec, nil
}

// CreateAPIKey generates a new random API key, stores its bcrypt hash
// under label, and returns the plaintext key. The plaintext is never
// persisted; callers must hand it to the caller of this function
// immediately and discard it.
func (d *DB) CreateAPIKey(ctx context.Context, label string) (id uuid.UUID, plainKey string, err error) {
	raw := make([]byte, 32)
	if _, err = rand.Read(raw); err != nil {
		return uuid.UUID{}, "", fmt.Errorf("generate key material: %w", err)
	}
	plainKey = hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(plainKey), bcrypt.DefaultCost)
	if err != nil {
		return uuid.UUID{}, "", fmt.Errorf("hash key: %w", err)
	}

	newID, err := uuid.NewRandom()
	if err != nil {
		return uuid.UUID{}, "", fmt.Errorf("generate key id: %w", err)
	}

	_, err = d.db.ExecContext(ctx, `INSERT INTO api_keys (id, label, key_hash, created_unix) VALUES (?, ?, ?, ?)`,
		newID.String(), label, base64.StdEncoding.EncodeToString(hash), time.Now().Unix())
	if err != nil {
		return uuid.UUID{}, "", wrapDBError(err)
	}

	return newID, plainKey, nil
}

// CountAPIKeys returns the number of API keys currently stored, used by
// the server entrypoint to decide whether a bootstrap key is needed.
func (d *DB) CountAPIKeys(ctx context.Context) (int, error) {
	var n int
	row := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM api_keys`)
	if err := row.Scan(&n); err != nil {
		return 0, wrapDBError(err)
	}
	return n, nil
}

// VerifyAPIKey checks presented against every stored key hash and
// returns the ID of the first match. The key set is expected to be
// small (one per integrating service), so a linear bcrypt comparison
// scan is acceptable; bcrypt hashes cannot be looked up by indexed
// equality since each is salted independently.
func (d *DB) VerifyAPIKey(ctx context.Context, presented string) (uuid.UUID, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, key_hash FROM api_keys`)
	if err != nil {
		return uuid.UUID{}, wrapDBError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var idStr, hashStr string
		if err := rows.Scan(&idStr, &hashStr); err != nil {
			return uuid.UUID{}, wrapDBError(err)
		}

		hash, err := base64.StdEncoding.DecodeString(hashStr)
		if err != nil {
			continue
		}
		if bcrypt.CompareHashAndPassword(hash, []byte(presented)) == nil {
			id, err := uuid.Parse(idStr)
			if err != nil {
				return uuid.UUID{}, fmt.Errorf("decode stored key id: %w", err)
			}
			return id, nil
		}
	}

	return uuid.UUID{}, ErrNotFound
}

// wrapDBError classifies a raw database/sql or sqlite error into one of
// this package's sentinels, or into serr.ErrDB for anything that isn't
// one of those two well-understood cases - so a caller several layers up
// can still tell "the database itself is unwell" apart from "the
// specific thing you asked for doesn't exist" with a single errors.Is.
func wrapDBError(err error) error {
	if err == nil {
		return nil
	}
	sqliteErr := &sqlite.Error{}
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code() == 19 {
			return ErrConstraintViolation
		}
		return serr.New(sqlite.ErrorCodeString[sqliteErr.Code()], err, serr.ErrDB)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return serr.New("", err, serr.ErrDB)
}
