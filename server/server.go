// Package server implements the HTTP compile service: submit DSL source,
// get back the generated Go, the resolved-model YAML dump, and a
// PlantUML diagram, all cached by the ID assigned at submission time.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dekarrin/harel"
	"github.com/dekarrin/harel/internal/version"
	"github.com/dekarrin/harel/server/cachedb"
	"github.com/dekarrin/harel/server/middle"
	"github.com/dekarrin/harel/server/result"
	"github.com/dekarrin/harel/server/serr"
)

// PathPrefix is the base path that all compile-service routes are
// mounted under.
const PathPrefix = "/api/v1"

// Server is the compile service. It wraps a pipeline Compiler and a
// cachedb.DB and exposes both over HTTP.
type Server struct {
	router chi.Router

	compiler *harel.Compiler
	db       *cachedb.DB
	cfg      Config
}

// New creates a new Server from cfg, opening (and initializing if
// necessary) its cache database.
func New(cfg Config) (*Server, error) {
	cfg = cfg.FillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := cachedb.Open(cfg.CacheDBPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	srv := &Server{
		compiler: harel.New(),
		db:       db,
		cfg:      cfg,
	}
	srv.routes()

	return srv, nil
}

// Close releases resources held by the Server, including its cache
// database connection.
func (srv *Server) Close() error {
	return srv.db.Close()
}

// BootstrapAPIKey creates a new API key with the given label if and only
// if the database does not yet have any keys, returning created=false
// if one already existed.
func (srv *Server) BootstrapAPIKey(ctx context.Context, label string) (created bool, id uuid.UUID, plainKey string, err error) {
	n, err := srv.db.CountAPIKeys(ctx)
	if err != nil {
		return false, uuid.UUID{}, "", fmt.Errorf("count existing keys: %w", err)
	}
	if n > 0 {
		return false, uuid.UUID{}, "", nil
	}

	id, plainKey, err = srv.db.CreateAPIKey(ctx, label)
	if err != nil {
		return false, uuid.UUID{}, "", err
	}
	return true, id, plainKey, nil
}

// ServeForever begins listening for and handling HTTP requests on addr.
// It blocks until the server stops, returning the error that stopped it.
func (srv *Server) ServeForever(addr string) error {
	return http.ListenAndServe(addr, srv.router)
}

func (srv *Server) routes() {
	r := chi.NewRouter()
	r.Use(asChiMiddleware(middle.DontPanic()))

	r.Route(PathPrefix, func(r chi.Router) {
		r.Get("/info", srv.getInfo)
		r.Post("/tokens", srv.postToken)

		auth := middle.RequireAuth(bearerToken, srv.verifyToken, srv.cfg.UnauthDelay())
		r.Group(func(r chi.Router) {
			r.Use(asChiMiddleware(auth))
			r.Post("/specs", srv.postSpec)
			r.Get("/specs/{id}", srv.getSpec)
			r.Get("/specs/{id}/plantuml", srv.getSpecPlantUML)
			r.Get("/specs/{id}/yaml", srv.getSpecYAML)
		})
	})

	srv.router = r
}

// asChiMiddleware adapts a middle.Middleware, which is defined purely in
// terms of the standard http.Handler, for use with chi's router.Use.
func asChiMiddleware(mw middle.Middleware) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next)
	}
}

func (srv *Server) verifyToken(tok string) (uuid.UUID, error) {
	return parseToken(srv.cfg.TokenSecret, tok)
}

type infoResponse struct {
	Version string `json:"version"`
}

func (srv *Server) getInfo(w http.ResponseWriter, req *http.Request) {
	r := result.OK(infoResponse{Version: version.ServerCurrent})
	r.WriteResponse(w)
	r.Log(req)
}

type tokenRequest struct {
	APIKey string `json:"api_key"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (srv *Server) postToken(w http.ResponseWriter, req *http.Request) {
	var body tokenRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		r := result.BadRequest(serr.ErrBodyUnmarshal.Error(), "decode token request: %v", err)
		r.WriteResponse(w)
		r.Log(req)
		return
	}
	if body.APIKey == "" {
		r := result.BadRequest("api_key is required")
		r.WriteResponse(w)
		r.Log(req)
		return
	}

	keyID, err := srv.db.VerifyAPIKey(req.Context(), body.APIKey)
	if err != nil {
		msg := ""
		if errors.Is(err, cachedb.ErrNotFound) {
			msg = serr.ErrBadCredentials.Error()
		}
		r := result.Unauthorized(msg, "verify api key: %v", err)
		time.Sleep(srv.cfg.UnauthDelay())
		r.WriteResponse(w)
		r.Log(req)
		return
	}

	tok, err := mintToken(srv.cfg.TokenSecret, keyID, "")
	if err != nil {
		r := result.InternalServerError("mint token: %v", err)
		r.WriteResponse(w)
		r.Log(req)
		return
	}

	r := result.OK(tokenResponse{Token: tok}, "issued token for key %s", keyID)
	r.WriteResponse(w)
	r.Log(req)
}

type specRequest struct {
	Source string `json:"source"`
}

type specResponse struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Go       string `json:"go"`
	YAML     string `json:"yaml"`
	PlantUML string `json:"plantuml"`
}

func (srv *Server) postSpec(w http.ResponseWriter, req *http.Request) {
	var body specRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		r := result.BadRequest(serr.ErrBodyUnmarshal.Error(), "decode spec request: %v", err)
		r.WriteResponse(w)
		r.Log(req)
		return
	}
	if body.Source == "" {
		r := result.BadRequest("source is required")
		r.WriteResponse(w)
		r.Log(req)
		return
	}

	art, err := srv.compiler.Source(body.Source)
	if err != nil {
		r := result.BadRequest(err.Error(), "compile spec: %v", err)
		r.WriteResponse(w)
		r.Log(req)
		return
	}

	id, err := uuid.NewRandom()
	if err != nil {
		r := result.InternalServerError("generate spec id: %v", err)
		r.WriteResponse(w)
		r.Log(req)
		return
	}

	rec := cachedb.SpecRecord{
		ID:       id,
		Source:   body.Source,
		GoSource: art.Go,
		YAML:     art.YAML,
		PlantUML: art.PlantUML,
	}
	if err := srv.db.PutSpec(req.Context(), rec); err != nil {
		r := result.InternalServerError("store spec: %v", err)
		r.WriteResponse(w)
		r.Log(req)
		return
	}

	r := result.Created(specResponseFrom(rec), "compiled spec %s", id)
	r.WriteResponse(w)
	r.Log(req)
}

func specResponseFrom(rec cachedb.SpecRecord) specResponse {
	return specResponse{
		ID:       rec.ID.String(),
		Source:   rec.Source,
		Go:       rec.GoSource,
		YAML:     string(rec.YAML),
		PlantUML: rec.PlantUML,
	}
}

func (srv *Server) getSpec(w http.ResponseWriter, req *http.Request) {
	rec, ok := srv.lookupSpec(w, req)
	if !ok {
		return
	}

	r := result.OK(specResponseFrom(rec))
	r.WriteResponse(w)
	r.Log(req)
}

func (srv *Server) getSpecPlantUML(w http.ResponseWriter, req *http.Request) {
	rec, ok := srv.lookupSpec(w, req)
	if !ok {
		return
	}

	r := result.PlainOK(rec.PlantUML)
	r.WriteResponse(w)
	r.Log(req)
}

func (srv *Server) getSpecYAML(w http.ResponseWriter, req *http.Request) {
	rec, ok := srv.lookupSpec(w, req)
	if !ok {
		return
	}

	r := result.PlainOK(string(rec.YAML))
	r.WriteResponse(w)
	r.Log(req)
}

// lookupSpec resolves the {id} URL param into a stored spec record,
// writing and logging an error response and returning ok=false if it
// could not.
func (srv *Server) lookupSpec(w http.ResponseWriter, req *http.Request) (rec cachedb.SpecRecord, ok bool) {
	idStr := chi.URLParam(req, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		r := result.BadRequest(serr.ErrBadArgument.Error(), "parse spec id %q: %v", idStr, err)
		r.WriteResponse(w)
		r.Log(req)
		return cachedb.SpecRecord{}, false
	}

	rec, err = srv.db.GetSpec(req.Context(), id)
	if err != nil {
		if errors.Is(err, cachedb.ErrNotFound) {
			err = fmt.Errorf("%w: %v", serr.ErrNotFound, err)
		}
		r := result.NotFound("get spec %s: %v", id, err)
		r.WriteResponse(w)
		r.Log(req)
		return cachedb.SpecRecord{}, false
	}

	return rec, true
}
