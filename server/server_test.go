package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSpecSource = "machine M:\n" +
	"    *state a:\n" +
	"        ev_go -> b\n" +
	"    state b:\n" +
	"        pass\n"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := Config{
		TokenSecret: []byte("test-secret-test-secret-test-se"),
		CacheDBPath: filepath.Join(t.TempDir(), "cache.db"),
	}
	srv, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

func issueTestToken(t *testing.T, srv *Server) string {
	t.Helper()
	ctx := context.Background()
	id, plainKey, err := srv.db.CreateAPIKey(ctx, "test-client")
	require.NoError(t, err)

	tok, err := mintToken(srv.cfg.TokenSecret, id, "test-client")
	require.NoError(t, err)

	// sanity check the key can also be exchanged the normal way
	gotID, err := srv.db.VerifyAPIKey(ctx, plainKey)
	require.NoError(t, err)
	require.Equal(t, id, gotID)

	return tok
}

func TestServer_GetInfo_NoAuthRequired(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, PathPrefix+"/info", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_PostToken_ValidKeyReturnsToken(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	_, plainKey, err := srv.db.CreateAPIKey(ctx, "test-client")
	require.NoError(t, err)

	body, _ := json.Marshal(tokenRequest{APIKey: plainKey})
	req := httptest.NewRequest(http.MethodPost, PathPrefix+"/tokens", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
}

func TestServer_PostToken_WrongKeyUnauthorized(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(tokenRequest{APIKey: "not-a-real-key"})
	req := httptest.NewRequest(http.MethodPost, PathPrefix+"/tokens", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_PostSpec_RequiresAuth(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(specRequest{Source: testSpecSource})
	req := httptest.NewRequest(http.MethodPost, PathPrefix+"/specs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_PostSpecThenGet_RoundTrip(t *testing.T) {
	srv := newTestServer(t)
	tok := issueTestToken(t, srv)

	body, _ := json.Marshal(specRequest{Source: testSpecSource})
	req := httptest.NewRequest(http.MethodPost, PathPrefix+"/specs", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var created specResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Contains(t, created.Go, "func NewM()")
	assert.Contains(t, created.PlantUML, "@startuml")
	assert.Contains(t, created.PlantUML, `state "M" as M`)

	getReq := httptest.NewRequest(http.MethodGet, PathPrefix+"/specs/"+created.ID, nil)
	getReq.Header.Set("Authorization", "Bearer "+tok)
	getRec := httptest.NewRecorder()
	srv.router.ServeHTTP(getRec, getReq)

	require.Equal(t, http.StatusOK, getRec.Code)
	var fetched specResponse
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &fetched))
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, testSpecSource, fetched.Source)
}

func TestServer_GetSpecPlantUML(t *testing.T) {
	srv := newTestServer(t)
	tok := issueTestToken(t, srv)

	body, _ := json.Marshal(specRequest{Source: testSpecSource})
	req := httptest.NewRequest(http.MethodPost, PathPrefix+"/specs", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created specResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	pumlReq := httptest.NewRequest(http.MethodGet, PathPrefix+"/specs/"+created.ID+"/plantuml", nil)
	pumlReq.Header.Set("Authorization", "Bearer "+tok)
	pumlRec := httptest.NewRecorder()
	srv.router.ServeHTTP(pumlRec, pumlReq)

	require.Equal(t, http.StatusOK, pumlRec.Code)
	assert.Contains(t, pumlRec.Body.String(), "@startuml")
	assert.Contains(t, pumlRec.Body.String(), `state "M" as M`)
}

func TestServer_GetSpec_UnknownIDIsNotFound(t *testing.T) {
	srv := newTestServer(t)
	tok := issueTestToken(t, srv)

	req := httptest.NewRequest(http.MethodGet, PathPrefix+"/specs/00000000-0000-0000-0000-000000000000", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_BootstrapAPIKey_OnlyCreatesOnce(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	created, id1, key1, err := srv.BootstrapAPIKey(ctx, "bootstrap")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, key1)

	created, _, _, err = srv.BootstrapAPIKey(ctx, "bootstrap")
	require.NoError(t, err)
	assert.False(t, created)

	gotID, err := srv.db.VerifyAPIKey(ctx, key1)
	require.NoError(t, err)
	assert.Equal(t, id1, gotID)
}

func TestServer_PostSpec_InvalidSourceIsBadRequest(t *testing.T) {
	srv := newTestServer(t)
	tok := issueTestToken(t, srv)

	body, _ := json.Marshal(specRequest{Source: "not valid harel DSL at all {{{"})
	req := httptest.NewRequest(http.MethodPost, PathPrefix+"/specs", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
