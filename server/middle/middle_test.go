package middle

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenGetter(tok string, err error) TokenGetter {
	return func(req *http.Request) (string, error) { return tok, err }
}

func verifier(id uuid.UUID, err error) TokenVerifier {
	return func(tok string) (uuid.UUID, error) { return id, err }
}

func TestRequireAuth_ValidTokenPassesThrough(t *testing.T) {
	wantID := uuid.New()
	var gotID uuid.UUID
	var gotLoggedIn bool

	next := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotID = req.Context().Value(AuthKeyID).(uuid.UUID)
		gotLoggedIn = req.Context().Value(AuthLoggedIn).(bool)
		w.WriteHeader(http.StatusOK)
	})

	handler := RequireAuth(tokenGetter("a-token", nil), verifier(wantID, nil), 0)(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gotLoggedIn)
	assert.Equal(t, wantID, gotID)
}

func TestRequireAuth_MissingTokenRejected(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		t.Fatal("next handler should not be called")
	})

	handler := RequireAuth(tokenGetter("", fmt.Errorf("no token")), verifier(uuid.UUID{}, nil), 0)(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_InvalidTokenRejected(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		t.Fatal("next handler should not be called")
	})

	handler := RequireAuth(tokenGetter("bad", nil), verifier(uuid.UUID{}, fmt.Errorf("invalid")), 0)(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOptionalAuth_MissingTokenStillPassesThrough(t *testing.T) {
	var gotLoggedIn bool
	next := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotLoggedIn = req.Context().Value(AuthLoggedIn).(bool)
		w.WriteHeader(http.StatusOK)
	})

	handler := OptionalAuth(tokenGetter("", fmt.Errorf("no token")), verifier(uuid.UUID{}, nil), 0)(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, gotLoggedIn)
}

func TestDontPanic_RecoversAndWrites500(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		panic("kaboom")
	})

	handler := DontPanic()(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	require.NotPanics(t, func() {
		handler.ServeHTTP(rec, req)
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAuthHandler_RespectsUnauthedDelay(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		t.Fatal("next handler should not be called")
	})

	delay := 20 * time.Millisecond
	handler := RequireAuth(tokenGetter("", fmt.Errorf("no token")), verifier(uuid.UUID{}, nil), delay)(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	start := time.Now()
	handler.ServeHTTP(rec, req)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, delay)
}
