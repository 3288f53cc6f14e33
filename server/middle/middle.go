// Package middle contains middleware for use with the compile service.
package middle

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/dekarrin/harel/server/result"
)

type mwFunc http.HandlerFunc

func (sf mwFunc) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	sf(w, req)
}

// Middleware is a function that takes a handler and returns a new handler which
// wraps the given one and provides some additional functionality.
type Middleware func(next http.Handler) http.Handler

// AuthKey is a key in the context of a request populated by an AuthHandler.
type AuthKey int64

const (
	AuthLoggedIn AuthKey = iota
	AuthKeyID
)

// TokenVerifier validates a bearer token and, if valid, returns the ID
// of the API key it was minted for.
type TokenVerifier func(tok string) (uuid.UUID, error)

// TokenGetter extracts the raw bearer token string from a request.
type TokenGetter func(req *http.Request) (string, error)

// AuthHandler is middleware that accepts a request, extracts the bearer
// token used for authentication, and validates it against a
// TokenVerifier to obtain the ID of the API key that authenticates the
// caller.
//
// Keys are added to the request context before the request is passed to
// the next step in the chain. AuthKeyID will contain the authenticated
// key's ID, and AuthLoggedIn will return whether the caller is
// authenticated (only applies for optional auth; for non-optional, not
// being authenticated results in an HTTP error being returned before
// the request reaches the next handler).
type AuthHandler struct {
	getToken      TokenGetter
	verify        TokenVerifier
	required      bool
	unauthedDelay time.Duration
	next          http.Handler
}

func (ah *AuthHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var loggedIn bool
	var keyID uuid.UUID

	tok, err := ah.getToken(req)
	if err != nil {
		// deliberately leaving as embedded if instead of &&
		if ah.required {
			r := result.Unauthorized("", err.Error())
			time.Sleep(ah.unauthedDelay)
			r.WriteResponse(w)
			r.Log(req)
			return
		}
	} else {
		id, err := ah.verify(tok)
		if err != nil {
			// deliberately leaving as embedded if instead of &&
			if ah.required {
				r := result.Unauthorized("", err.Error())
				time.Sleep(ah.unauthedDelay)
				r.WriteResponse(w)
				r.Log(req)
				return
			}
		} else {
			keyID = id
			loggedIn = true
		}
	}

	ctx := req.Context()
	ctx = context.WithValue(ctx, AuthLoggedIn, loggedIn)
	ctx = context.WithValue(ctx, AuthKeyID, keyID)
	req = req.WithContext(ctx)
	ah.next.ServeHTTP(w, req)
}

// RequireAuth returns Middleware that rejects any request that does not
// carry a token which getTok can extract and verify can validate.
func RequireAuth(getTok TokenGetter, verify TokenVerifier, unauthDelay time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return &AuthHandler{
			getToken:      getTok,
			verify:        verify,
			unauthedDelay: unauthDelay,
			required:      true,
			next:          next,
		}
	}
}

// OptionalAuth returns Middleware that attempts to authenticate the
// request but passes it through regardless of whether it succeeds;
// handlers can check AuthLoggedIn to see whether it did.
func OptionalAuth(getTok TokenGetter, verify TokenVerifier, unauthDelay time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return &AuthHandler{
			getToken:      getTok,
			verify:        verify,
			unauthedDelay: unauthDelay,
			required:      false,
			next:          next,
		}
	}
}

// DontPanic returns a Middleware that performs a panic check as it exits. If
// the function is panicking, it will write out an HTTP response with a generic
// message to the client and add it to the log.
func DontPanic() Middleware {
	return func(next http.Handler) http.Handler {
		return mwFunc(func(w http.ResponseWriter, r *http.Request) {
			defer panicTo500(w, r)
			next.ServeHTTP(w, r)
		})
	}
}

func panicTo500(w http.ResponseWriter, req *http.Request) (panicVal interface{}) {
	if panicErr := recover(); panicErr != nil {
		r := result.TextErr(
			http.StatusInternalServerError,
			"An internal server error occurred",
			fmt.Sprintf("panic: %v\nSTACK TRACE: %s", panicErr, string(debug.Stack())),
		)
		r.WriteResponse(w)
		r.Log(req)
		return true
	}
	return false
}
