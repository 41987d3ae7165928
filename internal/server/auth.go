package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// TokenAuth checks a shared token passed either as the "token" query parameter
// or as a bearer Authorization header. An empty token accepts everything.
type TokenAuth struct {
	Token string
}

func (a TokenAuth) Authorize(r *http.Request) error {
	if a.Token == "" {
		return nil
	}
	got := r.URL.Query().Get("token")
	if got == "" {
		got = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(a.Token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}
