// Package auth models the host environment's caller authentication. The
// engine itself never verifies credentials: the deployment gateway
// authenticates requests and forwards the verified identity in the
// X-Caller-Id header. This package extracts that identity and holds the
// authorization sentinels shared across the operation surface.
package auth

import (
	"errors"
	"net/http"
)

// CallerHeader carries the gateway-verified caller identity.
const CallerHeader = "X-Caller-Id"

var (
	// ErrNotAuthorized is returned when the caller is not permitted to
	// perform an operation (not the admin, or not the position owner).
	ErrNotAuthorized = errors.New("auth: not authorized")

	// ErrNoCaller is returned when a request carries no verified identity.
	ErrNoCaller = errors.New("auth: missing caller identity")
)

// Caller extracts the verified caller identity from a request.
func Caller(r *http.Request) (string, error) {
	caller := r.Header.Get(CallerHeader)
	if caller == "" {
		return "", ErrNoCaller
	}
	return caller, nil
}

// RequireAccount checks that the verified caller is acting as the claimed
// account. The gateway guarantees the identity; this guards against a caller
// submitting operations for someone else's account.
func RequireAccount(caller, account string) error {
	if caller != account {
		return ErrNotAuthorized
	}
	return nil
}
