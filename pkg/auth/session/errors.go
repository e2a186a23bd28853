package session

import "errors"

var (
	// ErrSessionMissing is returned when there is no session to refresh, and
	// is wrapped by refreshers when the server no longer knows the refresh
	// token. Recovering requires a new sign-in.
	ErrSessionMissing = errors.New("auth session missing")

	// ErrInvalidSession is returned when a session lacks a token pair.
	ErrInvalidSession = errors.New("invalid session")

	// ErrClosed is returned by a Coordinator after Close.
	ErrClosed = errors.New("session coordinator closed")

	// ErrMissingRefresher and ErrMissingStorage report incomplete wiring.
	ErrMissingRefresher = errors.New("missing session refresher")
	ErrMissingStorage   = errors.New("missing session storage")

	// errFlightAbandoned settles a pending refresh whose leader failed to
	// take the session lock. Waiters retry instead of returning it.
	errFlightAbandoned = errors.New("refresh abandoned before it started")
)
