package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jrschumacher/authsync/pkg/auth/session"
)

// SessionProvider hands out sessions; *session.Coordinator implements it.
type SessionProvider interface {
	GetSession(ctx context.Context) (*session.Session, error)
	RefreshSession(ctx context.Context, force bool) (*session.Session, error)
}

// BearerTransport authorizes outgoing requests with the current access
// token. The session is refreshed before use when it is about to expire,
// and a 401 answer triggers one forced refresh and a single retry.
type BearerTransport struct {
	Sessions SessionProvider

	// Base defaults to http.DefaultTransport.
	Base http.RoundTripper
}

var _ http.RoundTripper = (*BearerTransport)(nil)

// NewBearerClient returns an http.Client that authorizes requests from sessions.
func NewBearerClient(sessions SessionProvider, base http.RoundTripper) *http.Client {
	return &http.Client{Transport: &BearerTransport{Sessions: sessions, Base: base}}
}

func (t *BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	s, err := t.Sessions.GetSession(ctx)
	if err != nil {
		closeBody(req)
		return nil, err
	}
	if s == nil {
		closeBody(req)
		return nil, session.ErrSessionMissing
	}

	resp, err := t.base().RoundTrip(authorize(req, s))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	retry, err := rewind(req)
	if err == nil && retry == nil {
		return resp, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	// Another caller may already have rotated the token.
	fresh, err := t.Sessions.GetSession(ctx)
	if err == nil && fresh != nil && fresh.AccessToken == s.AccessToken {
		fresh, err = t.Sessions.RefreshSession(ctx, true)
	}
	if err != nil {
		closeBody(retry)
		return nil, fmt.Errorf("refresh after 401: %w", err)
	}
	if fresh == nil {
		closeBody(retry)
		return nil, session.ErrSessionMissing
	}
	return t.base().RoundTrip(authorize(retry, fresh))
}

func (t *BearerTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func authorize(req *http.Request, s *session.Session) *http.Request {
	out := req.Clone(req.Context())
	out.Header.Set("Authorization", tokenType(s)+" "+s.AccessToken)
	return out
}

func tokenType(s *session.Session) string {
	if s.TokenType == "" || strings.EqualFold(s.TokenType, "bearer") {
		return "Bearer"
	}
	return s.TokenType
}

// rewind returns a copy of req with a fresh body, or nil when the body
// cannot be replayed.
func rewind(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	out := req.Clone(req.Context())
	out.Body = body
	return out, nil
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		req.Body.Close()
	}
}
