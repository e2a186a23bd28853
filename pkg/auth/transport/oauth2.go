// Package transport talks to the OAuth2 token endpoint on behalf of the
// session coordinator.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/jrschumacher/authsync/pkg/auth/retry"
	"github.com/jrschumacher/authsync/pkg/auth/session"
)

// Retry defaults.
const (
	DefaultRetryBase       = 200 * time.Millisecond
	DefaultMaxRetryElapsed = 30 * time.Second
)

// Error codes that mean the refresh token is gone for good.
var sessionGoneCodes = map[string]bool{
	"invalid_grant":           true,
	"refresh_token_not_found": true,
}

// Config configures an OAuth2Refresher.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	RetryBase       time.Duration
	MaxRetryElapsed time.Duration
	Logger          *slog.Logger
}

// OAuth2Refresher implements session.Refresher with the refresh_token grant.
type OAuth2Refresher struct {
	conf       *oauth2.Config
	client     *http.Client
	base       time.Duration
	maxElapsed time.Duration
	logger     *slog.Logger
}

var _ session.Refresher = (*OAuth2Refresher)(nil)

// NewOAuth2Refresher validates cfg and creates a refresher.
func NewOAuth2Refresher(cfg Config) (*OAuth2Refresher, error) {
	if cfg.TokenURL == "" {
		return nil, errors.New("token URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.TokenURL); err != nil {
		return nil, fmt.Errorf("invalid token URL: %w", err)
	}

	r := &OAuth2Refresher{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client:     cfg.HTTPClient,
		base:       cfg.RetryBase,
		maxElapsed: cfg.MaxRetryElapsed,
		logger:     cfg.Logger,
	}
	if r.base <= 0 {
		r.base = DefaultRetryBase
	}
	if r.maxElapsed <= 0 {
		r.maxElapsed = DefaultMaxRetryElapsed
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "transport")
	return r, nil
}

// Refresh exchanges refreshToken for a new session. Retryable failures are
// retried with exponential backoff until the next wait would pass the
// retry budget; the last error is returned. If ctx ends during a backoff
// wait, ctx.Err() is returned.
func (r *OAuth2Refresher) Refresh(ctx context.Context, refreshToken string) (*session.Session, error) {
	if refreshToken == "" {
		return nil, &AuthError{Code: "refresh_token_not_found", err: session.ErrSessionMissing}
	}

	start := time.Now()
	return retry.Do(ctx,
		func(ctx context.Context, _ int) (*session.Session, error) {
			return r.exchange(ctx, refreshToken)
		},
		func(attempt int, err error, _ *session.Session) bool {
			if !IsRetryable(err) {
				return false
			}
			delay := retry.Backoff(attempt, r.base, 0)
			if time.Since(start)+delay > r.maxElapsed {
				return false
			}
			r.logger.Warn("token refresh failed, retrying", "attempt", attempt+1, "in", delay, "error", err)
			// A cancelled sleep makes Do return ctx.Err().
			_ = retry.Sleep(ctx, delay)
			return true
		})
}

func (r *OAuth2Refresher) exchange(ctx context.Context, refreshToken string) (*session.Session, error) {
	if r.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)
	}

	tok, err := r.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, classify(err)
	}
	return sessionFromToken(tok, time.Now())
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		status := 0
		if rerr.Response != nil {
			status = rerr.Response.StatusCode
		}
		switch {
		case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
			return &RetryableFetchError{Status: status, Err: err}
		case (status == http.StatusBadRequest || status == http.StatusUnauthorized) && sessionGoneCodes[rerr.ErrorCode]:
			return &AuthError{Status: status, Code: rerr.ErrorCode, Description: rerr.ErrorDescription, err: session.ErrSessionMissing, cause: err}
		default:
			return &AuthError{Status: status, Code: rerr.ErrorCode, Description: rerr.ErrorDescription, cause: err}
		}
	}

	var uerr *url.Error
	if errors.As(err, &uerr) {
		return &RetryableFetchError{Err: err}
	}
	return &AuthError{cause: err}
}

func sessionFromToken(tok *oauth2.Token, now time.Time) (*session.Session, error) {
	s := &session.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if !tok.Expiry.IsZero() {
		s.ExpiresAt = tok.Expiry.Unix()
		s.ExpiresIn = int64(math.Round(tok.Expiry.Sub(now).Seconds()))
	}

	if raw, ok := tok.Extra("user").(map[string]any); ok {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to encode user: %w", err)
		}
		var u session.User
		if err := json.Unmarshal(data, &u); err != nil {
			return nil, fmt.Errorf("failed to decode user: %w", err)
		}
		s.User = &u
	}
	return s, nil
}
