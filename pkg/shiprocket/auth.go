package shiprocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Provider tokens are valid for ten days; cache for nine so a process
// started just before true expiry never serves a stale token.
const defaultTokenTTL = 9 * 24 * time.Hour

// tokenSource caches the provider bearer token and refreshes it before
// expiry. Concurrent callers during a cold or expired cache collapse into
// a single login call; all of them share its result or its failure.
type tokenSource struct {
	login func(ctx context.Context) (*LoginResponse, error)
	ttl   time.Duration
	now   func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newTokenSource(login func(ctx context.Context) (*LoginResponse, error), ttl time.Duration, now func() time.Time) *tokenSource {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	if now == nil {
		now = time.Now
	}
	return &tokenSource{login: login, ttl: ttl, now: now}
}

// Token returns a valid bearer token, fetching one if the cache is empty
// or expired. Failures are returned as *AuthError and nothing is cached.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	if tok, ok := ts.cached(); ok {
		return tok, nil
	}

	v, err, _ := ts.group.Do("token", func() (interface{}, error) {
		// Another caller may have refreshed while we waited on the flight.
		if tok, ok := ts.cached(); ok {
			return tok, nil
		}

		resp, err := ts.login(ctx)
		if err != nil {
			return nil, asAuthError(err)
		}
		if resp.Token == "" {
			return nil, &AuthError{Message: "login response missing token"}
		}

		ts.mu.Lock()
		ts.token = resp.Token
		ts.expiresAt = ts.now().Add(ts.ttl)
		ts.mu.Unlock()
		return resp.Token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token, forcing a login on the next call.
func (ts *tokenSource) Invalidate() {
	ts.mu.Lock()
	ts.token = ""
	ts.expiresAt = time.Time{}
	ts.mu.Unlock()
}

func (ts *tokenSource) cached() (string, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.token != "" && ts.now().Before(ts.expiresAt) {
		return ts.token, true
	}
	return "", false
}

// asAuthError folds login failures into the AuthError class, preserving
// the provider's raw payload when the failure was a remote rejection.
func asAuthError(err error) error {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return err
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return &AuthError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			RawBody:    apiErr.RawBody,
			Cause:      err,
		}
	}
	return &AuthError{Message: "login request failed", Cause: err}
}
