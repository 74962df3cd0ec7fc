package session

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gregjones/httpcache"
	"github.com/rs/zerolog/log"
)

// tokenSource provides the current access token, if any.
type tokenSource interface {
	AccessToken() (string, bool)
}

// refresher renews the access credential. *Coordinator satisfies it.
type refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// authPaths are exempt from the 401/403 retry: retrying a failed login or
// refresh through the refresh path would recurse.
var authPaths = []string{"/login", "/refresh", "/logout"}

// Transport is an http.RoundTripper that attaches the current access
// credential to every outbound request and, when a response comes back 401 or
// 403, runs one renewal cycle and replays the request exactly once.
type Transport struct {
	// Base is the underlying transport. http.DefaultTransport when nil.
	Base http.RoundTripper

	source  tokenSource
	renewer refresher
}

// NewTransport creates a credential-attaching transport. base may be nil.
func NewTransport(base http.RoundTripper, store *Store, coord *Coordinator) *Transport {
	return &Transport{
		Base:    base,
		source:  store,
		renewer: coord,
	}
}

// NewCachingBaseTransport returns a base transport with an in-memory HTTP
// cache, for clients that poll cacheable resource endpoints.
func NewCachingBaseTransport() http.RoundTripper {
	return httpcache.NewTransport(httpcache.NewMemoryCache())
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	attempt := req.Clone(req.Context())
	if token, ok := t.source.AccessToken(); ok {
		attempt.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := base.RoundTrip(attempt)
	if err != nil {
		return resp, err
	}

	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		return resp, nil
	}
	if isAuthPath(req.URL.Path) {
		return resp, nil
	}
	// A consumed body without GetBody cannot be replayed.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}

	token, renewErr := t.renewer.Refresh(req.Context())
	if renewErr != nil {
		// Renewal failure already forced a logout; hand the caller the
		// original rejection.
		log.Debug().Err(renewErr).Str("path", req.URL.Path).Msg("renewal after rejected request failed")
		return resp, nil
	}

	// Drop the rejected response before replaying.
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	retry.Header.Set("Authorization", "Bearer "+token)

	// One replay only. If this one also comes back 401/403 it propagates.
	return base.RoundTrip(retry)
}

func isAuthPath(path string) bool {
	for _, p := range authPaths {
		if strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}
