package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// RenewFunc performs one credential renewal against the server and returns
// the new access token. The coordinator guarantees at most one invocation is
// outstanding at any time.
type RenewFunc func(ctx context.Context) (string, error)

type refreshResult struct {
	token string
	err   error
}

// Coordinator serializes credential renewals. For N concurrent Refresh calls
// while one renewal is in flight, exactly one network call is made and every
// caller observes the same outcome.
//
// The coordinator is an instance, not package state, so independent managers
// (and tests) never share flight status.
type Coordinator struct {
	mu       sync.Mutex
	inFlight bool
	waiters  []chan refreshResult

	renew RenewFunc

	// onFailure is invoked once per failed flight, after the result has been
	// fanned out to all waiters.
	onFailure func(err error)
}

// NewCoordinator creates a refresh coordinator around a renewal function.
func NewCoordinator(renew RenewFunc, onFailure func(error)) *Coordinator {
	return &Coordinator{
		renew:     renew,
		onFailure: onFailure,
	}
}

// Refresh returns a fresh access token. If a renewal is already in flight the
// call joins it instead of issuing a second one.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.inFlight {
		// Join the in-flight renewal. The channel is buffered so the
		// fan-out never blocks on a caller that gave up.
		ch := make(chan refreshResult, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()

		select {
		case res := <-ch:
			return res.token, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	c.inFlight = true
	c.mu.Unlock()

	token, err := c.renew(ctx)

	// Clear the flight before waking anyone: a waiter that re-enters after
	// waking starts a fresh renewal rather than observing this one.
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.inFlight = false
	c.mu.Unlock()

	for _, ch := range waiters {
		ch <- refreshResult{token: token, err: err}
	}

	if err != nil {
		log.Debug().Err(err).Int("waiters", len(waiters)).Msg("credential renewal failed")
		if c.onFailure != nil {
			c.onFailure(err)
		}
		return "", err
	}

	return token, nil
}
