/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package githubclient

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// GitHub rate limit headers, in Go canonical form.
// https://docs.github.com/en/rest/using-the-rest-api/rate-limits-for-the-rest-api#checking-the-status-of-your-rate-limit
const (
	HeaderRetryAfter          = "Retry-After"
	HeaderXRateLimitReset     = "X-Ratelimit-Reset"
	HeaderXRateLimitRemaining = "X-Ratelimit-Remaining"

	defaultRetryAfter = time.Minute
)

// Limiter pauses every request sharing it once GitHub reports a rate limit.
type Limiter struct {
	base  *rate.Limiter
	clock clockwork.Clock

	mu         sync.Mutex
	pauseUntil time.Time
	pauseCh    chan struct{}
}

// NewLimiter creates a Limiter that does not throttle until paused.
func NewLimiter() *Limiter {
	return newLimiter(clockwork.NewRealClock())
}

func newLimiter(clock clockwork.Clock) *Limiter {
	return &Limiter{
		base:  rate.NewLimiter(rate.Inf, 100),
		clock: clock,
	}
}

// Wait blocks while the limiter is paused. A replaced pause closes the old
// channel, so waiters check again until no pause is in place.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		pauseCh := l.pauseCh
		l.mu.Unlock()

		if pauseCh == nil {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pauseCh:
		}
	}
	return l.base.Wait(ctx)
}

// PauseFor pauses all requests for d. A shorter pause never cuts an
// existing one short.
func (l *Limiter) PauseFor(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	until := l.clock.Now().Add(d)
	if !until.After(l.pauseUntil) {
		return
	}
	l.pauseUntil = until
	if l.pauseCh != nil {
		close(l.pauseCh)
	}
	ch := make(chan struct{})
	l.pauseCh = ch

	l.clock.AfterFunc(d, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if ch == l.pauseCh {
			close(ch)
			l.pauseCh = nil
			l.pauseUntil = time.Time{}
		}
	})
}

// Paused reports whether requests are currently held.
func (l *Limiter) Paused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pauseCh != nil
}

// Transport retries GitHub requests that were rejected by a rate limit, after
// pausing every request that shares its Limiter.
type Transport struct {
	base    http.RoundTripper
	limiter *Limiter
}

// NewTransport wraps base with rate limit handling.
func NewTransport(base http.RoundTripper, l *Limiter) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if l == nil {
		l = NewLimiter()
	}
	return &Transport{base: base, limiter: l}
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	d, limited := retryDelay(ctx, resp, t.limiter.clock)
	if !limited {
		return resp, nil
	}
	// Requests with a body cannot be replayed unless they can be rewound.
	if req.Body != nil && req.GetBody == nil {
		t.limiter.PauseFor(d)
		return resp, nil
	}
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return resp, nil
		}
		req = req.Clone(ctx)
		req.Body = body
	}
	resp.Body.Close()

	clog.FromContext(ctx).With("retry_after", d).Warn("GitHub rate limit hit, pausing requests")
	t.limiter.PauseFor(d)
	return t.RoundTrip(req)
}

// retryDelay reports how long to pause after resp, if it is a rate limit
// rejection.
// https://docs.github.com/en/rest/using-the-rest-api/rate-limits-for-the-rest-api#exceeding-the-rate-limit
func retryDelay(ctx context.Context, resp *http.Response, clock clockwork.Clock) (time.Duration, bool) {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusTooManyRequests {
		return 0, false
	}
	log := clog.FromContext(ctx)

	if v := resp.Header.Get(HeaderRetryAfter); v != "" {
		seconds, err := strconv.Atoi(v)
		if err == nil {
			return time.Duration(seconds) * time.Second, true
		}
		log.Warnf("Failed to parse retry-after header: %v", err)
	}

	remaining := resp.Header.Get(HeaderXRateLimitRemaining)
	reset := resp.Header.Get(HeaderXRateLimitReset)
	if remaining == "0" && reset != "" {
		seconds, err := strconv.ParseInt(reset, 10, 64)
		if err != nil {
			log.Warnf("Failed to parse x-ratelimit-reset header: %v", err)
		} else if d := time.Unix(seconds, 0).Sub(clock.Now()); d > 0 {
			return d, true
		}
	}

	// Any other 403 is a permission problem, not a rate limit.
	if remaining == "0" || resp.StatusCode == http.StatusTooManyRequests {
		return defaultRetryAfter, true
	}
	return 0, false
}
