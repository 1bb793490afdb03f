/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package httpmetrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	mReqCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_client_request_count",
			Help: "The total number of outgoing HTTP requests",
		},
		[]string{"code", "method", "host", "route", "service_name", "revision_name"},
	)
	mReqInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_client_request_in_flight",
			Help: "The number of outgoing HTTP requests currently inflight",
		},
		[]string{"method", "host", "service_name", "revision_name"},
	)
	mReqDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_client_request_duration_seconds",
			Help:    "The duration of outgoing HTTP requests",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"code", "method", "host", "service_name", "revision_name"},
	)
	seenHostMap = sync.Map{}
)

// The hosts this service talks to are bucketed by default.
var (
	bucketsMu sync.RWMutex
	buckets   = map[string]string{
		"api.github.com":             "api.github.com",
		"cr-buildbucket.appspot.com": "buildbucket",
		"storage.googleapis.com":     "gcs",
		"octo-sts.dev":               "octo-sts",
	}
	bucketSuffixes = map[string]string{}
)

// SetBuckets adds exact host to label mappings.
func SetBuckets(b map[string]string) {
	bucketsMu.Lock()
	defer bucketsMu.Unlock()
	for k, v := range b {
		buckets[k] = v
	}
}

// SetBucketSuffixes adds host suffix to label mappings, e.g. "googleapis.com".
func SetBucketSuffixes(bs map[string]string) {
	bucketsMu.Lock()
	defer bucketsMu.Unlock()
	for k, v := range bs {
		bucketSuffixes[k] = v
	}
}

// Transport is an http.RoundTripper that records metrics for each request.
var Transport = WrapTransport(http.DefaultTransport)

// WrapTransport wraps an http.RoundTripper with instrumentation.
func WrapTransport(t http.RoundTripper) http.RoundTripper {
	return instrumentRoundTripperCounter(
		instrumentRoundTripperInFlight(
			instrumentRoundTripperDuration(
				instrumentGitHubRateLimits(
					otelhttp.NewTransport(t)))))
}

func mapErrorToLabel(err error) string {
	switch msg := err.Error(); {
	case strings.Contains(msg, "context deadline exceeded"):
		return "deadline-exceeded"
	case strings.Contains(msg, "context canceled"):
		return "canceled"
	case strings.Contains(msg, "no route to host"):
		return "no-route-to-host"
	case strings.Contains(msg, "i/o timeout"):
		return "io-timeout"
	case strings.Contains(msg, "TLS handshake timeout"):
		return "tls-handshake-timeout"
	case strings.Contains(msg, "unexpected EOF"):
		return "unexpected-eof"
	default:
		return "unknown-error"
	}
}

func labels(r *http.Request) prometheus.Labels {
	return prometheus.Labels{
		"method":        r.Method,
		"host":          bucketize(r.Context(), r.URL.Host),
		"service_name":  env.KnativeServiceName,
		"revision_name": env.KnativeRevisionName,
	}
}

func instrumentRoundTripperCounter(next http.RoundTripper) promhttp.RoundTripperFunc {
	return func(r *http.Request) (*http.Response, error) {
		l := labels(r)
		l["route"] = route(r.URL.Host, r.URL.Path)

		resp, err := next.RoundTrip(r)
		if err != nil {
			l["code"] = mapErrorToLabel(err)
		} else {
			l["code"] = strconv.Itoa(resp.StatusCode)
		}
		mReqCount.With(l).Inc()
		return resp, err
	}
}

func instrumentRoundTripperInFlight(next http.RoundTripper) promhttp.RoundTripperFunc {
	return func(r *http.Request) (*http.Response, error) {
		g := mReqInFlight.With(labels(r))
		g.Inc()
		defer g.Dec()
		return next.RoundTrip(r)
	}
}

func instrumentRoundTripperDuration(next http.RoundTripper) promhttp.RoundTripperFunc {
	return func(r *http.Request) (*http.Response, error) {
		start := time.Now()
		resp, err := next.RoundTrip(r)
		if err == nil {
			l := labels(r)
			l["code"] = strconv.Itoa(resp.StatusCode)
			mReqDuration.With(l).Observe(time.Since(start).Seconds())
		}
		return resp, err
	}
}

func bucketize(ctx context.Context, host string) string {
	bucketsMu.RLock()
	defer bucketsMu.RUnlock()

	if b, ok := buckets[host]; ok {
		return b
	}
	for k, v := range bucketSuffixes {
		if strings.HasSuffix(host, "."+k) {
			return v
		}
	}

	v, _ := seenHostMap.LoadOrStore(host, &atomic.Int64{})
	if seen := v.(*atomic.Int64).Add(1); (seen-1)%10 == 0 {
		clog.WarnContext(ctx, `bucketing host as "other", use httpmetrics.SetBucket{Suffixe}s`, "host", host, "seen", seen)
	}
	return "other"
}

var (
	mGitHubRateLimitRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "github_rate_limit_remaining",
			Help: "The number of requests remaining in the current rate limit window",
		},
		[]string{"resource"},
	)
	mGitHubRateLimit = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "github_rate_limit",
			Help: "The number of requests allowed during the rate limit window",
		},
		[]string{"resource"},
	)
	mGitHubRateLimitTimeToReset = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "github_rate_limit_time_to_reset",
			Help: "The number of minutes until the current rate limit window resets",
		},
		[]string{"resource"},
	)
)

// See https://docs.github.com/en/rest/using-the-rest-api/rate-limits-for-the-rest-api
func instrumentGitHubRateLimits(next http.RoundTripper) promhttp.RoundTripperFunc {
	return func(r *http.Request) (*http.Response, error) {
		resp, err := next.RoundTrip(r)
		if err != nil || resp.Header.Get("X-RateLimit-Limit") == "" {
			return resp, err
		}
		resource := resp.Header.Get("X-RateLimit-Resource")
		if resource == "" {
			resource = "unknown"
		}
		val := func(key string) float64 {
			i, err := strconv.Atoi(resp.Header.Get(key))
			if err != nil {
				return 0
			}
			return float64(i)
		}
		l := prometheus.Labels{"resource": resource}
		mGitHubRateLimitRemaining.With(l).Set(val("X-RateLimit-Remaining"))
		mGitHubRateLimit.With(l).Set(val("X-RateLimit-Limit"))
		if reset := val("X-RateLimit-Reset"); reset > 0 {
			mGitHubRateLimitTimeToReset.With(l).Set(time.Until(time.Unix(int64(reset), 0)).Minutes())
		}
		return resp, err
	}
}
