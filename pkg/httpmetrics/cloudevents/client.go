/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package cloudevents

import (
	"net/http"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"

	metrics "github.com/chainguard-dev/build-status-reporter/pkg/httpmetrics"
)

// NewClientHTTP creates a CloudEvents HTTP client whose inbound handler and
// outbound transport are both instrumented.
func NewClientHTTP(name string, opts ...cehttp.Option) (cloudevents.Client, error) {
	// Passing our own client keeps the SDK from replacing the Transport on
	// http.DefaultClient.
	metricsClient := http.Client{
		Transport: metrics.Transport,
	}
	copt := append([]cehttp.Option{
		cehttp.WithClient(metricsClient),
		cloudevents.WithMiddleware(func(next http.Handler) http.Handler {
			return metrics.Handler(name, next)
		})}, opts...)
	return cloudevents.NewClientHTTP(copt...)
}
