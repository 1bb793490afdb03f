/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package buildstatus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mPosts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildstatus_posts_total",
			Help: "The number of commit statuses posted, by state",
		},
		[]string{"state"},
	)
	mSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildstatus_skips_total",
			Help: "The number of status updates skipped, by reason",
		},
		[]string{"reason"},
	)
)
