/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package profiler optionally starts the Cloud Profiler agent.
package profiler

import (
	"context"

	"cloud.google.com/go/profiler"
	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
)

type config struct {
	EnableProfiler bool   `env:"ENABLE_PROFILER, default=false"`
	Service        string `env:"K_SERVICE, default=status-reporter"`
	Version        string `env:"K_REVISION"`
}

// SetupProfiler starts the profiler when ENABLE_PROFILER is true.
func SetupProfiler(ctx context.Context) {
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		clog.FromContext(ctx).Fatalf("processing profiler config: %v", err)
	}
	if !cfg.EnableProfiler {
		return
	}
	if err := profiler.Start(profiler.Config{
		Service:        cfg.Service,
		ServiceVersion: cfg.Version,
	}); err != nil {
		clog.FromContext(ctx).Fatalf("failed to start profiler: %v", err)
	}
	clog.FromContext(ctx).Infof("Started profiler for %s", cfg.Service)
}
