/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/compute/metadata"
	"cloud.google.com/go/pubsub/v2"
	"github.com/chainguard-dev/clog"
	_ "github.com/chainguard-dev/clog/gcp/init"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/sync/errgroup"

	"github.com/chainguard-dev/build-status-reporter/internal/receiver"
	"github.com/chainguard-dev/build-status-reporter/pkg/buildbucket"
	"github.com/chainguard-dev/build-status-reporter/pkg/buildstatus"
	"github.com/chainguard-dev/build-status-reporter/pkg/buildstatus/githubstatus"
	"github.com/chainguard-dev/build-status-reporter/pkg/configstore"
	"github.com/chainguard-dev/build-status-reporter/pkg/githubclient"
	"github.com/chainguard-dev/build-status-reporter/pkg/httpmetrics"
	mce "github.com/chainguard-dev/build-status-reporter/pkg/httpmetrics/cloudevents"
	"github.com/chainguard-dev/build-status-reporter/pkg/profiler"
	bspubsub "github.com/chainguard-dev/build-status-reporter/pkg/pubsub"
)

type Config struct {
	Port int `env:"PORT, default=8080"`

	// GitHub App credentials. When unset, OCTO_STS_IDENTITY is used.
	AppID          int64  `env:"GITHUB_APP_ID"`
	InstallationID int64  `env:"GITHUB_INSTALLATION_ID"`
	AppKeyFile     string `env:"GITHUB_APP_KEY_FILE"`
	OctoIdentity   string `env:"OCTO_STS_IDENTITY"`

	GitHubOrg         string `env:"GITHUB_ORG, default=flutter"`
	GitHubDefaultRepo string `env:"GITHUB_DEFAULT_REPO, default=flutter"`

	BuildbucketHost string `env:"BUILDBUCKET_HOST, default=cr-buildbucket.appspot.com"`
	Project         string `env:"LUCI_PROJECT, default=flutter"`
	TryBucket       string `env:"LUCI_TRY_BUCKET, default=try"`
	ConsoleURL      string `env:"LUCI_CONSOLE_URL, default=https://ci.chromium.org"`

	ConfigBucket string        `env:"CONFIG_BUCKET, required"`
	ConfigTTL    time.Duration `env:"CONFIG_TTL, default=5m"`

	// BuildsSubscription, when set, pulls raw Buildbucket notifications
	// from Pub/Sub in addition to receiving pushed CloudEvents.
	BuildsSubscription string `env:"BUILDS_SUBSCRIPTION"`
	GCPProject         string `env:"GOOGLE_CLOUD_PROJECT"`

	DescriptionPrefix string `env:"STATUS_DESCRIPTION_PREFIX, default=Flutter LUCI Build"`
	Parallelism       int    `env:"DISPATCH_PARALLELISM, default=4"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	logger := clog.FromContext(ctx)

	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		logger.Fatalf("Failed to process configuration: %v", err)
	}

	profiler.SetupProfiler(ctx)
	go httpmetrics.ServeMetrics()
	defer httpmetrics.SetupTracer(ctx)()

	tsf, err := tokenSource(cfg)
	if err != nil {
		logger.Fatalf("Failed to configure GitHub credentials: %v", err)
	}
	clients := githubclient.NewClientCache(tsf, githubclient.WithOrgScopedCredentials())

	getter, err := configstore.OpenBlobGetter(ctx, cfg.ConfigBucket)
	if err != nil {
		logger.Fatalf("Failed to open config bucket: %v", err)
	}
	defer getter.Close()
	lookup := configstore.NewStore(configstore.NewCache(getter, cfg.ConfigTTL))

	hc, err := buildbucket.DefaultHTTPClient(ctx)
	if err != nil {
		logger.Fatalf("Failed to create Buildbucket credentials: %v", err)
	}
	builds := buildbucket.New(cfg.BuildbucketHost, cfg.Project, buildbucket.WithHTTPClient(hc))

	opts := buildstatus.Options{
		DescriptionPrefix: cfg.DescriptionPrefix,
		ConsoleURL:        cfg.ConsoleURL,
		Project:           cfg.Project,
		TryBucket:         cfg.TryBucket,
		Parallelism:       cfg.Parallelism,
	}
	reconciler := buildstatus.NewReconciler(githubstatus.New(clients), lookup, opts)
	dispatcher := buildstatus.NewDispatcher(reconciler, builds, lookup, opts)
	r := receiver.New(reconciler, dispatcher, lookup, cfg.GitHubOrg, cfg.GitHubDefaultRepo)

	c, err := mce.NewClientHTTP("status-reporter", cloudevents.WithPort(cfg.Port))
	if err != nil {
		logger.Fatalf("Failed to create event client: %v", err)
	}

	logger.With(
		"port", cfg.Port,
		"project", cfg.Project,
		"try_bucket", cfg.TryBucket,
		"config_bucket", cfg.ConfigBucket,
		"builds_subscription", cfg.BuildsSubscription,
	).Info("Starting status reporter")

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return c.StartReceiver(ctx, r.Handle)
	})
	if cfg.BuildsSubscription != "" {
		project := cfg.GCPProject
		if project == "" {
			if project, err = metadata.ProjectIDWithContext(ctx); err != nil {
				logger.Fatalf("Failed to determine GCP project: %v", err)
			}
		}
		psc, err := pubsub.NewClient(ctx, project)
		if err != nil {
			logger.Fatalf("Failed to create Pub/Sub client: %v", err)
		}
		defer psc.Close()
		eg.Go(func() error {
			return bspubsub.Receive(ctx, psc.Subscriber(cfg.BuildsSubscription), receiver.BuildEventType, buildbucket.DefaultHost, r.Handle)
		})
	}
	if err := eg.Wait(); err != nil {
		logger.Fatalf("Receiver failed: %v", err)
	}
}

func tokenSource(cfg Config) (githubclient.TokenSourceFunc, error) {
	switch {
	case cfg.AppID != 0:
		if cfg.InstallationID == 0 || cfg.AppKeyFile == "" {
			return nil, fmt.Errorf("GITHUB_APP_ID requires GITHUB_INSTALLATION_ID and GITHUB_APP_KEY_FILE")
		}
		key, err := os.ReadFile(cfg.AppKeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading app key: %w", err)
		}
		return githubclient.AppTokenSource(cfg.AppID, cfg.InstallationID, key)
	case cfg.OctoIdentity != "":
		return githubclient.OctoSTSTokenSource(cfg.OctoIdentity), nil
	default:
		return nil, fmt.Errorf("one of GITHUB_APP_ID or OCTO_STS_IDENTITY must be set")
	}
}
