// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"owmgraph/pkg/cache"
	"owmgraph/pkg/config"
	"owmgraph/pkg/model"
	"owmgraph/pkg/pipeline"
	"owmgraph/pkg/snapshot"
	"owmgraph/pkg/sources/localdir"
	"owmgraph/pkg/sources/owm"
	"owmgraph/pkg/sources/prometheus"
	"owmgraph/pkg/util/workers"
)

func newBuildCmd(a *app) *cobra.Command {
	var summary bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Fetch all nodes and write the meshviewer nodes file",
		Example: `  # Weimar only, custom output path
  owmgraph build --bbox 10.8,50.8,11.8,51.2 --output /srv/meshviewer/nodes.json

  # Without the on-disk cache
  owmgraph build --cache-backend none --summary`,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, snap, err := RunBuild(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			if summary {
				printSummary(cmd.OutOrStdout(), stats, snap)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("bbox", "", "bounding box lonMin,latMin,lonMax,latMax")
	flags.String("base-url", "", "OpenWiFiMap API base URL")
	flags.Int("concurrency", 0, "concurrent record fetches")
	flags.String("output", "", "meshviewer nodes file to write")
	flags.String("cache-backend", "", "response cache: leveldb, memory, redis or none")
	flags.String("fallback-dir", "", "directory of node files used when the API index is unreachable")
	flags.BoolVar(&summary, "summary", false, "print a run summary")

	for key, name := range map[string]string{
		"source.bbox":        "bbox",
		"source.base_url":    "base-url",
		"source.concurrency": "concurrency",
		"output.path":        "output",
		"cache.backend":      "cache-backend",
		"fallback.dir":       "fallback-dir",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(name))
	}
	return cmd
}

func openCache(cfg *config.Config, logger *zap.Logger) cache.RecordCache {
	maxTTL := cfg.Source.RecordTTL
	if cfg.Source.IndexTTL > maxTTL {
		maxTTL = cfg.Source.IndexTTL
	}

	c, err := cache.Open(cache.Options{
		Backend:    cfg.Cache.Backend,
		Path:       cfg.Cache.Path,
		MemorySize: cfg.Cache.MemorySize,
		MaxTTL:     maxTTL,
		Redis: cache.RedisOptions{
			Addr: cfg.Cache.RedisAddr,
			DB:   cfg.Cache.RedisDB,
		},
	})
	if err != nil {
		logger.Warn("Cache unavailable, continuing without", zap.String("backend", cfg.Cache.Backend), zap.Error(err))
		return cache.Nop{}
	}
	return c
}

// RunBuild runs the pipeline with collaborators built from cfg and writes the output file
func RunBuild(ctx context.Context, cfg *config.Config, logger *zap.Logger) (pipeline.Stats, model.Snapshot, error) {
	rc := openCache(cfg, logger)
	defer rc.Close()

	retry := workers.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Source.MaxAttempts
	retry.InitialDelay = cfg.Source.RetryDelay

	client := owm.NewClient(owm.Options{
		BaseURL:        cfg.Source.BaseURL,
		BBox:           cfg.BBox(),
		UserAgent:      cfg.Source.UserAgent,
		RequestTimeout: cfg.Source.RequestTimeout,
		Retry:          retry,
		RateLimit:      cfg.Source.RateLimit,
		IndexTTL:       cfg.Source.IndexTTL,
		RecordTTL:      cfg.Source.RecordTTL,
		Cache:          rc,
		Logger:         logger,
	})

	opts := pipeline.Options{
		Fetcher:       client,
		Fallback:      localdir.New(nil, cfg.Fallback.Dir, logger),
		Concurrency:   cfg.Source.Concurrency,
		BBox:          cfg.BBox(),
		IgnoreOffline: cfg.Filter.IgnoreOffline,
		OnlineWindow:  cfg.Filter.OnlineWindow,
		StaleAfter:    cfg.Filter.StaleAfter,
		DefaultDomain: cfg.Filter.DefaultDomain,
		Logger:        logger,
	}
	if cfg.Prometheus.URL != "" {
		opts.Clients = prometheus.New(prometheus.Options{
			URL:         cfg.Prometheus.URL,
			BearerToken: cfg.Prometheus.BearerToken,
			Timeout:     cfg.Prometheus.Timeout,
			Logger:      logger,
		})
	}

	snap, stats, err := pipeline.Run(ctx, opts)
	if err != nil {
		return stats, snap, fmt.Errorf("build aborted: %w", err)
	}

	if err := snapshot.WriteFile(snap, cfg.Output.Path); err != nil {
		return stats, snap, err
	}
	logger.Info("Wrote nodes file",
		zap.String("path", cfg.Output.Path),
		zap.Int("nodes", snap.NodeCount()),
		zap.Int("links", snap.LinkCount()))
	return stats, snap, nil
}
