// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"owmgraph/pkg/cache"
)

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Maintain the response cache",
	}

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Remove expired entries from the LevelDB cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Cache.Backend != cache.BackendLevelDB {
				return fmt.Errorf("prune only applies to the %s backend, configured: %s", cache.BackendLevelDB, a.cfg.Cache.Backend)
			}
			removed, err := RunPrune(cmd.Context(), a.cfg.Cache.Path, a.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired entries from %s\n", removed, a.cfg.Cache.Path)
			return nil
		},
	}

	cmd.AddCommand(prune)
	return cmd
}

// RunPrune opens the LevelDB cache at path and drops expired entries
func RunPrune(ctx context.Context, path string, logger *zap.Logger) (int, error) {
	db, err := cache.OpenLevelDB(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open cache: %w", err)
	}
	defer db.Close()

	removed, err := db.Prune(ctx)
	if err != nil {
		return removed, fmt.Errorf("prune failed: %w", err)
	}
	logger.Info("Pruned cache", zap.String("path", path), zap.Int("removed", removed))
	return removed, nil
}
