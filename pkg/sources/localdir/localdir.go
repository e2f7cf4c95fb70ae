// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package localdir reads node documents from a directory of JSON files.
// It is the fallback source when the upstream index cannot be fetched.
package localdir

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"owmgraph/pkg/model"
)

const DefaultDir = "/var/opt/ffmapdata"

// Source lists *.json files in one directory
type Source struct {
	fs     afero.Fs
	dir    string
	logger *zap.Logger
}

// New creates a source for dir on fs. A nil fs means the OS filesystem.
func New(fs afero.Fs, dir string, logger *zap.Logger) *Source {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if dir == "" {
		dir = DefaultDir
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{fs: fs, dir: dir, logger: logger.Named("localdir")}
}

// Dir returns the directory being read
func (s *Source) Dir() string {
	return s.dir
}

// Records returns every *.json file as a raw record. The identifier is the
// file name without extension, query-unescaped. Unreadable files are skipped.
func (s *Source) Records(ctx context.Context) ([]model.RawRecord, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrSourceUnavailable, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

	records := []model.RawRecord{}
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		name := info.Name()
		if info.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		id, err := url.QueryUnescape(strings.TrimSuffix(name, ".json"))
		if err != nil {
			s.logger.Warn("Skipping file with undecodable name", zap.String("file", name), zap.Error(err))
			continue
		}

		body, err := afero.ReadFile(s.fs, path.Join(s.dir, name))
		if err != nil {
			s.logger.Warn("Skipping unreadable file", zap.String("file", name), zap.Error(err))
			continue
		}
		records = append(records, model.RawRecord{ID: id, Body: body})
	}

	s.logger.Info("Loaded local node files", zap.String("dir", s.dir), zap.Int("files", len(records)))
	return records, nil
}
