// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianMobility/cmd/mobility/config"
	"github.com/AleutianAI/AleutianMobility/pkg/logging"
	"github.com/AleutianAI/AleutianMobility/services/mobility/cache"
	"github.com/AleutianAI/AleutianMobility/services/mobility/ingest"
	"github.com/AleutianAI/AleutianMobility/services/mobility/pipeline"
	"github.com/AleutianAI/AleutianMobility/services/mobility/records"
	mbadger "github.com/AleutianAI/AleutianMobility/services/mobility/storage/badger"
	"github.com/AleutianAI/AleutianMobility/services/mobility/telemetry"
)

// fileConcurrency caps how many trip files are parsed at once.
const fileConcurrency = 4

// app holds what every subcommand needs: config, logger, telemetry, and
// the optional trip cache.
type app struct {
	cfg    *config.MobilityConfig
	log    *logging.Logger
	logger *slog.Logger

	shutdownTelemetry func(context.Context) error

	db    *mbadger.DB
	cache *cache.Cache
}

// newApp loads the config and starts logging and telemetry. The cache is
// opened when the config enables it and --no-cache is absent.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath, os.Stderr)
	if err != nil {
		return nil, err
	}

	levelName := cfg.Logging.Level
	if logLevel != "" {
		levelName = logLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	log := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "mobility",
		JSON:    cfg.Logging.JSON,
	})
	slog.SetDefault(log.Slog())

	a := &app{cfg: cfg, log: log, logger: log.Slog()}

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.shutdownTelemetry = shutdown

	if cfg.Cache.Enabled && !noCache {
		if err := a.openCache(); err != nil {
			a.logger.Warn("trip cache disabled", slog.String("error", err.Error()))
		}
	}
	return a, nil
}

func (a *app) openCache() error {
	dbCfg := mbadger.DefaultConfig(a.cfg.Cache.Dir)
	dbCfg.Logger = a.logger
	db, err := mbadger.Open(dbCfg)
	if err != nil {
		return err
	}
	c, err := cache.New(db, a.cfg.Cache.TTL, a.logger)
	if err != nil {
		_ = db.Close()
		return err
	}
	a.db = db
	a.cache = c
	return nil
}

// Close flushes telemetry and closes the cache and log file.
func (a *app) Close() {
	if a.cache != nil {
		st := a.cache.Stats()
		a.logger.Debug("trip cache", slog.Int64("hits", st.Hits), slog.Int64("misses", st.Misses))
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close cache", slog.String("error", err.Error()))
		}
	}
	if a.shutdownTelemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.shutdownTelemetry(ctx); err != nil {
			a.logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
		cancel()
	}
	_ = a.log.Close()
}

// loadTrips reads one trip file through the cache when it is open.
func (a *app) loadTrips(ctx context.Context, path string) ([]records.TripRecord, records.NormalizeStats, error) {
	if a.cache == nil {
		return ingest.LoadTrips(ctx, path, a.cfg.Window)
	}
	trips, stats, _, err := a.cache.LoadTrips(ctx, path, a.cfg.Window, ingest.LoadTrips)
	return trips, stats, err
}

// loadInputs reads the zone table, the trips of periods, and, when
// withEpi is set, the epidemiological series.
//
// Trip files are parsed concurrently. A period's files are concatenated
// in configured order.
func (a *app) loadInputs(ctx context.Context, periods []config.PeriodConfig, withEpi bool) (pipeline.Inputs, error) {
	var in pipeline.Inputs

	table, err := ingest.LoadZones(ctx, a.cfg.Zones)
	if err != nil {
		return in, err
	}
	in.Zones = table

	type fileResult struct {
		trips []records.TripRecord
		stats records.NormalizeStats
	}
	results := make([][]fileResult, len(periods))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(fileConcurrency)
	for i, p := range periods {
		results[i] = make([]fileResult, len(p.Trips))
		for j, path := range p.Trips {
			eg.Go(func() error {
				trips, stats, err := a.loadTrips(egCtx, path)
				if err != nil {
					return fmt.Errorf("period %s: %w", p.Name, err)
				}
				results[i][j] = fileResult{trips: trips, stats: stats}
				return nil
			})
		}
	}
	if withEpi {
		eg.Go(func() error {
			epi, _, err := ingest.LoadEpi(egCtx, a.cfg.Epi.Path, a.cfg.Window, a.cfg.Epi.Columns)
			if err != nil {
				return err
			}
			in.Epi = epi
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return in, err
	}

	in.Periods = make([]pipeline.PeriodInput, len(periods))
	for i, p := range periods {
		pin := pipeline.PeriodInput{Name: p.Name}
		for _, r := range results[i] {
			pin.Trips = append(pin.Trips, r.trips...)
			pin.Normalize.Merge(r.stats)
		}
		in.Periods[i] = pin
	}
	return in, nil
}

// selectPeriod returns the configured period called name.
func (a *app) selectPeriod(name string) (config.PeriodConfig, error) {
	for _, p := range a.cfg.Periods {
		if p.Name == name {
			return p, nil
		}
	}
	return config.PeriodConfig{}, fmt.Errorf("%w: %q (configured: %v)", pipeline.ErrUnknownPeriod, name, a.cfg.PeriodNames())
}

// inputFiles lists every file the full analysis reads.
func (a *app) inputFiles() []string {
	files := []string{a.cfg.Zones, a.cfg.Epi.Path}
	for _, p := range a.cfg.Periods {
		files = append(files, p.Trips...)
	}
	return files
}

// isCancel reports whether err came from an interrupted context.
func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
