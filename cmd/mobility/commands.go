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
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianMobility/cmd/mobility/config"
	"github.com/AleutianAI/AleutianMobility/pkg/ux"
	"github.com/AleutianAI/AleutianMobility/pkg/validation"
	"github.com/AleutianAI/AleutianMobility/services/mobility/api"
	"github.com/AleutianAI/AleutianMobility/services/mobility/export"
	"github.com/AleutianAI/AleutianMobility/services/mobility/pipeline"
	"github.com/AleutianAI/AleutianMobility/services/mobility/telemetry"
	"github.com/AleutianAI/AleutianMobility/services/mobility/watch"
)

// analyze loads every period and runs the full pipeline.
func (a *app) analyze(ctx context.Context) (*pipeline.Result, error) {
	in, err := a.loadInputs(ctx, a.cfg.Periods, true)
	if err != nil {
		return nil, fmt.Errorf("load inputs: %w", err)
	}
	res, err := pipeline.New(a.cfg.PipelineConfig(), a.logger).Run(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}
	return res, nil
}

// exportResult writes the merged table and, when configured, the JSON
// run report.
func (a *app) exportResult(ctx context.Context, res *pipeline.Result) error {
	opts := export.Options{CredentialsFile: a.cfg.Output.CredentialsFile}
	if err := export.WriteMerged(ctx, a.cfg.Output.Merged, opts, res.Merged); err != nil {
		return err
	}
	if a.cfg.Output.Report != "" {
		if err := export.WriteJSON(ctx, a.cfg.Output.Report, opts, res); err != nil {
			return err
		}
	}
	return nil
}

func runAnalysis(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.analyze(ctx)
	if err != nil {
		if isCancel(err) {
			a.logger.Warn("run interrupted")
		}
		return err
	}
	if err := a.exportResult(ctx, res); err != nil {
		return err
	}

	out := ux.NewPrinter(cmd.OutOrStdout())
	out.RunReport(res, a.cfg.Epi.Columns.Names())
	out.Section("Output")
	out.Success("merged table written to " + a.cfg.Output.Merged)
	if a.cfg.Output.Report != "" {
		out.Success("run report written to " + a.cfg.Output.Report)
	}
	return nil
}

func runGraph(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	name, err := validation.SanitizePeriodName(periodName)
	if err != nil {
		return err
	}
	selected, err := a.selectPeriod(name)
	if err != nil {
		return err
	}
	in, err := a.loadInputs(ctx, []config.PeriodConfig{selected}, false)
	if err != nil {
		return fmt.Errorf("load inputs: %w", err)
	}
	period, err := in.Period(name)
	if err != nil {
		return err
	}

	pc := pipeline.New(a.cfg.PipelineConfig(), a.logger).AnalyzePeriod(ctx, in.Zones, period)
	if graphJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(pc); err != nil {
			return err
		}
	} else {
		ux.NewPrinter(cmd.OutOrStdout()).PeriodReport(pc)
	}
	if pc.Err != nil {
		return fmt.Errorf("period %s: %w", pc.Name, pc.Err)
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.logger.Enabled(ctx, slog.LevelDebug) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	res, err := a.analyze(ctx)
	if err != nil {
		return err
	}
	if err := a.exportResult(ctx, res); err != nil {
		return err
	}

	store := api.NewResultStore()
	store.Publish(res)

	serverCfg := a.cfg.Server
	if serveAddr != "" {
		serverCfg.Addr = serveAddr
	}
	router := api.NewRouter(serverCfg, api.NewHandlers(store), telemetry.MetricsHandler())

	if serveWatch {
		w, err := a.watchInputs(ctx, store)
		if err != nil {
			return err
		}
		defer w.Stop()
	}

	out := ux.NewPrinter(cmd.OutOrStdout())
	out.Box("Aleutian Mobility API", fmt.Sprintf("run %s\nlistening on %s\nGET /v1/mobility/periods", res.RunID, serverCfg.Addr))
	return api.Serve(ctx, serverCfg, router)
}

// watchInputs re-runs the analysis whenever an input file changes and
// publishes the new result. A failed re-run keeps the previous result.
func (a *app) watchInputs(ctx context.Context, store *api.ResultStore) (*watch.Watcher, error) {
	w, err := watch.New(a.inputFiles(), func(changes []watch.Change) {
		for _, c := range changes {
			a.logger.Info("input changed", slog.String("path", c.Path), slog.String("op", c.Op.String()))
		}
		res, err := a.analyze(ctx)
		if err != nil {
			a.logger.Error("re-run failed, keeping previous result", slog.String("error", err.Error()))
			return
		}
		if err := a.exportResult(ctx, res); err != nil {
			a.logger.Warn("export after re-run", slog.String("error", err.Error()))
		}
		store.Publish(res)
		a.logger.Info("result republished", slog.String("run_id", res.RunID.String()))
	}, watch.Options{Logger: a.logger})
	if err != nil {
		return nil, fmt.Errorf("watch inputs: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return nil, fmt.Errorf("watch inputs: %w", err)
	}
	return w, nil
}

func runCachePurge(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := ux.NewPrinter(cmd.OutOrStdout())
	if a.cache == nil {
		out.Warning("trip cache is disabled")
		return nil
	}
	if err := a.cache.Purge(); err != nil {
		return fmt.Errorf("purge cache: %w", err)
	}
	out.Success("trip cache purged: " + a.cfg.Cache.Dir)
	return nil
}
