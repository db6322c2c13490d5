// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command mobility builds taxi mobility graphs per period and compares
// daily mobility with an epidemiological series.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string
	noCache    bool
	periodName string
	graphJSON  bool
	serveAddr  string
	serveWatch bool

	rootCmd = &cobra.Command{
		Use:   "mobility",
		Short: "Taxi mobility graphs and epidemiological comparisons",
		Long: `mobility ingests monthly taxi trip files, builds one directed zone graph
per period, computes density, degree distribution, and betweenness
centrality, and tests daily mobility against case and death counts.`,
		SilenceUsage: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Analyze every configured period and write the merged daily table",
		Args:  cobra.NoArgs,
		RunE:  runAnalysis,
	}

	graphCmd = &cobra.Command{
		Use:   "graph",
		Short: "Build and report the graph of a single period",
		Args:  cobra.NoArgs,
		RunE:  runGraph,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the analysis once and serve the results over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Manage the parsed trip cache",
	}

	cachePurgeCmd = &cobra.Command{
		Use:   "purge",
		Short: "Remove every cached trip file",
		Args:  cobra.NoArgs,
		RunE:  runCachePurge,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.aleutian/mobility.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false, "read trip files directly, bypassing the cache")

	graphCmd.Flags().StringVarP(&periodName, "period", "p", "", "period to analyze")
	_ = graphCmd.MarkFlagRequired("period")
	graphCmd.Flags().BoolVar(&graphJSON, "json", false, "print the period context as JSON")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "override server.addr")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "re-run the analysis when an input file changes")

	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(runCmd, graphCmd, serveCmd, cacheCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
