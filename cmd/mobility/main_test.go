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
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianMobility/services/mobility/api"
	"github.com/AleutianAI/AleutianMobility/services/mobility/pipeline"
	"github.com/AleutianAI/AleutianMobility/services/mobility/records"
)

func tripLine(pickup string, pu, do int, distance string) string {
	return strings.Join([]string{
		"1", pickup, pickup, "2", distance, "1", "N",
		strconv.Itoa(pu), strconv.Itoa(do), "1", "10", "0.5", "0.5", "2", "0", "0.3", "13.3", "2.5",
	}, ",")
}

// writeStudy lays out a two-period study in a temp dir and returns the
// config path.
func writeStudy(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}

	header := strings.Join(records.TripColumns, ",")
	write("march.csv", strings.Join([]string{
		header,
		tripLine("2020-03-20 08:00:00", 1, 2, "12"),
		tripLine("2020-03-21 09:00:00", 2, 3, "15"),
		tripLine("2020-03-21 10:00:00", 3, 1, "2"),
	}, "\n")+"\n")
	write("april.csv", strings.Join([]string{
		header,
		tripLine("2020-04-02 08:00:00", 1, 3, "11"),
		tripLine("2020-04-02 09:00:00", 3, 2, "20"),
	}, "\n")+"\n")
	write("zones.csv", "LocationID,Borough,Zone,service_zone\n1,Manhattan,A,Yellow Zone\n2,Manhattan,B,Yellow Zone\n3,Queens,C,Boro Zone\n")
	write("epi.csv", "date_of_interest,MN_CASE_COUNT,MN_HOSPITALIZED_COUNT,MN_DEATH_COUNT\n"+
		"03/20/2020,50,5,1\n03/21/2020,120,9,2\n04/02/2020,400,40,20\n")

	write("mobility.yaml", `
window: {start: 2020-03-01, end: 2020-05-01}
zones: zones.csv
periods:
  - {name: march, trips: [march.csv]}
  - {name: april, trips: [april.csv]}
epi: {path: epi.csv}
output:
  merged: out/merged.csv
  report: out/report.json
cache: {enabled: true, dir: cache}
telemetry: {trace_exporter: none, metric_exporter: none}
logging: {level: error}
`)
	return filepath.Join(dir, "mobility.yaml")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, logLevel, noCache, periodName, graphJSON, serveAddr, serveWatch = "", "", false, "", false, "", false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	cfgPath := writeStudy(t)
	dir := filepath.Dir(cfgPath)

	out, err := execute(t, "run", "--config", cfgPath)
	require.NoError(t, err, out)

	assert.Contains(t, out, "Period march")
	assert.Contains(t, out, "Period april")
	assert.Contains(t, out, "merged table written to "+filepath.Join(dir, "out", "merged.csv"))

	merged, err := os.ReadFile(filepath.Join(dir, "out", "merged.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(merged)), "\n")
	require.Len(t, lines, 4, "header plus three joined dates")
	assert.True(t, strings.HasPrefix(lines[0], "pickupDate,passenger_count,"))
	assert.True(t, strings.HasSuffix(lines[0], ",MN_CASE_COUNT,MN_HOSPITALIZED_COUNT,MN_DEATH_COUNT"))
	assert.True(t, strings.HasPrefix(lines[2], "2020-03-21,4,"), "two trips of two passengers")

	report, err := os.ReadFile(filepath.Join(dir, "out", "report.json"))
	require.NoError(t, err)
	var res pipeline.Result
	require.NoError(t, json.Unmarshal(report, &res))
	require.Len(t, res.Periods, 2)
	assert.Equal(t, 3, res.Periods[0].Report.Nodes)
	assert.Equal(t, 2, res.Periods[0].Report.Edges, "the 2-mile trip is below the distance cut")

	// Second run is served from the trip cache and yields the same table.
	out, err = execute(t, "run", "--config", cfgPath)
	require.NoError(t, err, out)
	again, err := os.ReadFile(filepath.Join(dir, "out", "merged.csv"))
	require.NoError(t, err)
	assert.Equal(t, string(merged), string(again))
	assert.DirExists(t, filepath.Join(dir, "cache"))
}

func TestGraphCommand(t *testing.T) {
	cfgPath := writeStudy(t)

	out, err := execute(t, "graph", "--config", cfgPath, "--no-cache", "--period", "april", "--json")
	require.NoError(t, err, out)

	var pc pipeline.PeriodContext
	require.NoError(t, json.Unmarshal([]byte(out), &pc))
	assert.Equal(t, "april", pc.Name)
	assert.Equal(t, 2, pc.Trips)
	require.NotNil(t, pc.Report)
	assert.Equal(t, 2, pc.Report.Edges)
	assert.Equal(t, "C", pc.Report.Top[0].Zone, "C relays A to B")

	out, err = execute(t, "graph", "--config", cfgPath, "--no-cache", "--period", "March")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Period march")
	assert.Contains(t, out, "betweenness centrality")
}

func TestGraphCommand_UnknownPeriod(t *testing.T) {
	cfgPath := writeStudy(t)

	_, err := execute(t, "graph", "--config", cfgPath, "--no-cache", "--period", "june")
	assert.ErrorIs(t, err, pipeline.ErrUnknownPeriod)
}

func TestCachePurgeCommand(t *testing.T) {
	cfgPath := writeStudy(t)

	_, err := execute(t, "run", "--config", cfgPath)
	require.NoError(t, err)

	out, err := execute(t, "cache", "purge", "--config", cfgPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "trip cache purged")

	out, err = execute(t, "cache", "purge", "--config", cfgPath, "--no-cache")
	require.NoError(t, err, out)
	assert.Contains(t, out, "trip cache is disabled")
}

func TestRunCommand_MissingInput(t *testing.T) {
	cfgPath := writeStudy(t)
	require.NoError(t, os.Remove(filepath.Join(filepath.Dir(cfgPath), "april.csv")))

	_, err := execute(t, "run", "--config", cfgPath, "--no-cache")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "period april")
}

func TestWatchInputs_RepublishesOnChange(t *testing.T) {
	cfgPath := writeStudy(t)
	dir := filepath.Dir(cfgPath)
	configPath, logLevel, noCache = cfgPath, "", false
	t.Cleanup(func() { configPath = "" })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx)
	require.NoError(t, err)
	defer a.Close()

	first, err := a.analyze(ctx)
	require.NoError(t, err)
	store := api.NewResultStore()
	store.Publish(first)

	w, err := a.watchInputs(ctx, store)
	require.NoError(t, err)
	defer w.Stop()

	header := strings.Join(records.TripColumns, ",")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "april.csv"), []byte(strings.Join([]string{
		header,
		tripLine("2020-04-02 08:00:00", 1, 3, "11"),
		tripLine("2020-04-02 09:00:00", 3, 2, "20"),
		tripLine("2020-04-03 09:00:00", 2, 1, "14"),
	}, "\n")+"\n"), 0o644))

	require.Eventually(t, func() bool {
		return store.Current().RunID != first.RunID
	}, 15*time.Second, 50*time.Millisecond)

	april, ok := store.Current().Period("april")
	require.True(t, ok)
	assert.Equal(t, 3, april.Trips)
}
