// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianMobility/services/mobility/aggregate"
	"github.com/AleutianAI/AleutianMobility/services/mobility/pipeline"
	"github.com/AleutianAI/AleutianMobility/services/mobility/stats"
)

// histogramWidth is the widest bar in a degree histogram.
const histogramWidth = 40

// PeriodReport prints one period's statistics, degree histogram, and
// centrality ranking.
func (p *Printer) PeriodReport(pc *pipeline.PeriodContext) {
	p.Section("Period " + pc.Name)
	if pc.Error != "" {
		p.Error(pc.Error)
		return
	}

	p.KeyValue("trips", strconv.Itoa(pc.Trips))
	p.KeyValue("discarded rows", fmt.Sprintf("%d (%d missing, %d outside window)",
		pc.Normalize.Discarded(), pc.Normalize.Missing, pc.Normalize.OutsideWindow))
	p.KeyValue("unresolved ids", strconv.Itoa(pc.Resolve.UnresolvedEndpoints))
	p.KeyValue("long trips", strconv.Itoa(pc.Build.TripsConsidered-pc.Build.BelowThreshold))
	p.KeyValue("elapsed", pc.Elapsed.Round(time.Millisecond).String())

	r := pc.Report
	if r == nil {
		return
	}
	p.KeyValue("nodes", strconv.Itoa(r.Nodes))
	p.KeyValue("edges", strconv.Itoa(r.Edges))
	p.KeyValue("density", p.render(Styles.Highlight, strconv.FormatFloat(r.Density, 'f', 6, 64)))
	if r.Degenerate {
		p.Warning("graph has no nodes; metrics are empty")
		return
	}

	p.printf("\n  %s\n", p.render(Styles.Bold, fmt.Sprintf("%s-degree histogram", r.DegreeMode)))
	p.histogram(r.DegreeHistogram)

	p.printf("\n  %s\n", p.render(Styles.Bold, "betweenness centrality"))
	for _, z := range r.Top {
		p.printf("  %2d. %-32s %.6f\n", z.Rank, z.Zone, z.Score)
	}
}

// histogram prints the non-empty degree buckets, one per line.
func (p *Printer) histogram(h []int) {
	peak := 0
	for _, n := range h {
		if n > peak {
			peak = n
		}
	}
	if peak == 0 {
		p.Info(p.render(Styles.Muted, "(empty)"))
		return
	}
	for degree, n := range h {
		if n == 0 {
			continue
		}
		p.printf("  %4d │ %-*s %d\n", degree, histogramWidth, p.Bar(float64(n), float64(peak), histogramWidth), n)
	}
}

// Comparisons prints one line per threshold test.
func (p *Printer) Comparisons(results []stats.ComparisonResult) {
	p.Section("Threshold comparisons")
	if len(results) == 0 {
		p.Info(p.render(Styles.Muted, "(none configured)"))
		return
	}
	for i := range results {
		r := &results[i]
		c := r.Comparison
		label := fmt.Sprintf("%s: %s split at %s=%g", c.Name, c.Metric, c.Partition, c.Threshold)
		switch {
		case r.Error != "":
			p.Warning(fmt.Sprintf("%s: %s", label, r.Error))
		case r.Significant():
			p.Success(fmt.Sprintf("%s: significant (p=%s, d=%.3f)", label, formatP(r), r.EffectSize))
		default:
			p.Info(fmt.Sprintf("%s %s: not significant (p=%s)", p.icon(IconBullet), label, formatP(r)))
		}
		if r.Error == "" {
			p.Info(p.render(Styles.Muted, fmt.Sprintf("    above n=%d mean=%.3f  below n=%d mean=%.3f",
				r.Above.Size, r.Above.Mean, r.Below.Size, r.Below.Mean)))
		}
	}
}

func formatP(r *stats.ComparisonResult) string {
	p := strconv.FormatFloat(r.Test.PValue, 'g', 4, 64)
	if r.Corrected {
		p += ", adjusted " + strconv.FormatFloat(r.AdjustedPValue, 'g', 4, 64)
	}
	return p
}

// Correlations prints the coefficient of every mobility column against
// every epidemiological column in epi.
func (p *Printer) Correlations(m *stats.CorrelationMatrix, epi []string) {
	p.Section("Correlations")
	if m == nil {
		p.Info(p.render(Styles.Muted, "(unavailable)"))
		return
	}
	isEpi := make(map[string]bool, len(epi))
	for _, e := range epi {
		isEpi[e] = true
	}

	var b strings.Builder
	fmt.Fprintf(&b, "  %-24s", "")
	for _, e := range epi {
		fmt.Fprintf(&b, " %22s", e)
	}
	p.printf("%s\n", p.render(Styles.Bold, b.String()))
	for _, col := range m.Columns {
		if isEpi[col] {
			continue
		}
		b.Reset()
		fmt.Fprintf(&b, "  %-24s", col)
		for _, e := range epi {
			v, ok := m.At(col, e)
			if !ok {
				fmt.Fprintf(&b, " %22s", "-")
				continue
			}
			fmt.Fprintf(&b, " %22.3f", v)
		}
		p.printf("%s\n", b.String())
	}
}

// MergedSummary prints the row count and date range of the merged table.
func (p *Printer) MergedSummary(m *aggregate.MergedTable) {
	p.Section("Merged daily table")
	if m == nil || len(m.Rows) == 0 {
		p.Warning("no dates in common with the epidemiological series")
		return
	}
	first := m.Rows[0].Date.Format(aggregate.DateLayout)
	last := m.Rows[len(m.Rows)-1].Date.Format(aggregate.DateLayout)
	p.KeyValue("rows", strconv.Itoa(len(m.Rows)))
	p.KeyValue("dates", first+" .. "+last)
	p.KeyValue("columns", strings.Join(m.Columns, ", "))
}

// RunReport prints a complete run: every period, the merged table,
// comparisons, and correlations against the epi columns.
func (p *Printer) RunReport(res *pipeline.Result, epi []string) {
	p.Title(fmt.Sprintf("Mobility run %s", res.RunID))
	p.KeyValue("started", res.StartedAt.Format(time.RFC3339))
	p.KeyValue("duration", res.Duration.Round(time.Millisecond).String())

	for _, pc := range res.Periods {
		p.PeriodReport(pc)
	}
	p.MergedSummary(res.Merged)
	p.Comparisons(res.Comparisons)
	if res.Correlations == nil && res.CorrelationError != "" {
		p.Section("Correlations")
		p.Warning(res.CorrelationError)
		return
	}
	p.Correlations(res.Correlations, epi)
}
