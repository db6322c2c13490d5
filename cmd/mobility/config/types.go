// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianMobility/pkg/logging"
	"github.com/AleutianAI/AleutianMobility/pkg/validation"
	"github.com/AleutianAI/AleutianMobility/services/mobility/api"
	"github.com/AleutianAI/AleutianMobility/services/mobility/graph"
	"github.com/AleutianAI/AleutianMobility/services/mobility/pipeline"
	"github.com/AleutianAI/AleutianMobility/services/mobility/records"
	"github.com/AleutianAI/AleutianMobility/services/mobility/stats"
	"github.com/AleutianAI/AleutianMobility/services/mobility/telemetry"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// MobilityConfig is the top-level structure of mobility.yaml.
type MobilityConfig struct {
	// Window bounds every trip and epi record; [start, end).
	Window records.Window `yaml:"window"`

	// Zones is the path of the zone lookup CSV.
	Zones string `yaml:"zones" validate:"required"`

	Periods     []PeriodConfig     `yaml:"periods" validate:"required,min=1,unique=Name,dive"`
	Epi         EpiConfig          `yaml:"epi"`
	Aggregate   AggregateConfig    `yaml:"aggregate"`
	Graph       GraphConfig        `yaml:"graph"`
	Comparisons []stats.Comparison `yaml:"comparisons" validate:"dive"`
	Stats       StatsConfig        `yaml:"stats"`
	Output      OutputConfig       `yaml:"output"`
	Cache       CacheConfig        `yaml:"cache"`
	Telemetry   telemetry.Config   `yaml:"telemetry"`
	Server      api.ServerConfig   `yaml:"server"`
	Logging     LoggingConfig      `yaml:"logging"`
}

// PeriodConfig names one period and the trip files it is built from.
type PeriodConfig struct {
	Name  string   `yaml:"name" validate:"required"`
	Trips []string `yaml:"trips" validate:"required,min=1,dive,required"`
}

type EpiConfig struct {
	Path    string             `yaml:"path" validate:"required"`
	Columns records.EpiColumns `yaml:"columns"`
}

type AggregateConfig struct {
	// Columns are the trip columns summed per day, in output order.
	Columns []string `yaml:"columns" validate:"required,min=1,unique"`
}

type GraphConfig struct {
	MinDistance       float64 `yaml:"min_distance" validate:"gte=0"`
	DegreeMode        string  `yaml:"degree_mode" validate:"oneof=out in total"`
	TopN              int     `yaml:"top_n" validate:"gte=1"`
	Workers           int     `yaml:"workers" validate:"gte=0"`
	PeriodConcurrency int     `yaml:"period_concurrency" validate:"gte=0"`
}

type StatsConfig struct {
	Alpha      float64 `yaml:"alpha" validate:"gt=0,lt=1"`
	Bonferroni bool    `yaml:"bonferroni"`
}

// OutputConfig holds export destinations. A destination is a local path or
// gs://bucket/object.
type OutputConfig struct {
	Merged          string `yaml:"merged" validate:"required"`
	Report          string `yaml:"report"`
	CredentialsFile string `yaml:"credentials_file"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Dir     string        `yaml:"dir" validate:"required_if=Enabled true"`
	TTL     time.Duration `yaml:"ttl" validate:"gte=0"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the March through June 2020 study over the NYC
// yellow-taxi files in ./data.
func DefaultConfig() MobilityConfig {
	period := func(name, month string) PeriodConfig {
		return PeriodConfig{Name: name, Trips: []string{fmt.Sprintf("data/yellow_tripdata_2020-%s.csv", month)}}
	}
	return MobilityConfig{
		Window: records.Window{
			Start: time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC),
		},
		Zones: "data/taxi_zone_lookup.csv",
		Periods: []PeriodConfig{
			period("march", "03"),
			period("april", "04"),
			period("may", "05"),
			period("june", "06"),
		},
		Epi: EpiConfig{
			Path:    "data/data-by-day.csv",
			Columns: records.DefaultEpiColumns(),
		},
		Aggregate: AggregateConfig{Columns: append([]string(nil), records.DefaultAggregateColumns...)},
		Graph: GraphConfig{
			MinDistance: graph.DefaultMinDistance,
			DegreeMode:  string(graph.DegreeOut),
			TopN:        graph.DefaultTopN,
		},
		Comparisons: stats.DefaultComparisons(),
		Stats:       StatsConfig{Alpha: stats.DefaultAlpha},
		Output:      OutputConfig{Merged: "out/merged.csv"},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     "~/.aleutian/mobility/cache",
			TTL:     7 * 24 * time.Hour,
		},
		Telemetry: telemetry.DefaultConfig(),
		Server:    api.DefaultServerConfig(),
		Logging:   LoggingConfig{Level: "info"},
	}
}

// Validate checks struct tags, the window, and the aggregate columns.
func (c *MobilityConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := validation.ValidatePeriodNames(c.PeriodNames()); err != nil {
		return fmt.Errorf("invalid config: periods: %w", err)
	}
	if err := c.Window.Validate(); err != nil {
		return fmt.Errorf("invalid config: window: %w", err)
	}
	if err := records.ValidateColumns(c.Aggregate.Columns); err != nil {
		return fmt.Errorf("invalid config: aggregate: %w", err)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid config: logging: %w", err)
	}
	return nil
}

// PipelineConfig converts the analysis sections into a pipeline.Config.
func (c *MobilityConfig) PipelineConfig() pipeline.Config {
	comps := make([]stats.Comparison, len(c.Comparisons))
	copy(comps, c.Comparisons)
	return pipeline.Config{
		Build: graph.BuildOptions{MinDistance: c.Graph.MinDistance},
		Analyze: graph.AnalyzeOptions{
			DegreeMode: graph.DegreeMode(c.Graph.DegreeMode),
			TopN:       c.Graph.TopN,
			Workers:    c.Graph.Workers,
		},
		AggregateColumns:  append([]string(nil), c.Aggregate.Columns...),
		EpiColumns:        c.Epi.Columns,
		Comparisons:       comps,
		Alpha:             c.Stats.Alpha,
		Bonferroni:        c.Stats.Bonferroni,
		PeriodConcurrency: c.Graph.PeriodConcurrency,
	}
}

// PeriodNames returns the configured period names in order.
func (c *MobilityConfig) PeriodNames() []string {
	names := make([]string, len(c.Periods))
	for i, p := range c.Periods {
		names[i] = p.Name
	}
	return names
}
