// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads mobility.yaml for the mobility command.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath returns ~/.aleutian/mobility.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".aleutian", "mobility.yaml"), nil
}

// Load reads, resolves, and validates the config at path.
//
// Description:
//
//	An empty path selects DefaultPath. When the file does not exist a
//	default config is written there first and a notice goes to notice.
//	Sections missing from the file keep their DefaultConfig values.
//	Relative data and output paths are resolved against the directory of
//	the config file; gs:// destinations are left alone.
//
// Inputs:
//
//	path - Config file path, or "".
//	notice - Destination of the first-run message. May be nil.
//
// Outputs:
//
//	*MobilityConfig - The validated config.
//	error - Read, parse, or validation failure.
func Load(path string, notice io.Writer) (*MobilityConfig, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if notice != nil {
			fmt.Fprintf(notice, " First run detected, creating the config at %s\n", path)
		}
		if err := createDefault(path); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg.resolvePaths(filepath.Dir(abs))
	return cfg, nil
}

// Parse decodes YAML over DefaultConfig and validates the result.
func Parse(data []byte) (*MobilityConfig, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse the config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *MobilityConfig) resolvePaths(base string) {
	c.Zones = resolve(base, c.Zones)
	c.Epi.Path = resolve(base, c.Epi.Path)
	for i := range c.Periods {
		for j := range c.Periods[i].Trips {
			c.Periods[i].Trips[j] = resolve(base, c.Periods[i].Trips[j])
		}
	}
	c.Output.Merged = resolve(base, c.Output.Merged)
	c.Output.Report = resolve(base, c.Output.Report)
	c.Output.CredentialsFile = resolve(base, c.Output.CredentialsFile)
	c.Cache.Dir = resolve(base, c.Cache.Dir)
	c.Logging.Dir = resolve(base, c.Logging.Dir)
}

func resolve(base, p string) string {
	switch {
	case p == "", strings.HasPrefix(p, "gs://"), filepath.IsAbs(p):
		return p
	case strings.HasPrefix(p, "~"):
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[1:])
		}
		return p
	default:
		return filepath.Join(base, p)
	}
}
