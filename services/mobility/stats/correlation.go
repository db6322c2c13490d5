// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stats

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/AleutianMobility/services/mobility/aggregate"
)

// CorrelationMatrix holds pairwise Pearson coefficients of the merged
// table's columns. Values[i][j] is the correlation of Columns[i] and
// Columns[j]; the matrix is symmetric with a unit diagonal.
type CorrelationMatrix struct {
	Columns []string    `json:"columns"`
	Values  [][]float64 `json:"values"`
}

// At returns the coefficient for two named columns.
func (m *CorrelationMatrix) At(a, b string) (float64, bool) {
	i, j := -1, -1
	for k, c := range m.Columns {
		if c == a {
			i = k
		}
		if c == b {
			j = k
		}
	}
	if i < 0 || j < 0 {
		return 0, false
	}
	return m.Values[i][j], true
}

// Correlate computes the Pearson correlation matrix of every column.
//
// A pair involving a zero-variance column has coefficient 0 off the
// diagonal. Requires at least two rows.
func Correlate(table *aggregate.MergedTable) (*CorrelationMatrix, error) {
	if len(table.Rows) < MinSamples {
		return nil, fmt.Errorf("correlate %d rows: %w", len(table.Rows), ErrInsufficientSample)
	}

	k := len(table.Columns)
	cols := make([][]float64, k)
	constant := make([]bool, k)
	for i, name := range table.Columns {
		col, err := table.Column(name)
		if err != nil {
			return nil, err
		}
		cols[i] = col
		constant[i] = stat.Variance(col, nil) == 0
	}

	m := &CorrelationMatrix{
		Columns: append([]string(nil), table.Columns...),
		Values:  make([][]float64, k),
	}
	for i := range m.Values {
		m.Values[i] = make([]float64, k)
		m.Values[i][i] = 1
	}
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			var r float64
			if !constant[i] && !constant[j] {
				r = stat.Correlation(cols[i], cols[j], nil)
			}
			m.Values[i][j] = r
			m.Values[j][i] = r
		}
	}
	return m, nil
}
