// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package aggregate

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// WriteCSV encodes m as comma-separated text.
//
// The first line is the header: DateColumn followed by m.Columns. Each
// following line is one row with the date as YYYY-MM-DD and values in
// shortest round-trip form.
func WriteCSV(w io.Writer, m *MergedTable) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(m.Columns)+1)
	header = append(header, DateColumn)
	header = append(header, m.Columns...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(header))
	for _, row := range m.Rows {
		record[0] = row.Date.Format(DateLayout)
		for i, v := range row.Values {
			record[i+1] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %s: %w", record[0], err)
		}
	}

	cw.Flush()
	return cw.Error()
}
