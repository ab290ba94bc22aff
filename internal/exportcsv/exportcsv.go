// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: July 2026
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package exportcsv formats PlotData as CSV for export: a header row
// ("time" plus one column per series), six decimal places on the time
// column, integer formatting for columns whose declared type is one of
// the fixed-width integer kinds, an empty field for NaN, and the device
// route folded into the header only when more than one device is
// represented.
package exportcsv

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/twinleaf/trendline/internal/contracts"
)

// Write formats data as CSV and writes it to w. columns must have the
// same length as data.SeriesData and is positionally aligned with it:
// columns[i] describes the series at data.SeriesData[i]. Returns an
// error if columns is empty or its length disagrees with data.
func Write(w io.Writer, data contracts.PlotData, columns []contracts.ColumnMeta) error {
	if len(columns) == 0 {
		return fmt.Errorf("exportcsv: no columns provided")
	}
	if len(columns) != len(data.SeriesData) {
		return fmt.Errorf("exportcsv: %d columns but %d series", len(columns), len(data.SeriesData))
	}

	cw := csv.NewWriter(w)

	singleDevice := true
	for i := 1; i < len(columns); i++ {
		if columns[i].DeviceRoute != columns[0].DeviceRoute {
			singleDevice = false
			break
		}
	}

	headers := make([]string, 0, len(columns)+1)
	headers = append(headers, "time")
	for _, c := range columns {
		if singleDevice {
			headers = append(headers, c.Name)
		} else {
			headers = append(headers, c.DeviceRoute+"."+c.Name)
		}
	}
	if err := cw.Write(headers); err != nil {
		return err
	}

	record := make([]string, len(headers))
	for row, t := range data.Timestamps {
		record[0] = strconv.FormatFloat(t, 'f', 6, 64)
		for col, series := range data.SeriesData {
			record[col+1] = formatValue(series, row, columns[col].DataType)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ToString is a convenience wrapper returning the formatted CSV as a
// string.
func ToString(data contracts.PlotData, columns []contracts.ColumnMeta) (string, error) {
	var sb strings.Builder
	if err := Write(&sb, data, columns); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func formatValue(series []float64, row int, dataType contracts.ColumnDataType) string {
	if row >= len(series) {
		return ""
	}
	y := series[row]
	if math.IsNaN(y) {
		return ""
	}
	if dataType.IsInteger() {
		return strconv.FormatInt(int64(y), 10)
	}
	return strconv.FormatFloat(y, 'g', -1, 64)
}
