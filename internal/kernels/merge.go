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

package kernels

import (
	"math"
	"sort"

	"github.com/twinleaf/trendline/internal/contracts"
)

// KWayMergePlotData merges several single- or multi-series PlotData
// values, each carrying its own (possibly sparse, possibly differently
// sampled) timestamp axis, onto one unified sorted timestamp axis. Every
// output series carries NaN wherever its source had no sample at that
// timestamp. Ties across inputs at the same timestamp are broken by
// input order (an earlier input's series occupies earlier output rows),
// so repeated merges of the same inputs are stable.
func KWayMergePlotData(inputs []contracts.PlotData) contracts.PlotData {
	unionTimes := make([]float64, 0)
	seen := make(map[float64]struct{})
	for _, in := range inputs {
		for _, t := range in.Timestamps {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				unionTimes = append(unionTimes, t)
			}
		}
	}
	sort.Float64s(unionTimes)

	if len(unionTimes) == 0 {
		return contracts.EmptyPlotData()
	}

	totalSeries := 0
	for _, in := range inputs {
		totalSeries += len(in.SeriesData)
	}
	out := contracts.PlotData{
		Timestamps: unionTimes,
		SeriesData: make([][]float64, totalSeries),
	}
	for i := range out.SeriesData {
		row := make([]float64, len(unionTimes))
		for j := range row {
			row[j] = math.NaN()
		}
		out.SeriesData[i] = row
	}

	seriesOffset := 0
	for _, in := range inputs {
		pos := make(map[float64]int, len(in.Timestamps))
		for i, t := range in.Timestamps {
			pos[t] = i
		}
		for outIdx, t := range unionTimes {
			srcIdx, ok := pos[t]
			if !ok {
				continue
			}
			for s := range in.SeriesData {
				out.SeriesData[seriesOffset+s][outIdx] = in.SeriesData[s][srcIdx]
			}
		}
		seriesOffset += len(in.SeriesData)
	}
	return out
}
