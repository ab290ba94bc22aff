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

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/twinleaf/trendline/internal/contracts"
)

func TestFPCSStageIgnoresStaleBatches(t *testing.T) {
	key := contracts.DataColumnId{PortURL: "p", StreamID: "s", ColumnIndex: 0}
	s := NewFPCSStage(key, 3, 10)

	s.ProcessBatch(contracts.BatchedData{Key: key, Points: []contracts.Point{{T: 1, Y: 1}, {T: 2, Y: 2}}, TMax: 2})
	first := s.GetOutput()
	require.False(t, first.IsEmpty())

	s.ProcessBatch(contracts.BatchedData{Key: key, Points: []contracts.Point{{T: 0.5, Y: 99}}, TMax: 1})
	second := s.GetOutput()
	require.Equal(t, first.Timestamps, second.Timestamps)
}

func TestFPCSStageIgnoresOtherColumns(t *testing.T) {
	key := contracts.DataColumnId{PortURL: "p", StreamID: "s", ColumnIndex: 0}
	other := contracts.DataColumnId{PortURL: "p", StreamID: "s", ColumnIndex: 1}
	s := NewFPCSStage(key, 3, 10)

	s.ProcessBatch(contracts.BatchedData{Key: other, Points: []contracts.Point{{T: 1, Y: 1}}, TMax: 1})
	require.True(t, s.GetOutput().IsEmpty())
}

type fakeCaptureQuerier struct {
	samplingRate float64
	haveRate     bool
	latest       float64
	haveLatest   bool
	data         map[contracts.DataColumnId][]contracts.Point
}

func (f *fakeCaptureQuerier) GetEffectiveSamplingRate(contracts.StreamKey) (float64, bool) {
	return f.samplingRate, f.haveRate
}

func (f *fakeCaptureQuerier) GetLatestUnifiedTimestamp([]contracts.DataColumnId) (float64, bool) {
	return f.latest, f.haveLatest
}

func (f *fakeCaptureQuerier) GetDataAcrossSessionsForKeys(keys []contracts.DataColumnId, tMin, tMax float64) map[contracts.DataColumnId][]contracts.Point {
	return f.data
}

func TestFPCSStageHydrateBackfillsAndSetsCapacity(t *testing.T) {
	key := contracts.DataColumnId{PortURL: "p", StreamID: "s", ColumnIndex: 0}
	s := NewFPCSStage(key, 2, 5)

	points := make([]contracts.Point, 0, 200)
	for i := 0; i < 200; i++ {
		points = append(points, contracts.Point{T: float64(i) * 0.01, Y: float64(i % 7)})
	}
	fake := &fakeCaptureQuerier{
		samplingRate: 100,
		haveRate:     true,
		latest:       1.99,
		haveLatest:   true,
		data:         map[contracts.DataColumnId][]contracts.Point{key: points},
	}

	s.ProcessCommand(Command{Kind: CommandHydrate}, fake)

	require.Greater(t, s.capacity, 0)
	out := s.GetOutput()
	require.False(t, out.IsEmpty())
	require.LessOrEqual(t, len(out.Timestamps), s.capacity)
}

func TestFPCSStageHydrateNoopWithoutLatestTimestamp(t *testing.T) {
	key := contracts.DataColumnId{PortURL: "p", StreamID: "s", ColumnIndex: 0}
	s := NewFPCSStage(key, 2, 5)
	fake := &fakeCaptureQuerier{}

	s.ProcessCommand(Command{Kind: CommandHydrate}, fake)
	require.True(t, s.GetOutput().IsEmpty())
}
