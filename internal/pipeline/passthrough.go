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
	"sync"

	"github.com/google/uuid"

	"github.com/twinleaf/trendline/internal/contracts"
)

// PassthroughStage republishes a single column's raw points, bounded to a
// rolling time window, with no transformation applied.
type PassthroughStage struct {
	id           contracts.PipelineId
	sourceKey    contracts.DataColumnId
	windowSeconds float64

	mu       sync.Mutex
	buf      pointRing
	capacity int
}

// NewPassthroughStage constructs a passthrough stage over sourceKey
// retaining roughly windowSeconds worth of samples once hydrated.
func NewPassthroughStage(sourceKey contracts.DataColumnId, windowSeconds float64) *PassthroughStage {
	return &PassthroughStage{
		id:            contracts.PipelineId(uuid.NewString()),
		sourceKey:     sourceKey,
		windowSeconds: windowSeconds,
	}
}

func (s *PassthroughStage) ID() contracts.PipelineId { return s.id }

func (s *PassthroughStage) GetOutput() contracts.PlotData {
	s.mu.Lock()
	defer s.mu.Unlock()
	points := s.buf.ordered()
	if len(points) == 0 {
		return contracts.EmptyPlotData()
	}
	ts := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		ts[i] = p.T
		ys[i] = p.Y
	}
	return contracts.PlotData{Timestamps: ts, SeriesData: [][]float64{ys}}
}

func (s *PassthroughStage) ProcessBatch(batch contracts.BatchedData) {
	if batch.Key != s.sourceKey {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capacity > 0 {
		s.buf.setCapacity(s.capacity)
	}
	for _, p := range batch.Points {
		s.buf.append(p)
	}
}

func (s *PassthroughStage) ProcessDerivedBatch(DerivedBatch) {}

func (s *PassthroughStage) ProcessCommand(cmd Command, capture CaptureQuerier) {
	if cmd.Kind != CommandHydrate {
		return
	}
	if sr, ok := capture.GetEffectiveSamplingRate(s.sourceKey.StreamKey()); ok {
		cap := int(sr*s.windowSeconds + 0.999999)
		if cap < 2 {
			cap = 2
		}
		s.mu.Lock()
		s.capacity = cap
		s.buf.setCapacity(cap)
		s.mu.Unlock()
	}

	latest, ok := capture.GetLatestUnifiedTimestamp([]contracts.DataColumnId{s.sourceKey})
	if !ok {
		return
	}
	start := latest - s.windowSeconds
	data := capture.GetDataAcrossSessionsForKeys([]contracts.DataColumnId{s.sourceKey}, start, latest)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.replaceAll(data[s.sourceKey])
}
