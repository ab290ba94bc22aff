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
	"github.com/twinleaf/trendline/internal/kernels"
)

// FPCSStage applies streaming Fast Point-Conserving Sampling decimation
// to a single column, retaining roughly 2 points per `ratio` input
// samples in a bounded output ring.
type FPCSStage struct {
	id            contracts.PipelineId
	sourceKey     contracts.DataColumnId
	windowSeconds float64
	ratio         int

	lastProcessedTime float64

	mu       sync.Mutex
	dec      *kernels.FPCS
	output   pointRing
	capacity int
}

// NewFPCSStage constructs an FPCS stage decimating sourceKey by ratio,
// retaining windowSeconds worth of output once hydrated.
func NewFPCSStage(sourceKey contracts.DataColumnId, ratio int, windowSeconds float64) *FPCSStage {
	return &FPCSStage{
		id:            contracts.PipelineId(uuid.NewString()),
		sourceKey:     sourceKey,
		windowSeconds: windowSeconds,
		ratio:         ratio,
		dec:           kernels.NewFPCS(ratio),
	}
}

func (s *FPCSStage) ID() contracts.PipelineId { return s.id }

func (s *FPCSStage) GetOutput() contracts.PlotData {
	s.mu.Lock()
	defer s.mu.Unlock()
	points := s.output.ordered()
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

func (s *FPCSStage) retainLocked(points []contracts.Point) {
	if s.capacity > 0 {
		s.output.setCapacity(s.capacity)
	}
	for _, p := range points {
		s.output.append(p)
	}
}

func (s *FPCSStage) ProcessBatch(batch contracts.BatchedData) {
	if batch.Key != s.sourceKey || batch.TMax <= s.lastProcessedTime {
		return
	}
	retained := s.dec.ProcessBatch(batch.Points)
	s.mu.Lock()
	s.retainLocked(retained)
	s.mu.Unlock()
	s.lastProcessedTime = batch.TMax
}

func (s *FPCSStage) ProcessDerivedBatch(DerivedBatch) {}

func (s *FPCSStage) ProcessCommand(cmd Command, capture CaptureQuerier) {
	if cmd.Kind != CommandHydrate {
		return
	}

	if s.capacity == 0 && s.windowSeconds > 0 {
		if sr, ok := capture.GetEffectiveSamplingRate(s.sourceKey.StreamKey()); ok && sr > 0 && s.ratio > 0 {
			outputRateApprox := (2.0 * sr) / float64(s.ratio)
			cap := int(outputRateApprox*s.windowSeconds + 0.999999)
			if cap < 2 {
				cap = 2
			}
			s.mu.Lock()
			s.capacity = cap
			s.output.setCapacity(cap)
			s.mu.Unlock()
		}
	}

	latest, ok := capture.GetLatestUnifiedTimestamp([]contracts.DataColumnId{s.sourceKey})
	if !ok {
		return
	}
	start := latest - s.windowSeconds
	data := capture.GetDataAcrossSessionsForKeys([]contracts.DataColumnId{s.sourceKey}, start, latest)
	points := data[s.sourceKey]
	if len(points) == 0 {
		return
	}
	retained := s.dec.ProcessBatch(points)
	s.mu.Lock()
	s.retainLocked(retained)
	s.mu.Unlock()
	s.lastProcessedTime = latest
}
