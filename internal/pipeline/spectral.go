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

// SpectralStage is a derived stage with no root input of its own: it
// consumes the detrended PlotData a DetrendStage forwards it and turns it
// into a one-sided amplitude spectral density via Welch's method.
type SpectralStage struct {
	id contracts.PipelineId

	mu     sync.Mutex
	output contracts.PlotData
}

// NewSpectralStage constructs a spectral stage with empty initial output.
func NewSpectralStage() *SpectralStage {
	return &SpectralStage{
		id:     contracts.PipelineId(uuid.NewString()),
		output: contracts.EmptyPlotData(),
	}
}

func (s *SpectralStage) ID() contracts.PipelineId { return s.id }

func (s *SpectralStage) GetOutput() contracts.PlotData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output
}

func (s *SpectralStage) ProcessBatch(contracts.BatchedData) {}

func (s *SpectralStage) ProcessDerivedBatch(batch DerivedBatch) {
	if len(batch.Data.SeriesData) == 0 {
		return
	}
	y := batch.Data.SeriesData[0]

	if len(y) < kernels.MinWelchSamples || batch.SampleRate <= 0 {
		s.mu.Lock()
		s.output = contracts.EmptyPlotData()
		s.mu.Unlock()
		return
	}

	freqs, asd, ok := kernels.Welch(y, batch.SampleRate)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ok {
		s.output = contracts.EmptyPlotData()
		return
	}
	s.output = contracts.PlotData{Timestamps: freqs, SeriesData: [][]float64{asd}}
}

func (s *SpectralStage) ProcessCommand(cmd Command, capture CaptureQuerier) {
	if cmd.Kind != CommandResetSelf {
		return
	}
	s.mu.Lock()
	s.output = contracts.EmptyPlotData()
	s.mu.Unlock()
}
