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

// hopTimeSeconds is the fixed hop cadence the detrend stage re-emits at,
// independent of the configured window length.
const hopTimeSeconds = 0.032

// DetrendStage maintains a hop-buffered window of raw samples, applies a
// least-squares detrend fit on each hop, and republishes the result to any
// derived stages (e.g. spectral) subscribed to it via AddSubscriber.
type DetrendStage struct {
	id            contracts.PipelineId
	sourceKey     contracts.DataColumnId
	windowSeconds float64
	method        contracts.DetrendMethod

	mu          sync.Mutex
	output      contracts.PlotData
	subscribers []chan<- DerivedBatch

	buffer           []contracts.Point
	windowSizeSample int
	hopSizeSamples   int
	sinceLastEmit    int
	sampleRate       float64
	haveSampleRate   bool
}

// NewDetrendStage constructs a detrend stage over sourceKey, fitting and
// removing method's trend from the trailing windowSeconds-long window on
// every hop.
func NewDetrendStage(sourceKey contracts.DataColumnId, windowSeconds float64, method contracts.DetrendMethod) *DetrendStage {
	return &DetrendStage{
		id:            contracts.PipelineId(uuid.NewString()),
		sourceKey:     sourceKey,
		windowSeconds: windowSeconds,
		method:        method,
		output:        contracts.EmptyPlotData(),
	}
}

func (s *DetrendStage) ID() contracts.PipelineId { return s.id }

func (s *DetrendStage) GetOutput() contracts.PlotData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output
}

// calculateAndDistributeLocked fits and removes the configured trend from
// block, publishes the result as the stage's output, and forwards it to
// every derived subscriber. Must be called with s.mu held.
func (s *DetrendStage) calculateAndDistributeLocked(block []contracts.Point) {
	if len(block) == 0 {
		return
	}
	y := make([]float64, len(block))
	ts := make([]float64, len(block))
	for i, p := range block {
		y[i] = p.Y
		ts[i] = p.T
	}

	detrended := kernels.Detrend(s.method, y)
	result := contracts.PlotData{Timestamps: ts, SeriesData: [][]float64{detrended}}
	s.output = result

	if !s.haveSampleRate {
		return
	}
	for _, sub := range s.subscribers {
		select {
		case sub <- DerivedBatch{Data: result, SampleRate: s.sampleRate}:
		default:
		}
	}
}

func (s *DetrendStage) ProcessBatch(batch contracts.BatchedData) {
	if batch.Key != s.sourceKey || len(batch.Points) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffer = append(s.buffer, batch.Points...)

	maxBufferLen := s.windowSizeSample + s.hopSizeSamples
	if maxBufferLen > 0 && len(s.buffer) > maxBufferLen {
		toDrain := len(s.buffer) - maxBufferLen
		s.buffer = s.buffer[toDrain:]
	}

	s.sinceLastEmit += len(batch.Points)

	if s.hopSizeSamples == 0 || s.sinceLastEmit < s.hopSizeSamples {
		return
	}

	have := len(s.buffer)
	want := have
	if s.windowSizeSample != 0 && s.windowSizeSample < have {
		want = s.windowSizeSample
	}
	if want == 0 {
		s.sinceLastEmit = 0
		return
	}

	slice := s.buffer[have-want:]
	s.calculateAndDistributeLocked(slice)

	if s.windowSizeSample > 0 && have >= s.windowSizeSample {
		drain := s.hopSizeSamples
		if drain > len(s.buffer) {
			drain = len(s.buffer)
		}
		s.buffer = s.buffer[drain:]
	}
	s.sinceLastEmit = 0
}

func (s *DetrendStage) ProcessDerivedBatch(DerivedBatch) {}

func (s *DetrendStage) ProcessCommand(cmd Command, capture CaptureQuerier) {
	switch cmd.Kind {
	case CommandAddSubscriber:
		if cmd.Subscriber != nil {
			s.mu.Lock()
			s.subscribers = append(s.subscribers, cmd.Subscriber)
			s.mu.Unlock()
		}
	case CommandHydrate:
		s.hydrate(capture)
	}
}

func (s *DetrendStage) hydrate(capture CaptureQuerier) {
	if sr, ok := capture.GetEffectiveSamplingRate(s.sourceKey.StreamKey()); ok {
		s.mu.Lock()
		s.sampleRate = sr
		s.haveSampleRate = true
		s.windowSizeSample = ceilPositive(sr * s.windowSeconds)
		s.hopSizeSamples = ceilPositive(sr * hopTimeSeconds)
		if s.hopSizeSamples < 1 {
			s.hopSizeSamples = 1
		}
		s.mu.Unlock()
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

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.windowSizeSample > 0 && len(points) > s.windowSizeSample {
		points = points[len(points)-s.windowSizeSample:]
	}
	s.calculateAndDistributeLocked(points)
	s.buffer = append(s.buffer, points...)
	s.sinceLastEmit = 0
}

func ceilPositive(x float64) int {
	i := int(x)
	if float64(i) < x {
		i++
	}
	return i
}
