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
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/twinleaf/trendline/internal/contracts"
	"github.com/twinleaf/trendline/internal/kernels"
)

// StreamingStatisticsProvider maintains both an all-time (persistent,
// Welford-incremental) and a rolling-window StatisticSet for a single
// column, published through a DoubleBuffer so readers never observe a
// partial update.
type StreamingStatisticsProvider struct {
	id            contracts.PipelineId
	sourceKey     contracts.DataColumnId
	windowSeconds float64

	output            DoubleBuffer[contracts.StreamStatistics]
	mu                sync.Mutex
	lastProcessedTime float64
	persistent        *kernels.PersistentStats
}

// NewStreamingStatisticsProvider constructs a statistics provider over
// sourceKey with a windowSeconds-wide rolling window.
func NewStreamingStatisticsProvider(sourceKey contracts.DataColumnId, windowSeconds float64) *StreamingStatisticsProvider {
	return &StreamingStatisticsProvider{
		id:            contracts.PipelineId(uuid.NewString()),
		sourceKey:     sourceKey,
		windowSeconds: windowSeconds,
	}
}

func (p *StreamingStatisticsProvider) ID() contracts.PipelineId { return p.id }

func (p *StreamingStatisticsProvider) GetOutput() contracts.StreamStatistics {
	return p.output.Load()
}

// ProcessBatch is a no-op: unlike Stage implementations, a statistics
// provider's state advances on the manager's emitter tick via Update,
// not per inbound batch, since both the persistent and window
// statistics depend on "now" rather than any single batch boundary.
func (p *StreamingStatisticsProvider) ProcessBatch(contracts.BatchedData) {}

func (p *StreamingStatisticsProvider) Update(capture CaptureQuerier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	latest, ok := capture.GetLatestUnifiedTimestamp([]contracts.DataColumnId{p.sourceKey})
	if !ok {
		return
	}

	// GetDataAcrossSessionsForKeys is inclusive on both ends, so querying
	// from lastProcessedTime again would re-fold the sample at exactly
	// that timestamp into the persistent accumulator. Nudge the lower
	// bound past it once a boundary has actually been processed.
	newPointsMin := p.lastProcessedTime
	if p.persistent != nil {
		newPointsMin = math.Nextafter(p.lastProcessedTime, math.Inf(1))
	}
	newPoints := capture.GetDataAcrossSessionsForKeys([]contracts.DataColumnId{p.sourceKey}, newPointsMin, latest)
	for _, point := range newPoints[p.sourceKey] {
		if p.persistent == nil {
			p.persistent = &kernels.PersistentStats{}
		}
		p.persistent.Update(point.Y)
	}

	windowMinTime := latest - p.windowSeconds
	windowPoints := capture.GetDataAcrossSessionsForKeys([]contracts.DataColumnId{p.sourceKey}, windowMinTime, latest)[p.sourceKey]

	var newStats contracts.StreamStatistics
	if len(windowPoints) > 0 {
		newStats.LatestValue = windowPoints[len(windowPoints)-1].Y
		newStats.Window = kernels.BatchStats(windowPoints)
	}
	if p.persistent != nil {
		newStats.Persistent = p.persistent.Snapshot()
	}

	p.output.WriteWith(func(back *contracts.StreamStatistics) {
		*back = newStats
	})
	p.lastProcessedTime = latest
}

func (p *StreamingStatisticsProvider) Reset(capture CaptureQuerier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.persistent = nil

	latest, ok := capture.GetLatestUnifiedTimestamp([]contracts.DataColumnId{p.sourceKey})
	if !ok {
		latest = 0
	}
	p.lastProcessedTime = latest

	p.output.WriteWith(func(back *contracts.StreamStatistics) {
		*back = contracts.StreamStatistics{}
	})
}
