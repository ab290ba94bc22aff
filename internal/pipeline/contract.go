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

// Package pipeline implements the five processing stages (passthrough,
// FPCS decimation, detrend, spectral, statistics) that sit between the
// capture store and the pipeline manager, each running on its own
// goroutine and driven by a select loop over a data channel and a
// command channel.
package pipeline

import "github.com/twinleaf/trendline/internal/contracts"

// CaptureQuerier is the read-only slice of the capture store a stage
// needs at hydration or reset time. Stages never see the full store —
// only this interface — so they stay unit-testable with a fake.
type CaptureQuerier interface {
	GetEffectiveSamplingRate(stream contracts.StreamKey) (float64, bool)
	GetLatestUnifiedTimestamp(keys []contracts.DataColumnId) (float64, bool)
	GetDataAcrossSessionsForKeys(keys []contracts.DataColumnId, tMin, tMax float64) map[contracts.DataColumnId][]contracts.Point
}

// CommandKind enumerates the control messages a stage's command channel
// carries, mirroring the original's PipelineCommand enum.
type CommandKind int

const (
	CommandHydrate CommandKind = iota
	CommandShutdown
	CommandResetSelf
	CommandAddSubscriber
)

// DerivedBatch is the payload a root stage hands to a derived stage
// subscribed to it (e.g. detrend -> spectral): the stage's latest
// PlotData together with the sampling rate it was computed at.
type DerivedBatch struct {
	Data       contracts.PlotData
	SampleRate float64
}

// Command is one control message delivered to a stage's command channel.
// Subscriber is only populated for CommandAddSubscriber.
type Command struct {
	Kind       CommandKind
	Subscriber chan<- DerivedBatch
}

// Stage is the core processing-stage contract every root/derived
// pipeline implements. Stages that don't consume one of ProcessBatch /
// ProcessDerivedBatch implement it as a no-op, mirroring the original
// trait's default methods (Go has no default interface methods).
type Stage interface {
	ID() contracts.PipelineId
	GetOutput() contracts.PlotData
	ProcessBatch(batch contracts.BatchedData)
	ProcessDerivedBatch(batch DerivedBatch)
	ProcessCommand(cmd Command, capture CaptureQuerier)
}

// StatisticsProvider is the contract for a stream's running statistics
// computation. Unlike Stage, its update is driven by the manager's
// emitter tick rather than by inbound batches, since the window and
// persistent statistics both depend on "now" rather than on any single
// batch boundary.
type StatisticsProvider interface {
	ID() contracts.PipelineId
	GetOutput() contracts.StreamStatistics
	ProcessBatch(batch contracts.BatchedData)
	Update(capture CaptureQuerier)
	Reset(capture CaptureQuerier)
}
