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

// Package contracts holds the stable, serializable data shapes shared
// across the capture store, the numeric kernels, the pipeline stages and
// the pipeline manager. Nothing in this package owns goroutines or locks;
// it only describes wire-stable values, mirroring the original
// trendline-lib `shared.rs` module.
package contracts

import "fmt"

// Point is a single (t, y) sample. t is a monotonic session timestamp in
// seconds; y is the decoded value.
type Point struct {
	T float64
	Y float64
}

// DataColumnId is the compound key (port_url, device_route, stream_id,
// column_index). It is comparable and usable directly as a Go map key;
// equality is structural, matching the spec's requirement.
type DataColumnId struct {
	PortURL     string
	DeviceRoute string
	StreamID    string
	ColumnIndex int
}

func (id DataColumnId) String() string {
	return fmt.Sprintf("%s|%s|%s|%d", id.PortURL, id.DeviceRoute, id.StreamID, id.ColumnIndex)
}

// StreamKey is the (port_url, device_route, stream_id) prefix of a
// DataColumnId, used to look up the effective sampling rate of a stream.
type StreamKey struct {
	PortURL     string
	DeviceRoute string
	StreamID    string
}

// StreamKey derives the StreamKey prefix of this column id.
func (id DataColumnId) StreamKey() StreamKey {
	return StreamKey{PortURL: id.PortURL, DeviceRoute: id.DeviceRoute, StreamID: id.StreamID}
}

func (k StreamKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.PortURL, k.DeviceRoute, k.StreamID)
}

// BatchedData is the sequence of points newly appended to a key during one
// fan-out tick. Points are ordered by t; TMax is the max t across Points.
// Invariant: non-empty.
type BatchedData struct {
	Key    DataColumnId
	Points []Point
	TMax   float64
}

// PlotData is the interchange format sent to the UI: parallel arrays,
// series_data[i] has the same length as Timestamps for every i. Empty
// when either is empty.
type PlotData struct {
	Timestamps []float64   `json:"timestamps"`
	SeriesData [][]float64 `json:"series_data"`
}

// EmptyPlotData returns a PlotData with no timestamps and no series.
func EmptyPlotData() PlotData {
	return PlotData{Timestamps: nil, SeriesData: nil}
}

// IsEmpty reports whether this PlotData carries no samples.
func (p PlotData) IsEmpty() bool {
	return len(p.Timestamps) == 0 || len(p.SeriesData) == 0
}

// WithSeriesCapacity returns an empty PlotData pre-sized for n series rows.
func WithSeriesCapacity(n int) PlotData {
	return PlotData{SeriesData: make([][]float64, n)}
}

// PipelineId is a process-unique identifier for a pipeline instance or a
// statistics provider.
type PipelineId string

// StatisticSet is a snapshot of count/mean/min/max/stdev/rms computed
// either incrementally (persistent) or over a finite window (window).
type StatisticSet struct {
	Count uint64  `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Stdev float64 `json:"stdev"`
	RMS   float64 `json:"rms"`
}

// StreamStatistics is the output shape of a statistics provider.
type StreamStatistics struct {
	LatestValue float64      `json:"latest_value"`
	Window      StatisticSet `json:"window"`
	Persistent  StatisticSet `json:"persistent"`
}

// DecimationMethod selects the timeseries decimation strategy.
type DecimationMethod int

const (
	DecimationNone DecimationMethod = iota
	DecimationFpcs
)

func (d DecimationMethod) String() string {
	if d == DecimationFpcs {
		return "fpcs"
	}
	return "none"
}

// DetrendMethod selects the least-squares detrend fit applied before
// spectral estimation.
type DetrendMethod int

const (
	DetrendNone DetrendMethod = iota
	DetrendLinear
	DetrendQuadratic
)

func (d DetrendMethod) String() string {
	switch d {
	case DetrendLinear:
		return "linear"
	case DetrendQuadratic:
		return "quadratic"
	default:
		return "none"
	}
}

// TimeseriesConfig configures a root timeseries view of a single column.
type TimeseriesConfig struct {
	WindowSeconds        float64          `json:"window_seconds"`
	Decimation           DecimationMethod `json:"decimation"`
	ResolutionMultiplier int              `json:"resolution_multiplier"`
}

// FftConfig configures a detrend+spectral chain over a single column.
type FftConfig struct {
	WindowSeconds float64       `json:"window_seconds"`
	DetrendMethod DetrendMethod `json:"detrend_method"`
}

// ViewKind discriminates the two ViewConfig variants.
type ViewKind int

const (
	ViewTimeseries ViewKind = iota
	ViewFft
)

// ViewConfig is the tagged union Timeseries{...} | Fft{...} a plot renders.
type ViewConfig struct {
	Kind       ViewKind
	Timeseries TimeseriesConfig
	Fft        FftConfig
}

// SharedPlotConfig is a declarative plot/statistics configuration issued
// by the front-end.
type SharedPlotConfig struct {
	PlotID          string         `json:"plot_id"`
	DataKeys        []DataColumnId `json:"data_keys"`
	MaxSamplingRate float64        `json:"max_sampling_rate"`
	ViewConfig      ViewConfig     `json:"view_config"`
}

// PortState mirrors the transport layer's connection state machine for a
// single port. The engine only stores and republishes the latest reported
// value; it never transitions it itself.
type PortState int

const (
	PortIdle PortState = iota
	PortConnecting
	PortDiscovery
	PortStreaming
	PortReconnecting
	PortDisconnected
	PortError
)

func (s PortState) String() string {
	switch s {
	case PortConnecting:
		return "connecting"
	case PortDiscovery:
		return "discovery"
	case PortStreaming:
		return "streaming"
	case PortReconnecting:
		return "reconnecting"
	case PortDisconnected:
		return "disconnected"
	case PortError:
		return "error"
	default:
		return "idle"
	}
}

// ColumnDataType enumerates the declared numeric kind of a source column,
// used by CSV export to decide integer vs. decimal formatting.
type ColumnDataType int

const (
	TypeUnknown ColumnDataType = iota
	TypeI8
	TypeI16
	TypeI32
	TypeI64
	TypeU8
	TypeU16
	TypeU32
	TypeU64
	TypeF32
	TypeF64
)

// IsInteger reports whether this declared type should be CSV-formatted
// without a decimal point.
func (t ColumnDataType) IsInteger() bool {
	switch t {
	case TypeI8, TypeI16, TypeI32, TypeI64, TypeU8, TypeU16, TypeU32, TypeU64:
		return true
	default:
		return false
	}
}

// ColumnMeta is a minimal mirror of the transport/RPC layer's column
// metadata, used only for CSV export naming and numeric formatting.
type ColumnMeta struct {
	DeviceRoute string
	Name        string
	DataType    ColumnDataType
}
