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

// Package transport defines the boundary between the engine and the
// external device layer (serial framing, port discovery, device RPC).
// That layer is explicitly out of scope for this module: Sink is the
// only contract a real transport implementation needs to satisfy to
// feed the capture store, and nothing in this package talks to an
// actual port.
package transport

import (
	"sync"

	"github.com/twinleaf/trendline/internal/capture"
	"github.com/twinleaf/trendline/internal/contracts"
)

// Sink is the write side of the capture store as seen by a transport
// implementation: the three things a device layer reports as it
// discovers ports, negotiates streams, and receives samples. A real
// serial/device-discovery transport is never implemented here; only the
// interface and a fake test double are.
type Sink interface {
	// Insert admits a single sample for key, applying the store's
	// admission control and active-set filtering.
	Insert(key contracts.DataColumnId, p contracts.Point)

	// ReportSamplingRate records the effective sampling rate the
	// transport observed for a stream, typically once at stream
	// negotiation time and again on any renegotiation.
	ReportSamplingRate(stream contracts.StreamKey, hz float64)

	// ReportPortState records the transport's view of a port's
	// connection state. The engine only stores and republishes this;
	// it never drives the state machine itself.
	ReportPortState(portURL string, state contracts.PortState)
}

var _ Sink = (*capture.Store)(nil)

// FakeSource is a test double standing in for a real serial/device
// transport. It records every call it receives and, when Replay is
// called, feeds a fixed sequence of points into a Sink as if a device
// were streaming them — useful for exercising the manager/capture
// wiring end to end without a real port.
type FakeSource struct {
	mu sync.Mutex

	rates      []reportedRate
	portStates []reportedPortState
}

type reportedRate struct {
	Stream contracts.StreamKey
	Hz     float64
}

type reportedPortState struct {
	PortURL string
	State   contracts.PortState
}

// NewFakeSource returns a ready-to-use FakeSource.
func NewFakeSource() *FakeSource {
	return &FakeSource{}
}

// ReportSamplingRate records the call for later inspection by Rates.
func (f *FakeSource) ReportSamplingRate(stream contracts.StreamKey, hz float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rates = append(f.rates, reportedRate{Stream: stream, Hz: hz})
}

// ReportPortState records the call for later inspection by PortStates.
func (f *FakeSource) ReportPortState(portURL string, state contracts.PortState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.portStates = append(f.portStates, reportedPortState{PortURL: portURL, State: state})
}

// Rates returns every (stream, hz) pair reported so far, in call order.
func (f *FakeSource) Rates() []reportedRate {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]reportedRate, len(f.rates))
	copy(out, f.rates)
	return out
}

// PortStates returns every (portURL, state) pair reported so far, in
// call order.
func (f *FakeSource) PortStates() []reportedPortState {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]reportedPortState, len(f.portStates))
	copy(out, f.portStates)
	return out
}

// Replay feeds points into sink in order, as a real transport would as
// it received them off the wire. It reports the sampling rate for each
// distinct stream once, before its first point, mirroring how the
// original negotiates a stream's rate at discovery time.
func (f *FakeSource) Replay(sink Sink, key contracts.DataColumnId, hz float64, points []contracts.Point) {
	sink.ReportSamplingRate(key.StreamKey(), hz)
	f.ReportSamplingRate(key.StreamKey(), hz)
	for _, p := range points {
		sink.Insert(key, p)
	}
}
