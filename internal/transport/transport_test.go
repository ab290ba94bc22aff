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

package transport

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/twinleaf/trendline/internal/contracts"
)

type recordingSink struct {
	mu     sync.Mutex
	points []contracts.Point
	rates  []float64
	states []contracts.PortState
}

func (s *recordingSink) Insert(_ contracts.DataColumnId, p contracts.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, p)
}

func (s *recordingSink) ReportSamplingRate(_ contracts.StreamKey, hz float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates = append(s.rates, hz)
}

func (s *recordingSink) ReportPortState(_ string, state contracts.PortState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
}

var _ Sink = (*recordingSink)(nil)

func TestFakeSourceReplayFeedsSinkInOrder(t *testing.T) {
	src := NewFakeSource()
	sink := &recordingSink{}
	key := contracts.DataColumnId{PortURL: "/dev/ttyACM0", DeviceRoute: "0", StreamID: "1", ColumnIndex: 0}

	points := []contracts.Point{{T: 0, Y: 1}, {T: 1, Y: 2}, {T: 2, Y: 3}}
	src.Replay(sink, key, 100, points)

	require.Equal(t, points, sink.points)
	require.Equal(t, []float64{100}, sink.rates)
}

func TestFakeSourceRecordsReportedRatesAndPortStates(t *testing.T) {
	src := NewFakeSource()
	sink := &recordingSink{}
	key := contracts.DataColumnId{PortURL: "/dev/ttyACM0", StreamID: "1"}

	src.Replay(sink, key, 50, nil)
	src.ReportPortState("/dev/ttyACM0", contracts.PortStreaming)

	rates := src.Rates()
	require.Len(t, rates, 1)
	require.Equal(t, key.StreamKey(), rates[0].Stream)
	require.Equal(t, 50.0, rates[0].Hz)

	states := src.PortStates()
	require.Len(t, states, 1)
	require.Equal(t, "/dev/ttyACM0", states[0].PortURL)
	require.Equal(t, contracts.PortStreaming, states[0].State)
}
