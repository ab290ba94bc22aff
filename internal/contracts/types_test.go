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

package contracts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDataColumnIdIsComparableMapKey(t *testing.T) {
	a := DataColumnId{PortURL: "serial://ttyUSB0", DeviceRoute: "0", StreamID: "1", ColumnIndex: 0}
	b := DataColumnId{PortURL: "serial://ttyUSB0", DeviceRoute: "0", StreamID: "1", ColumnIndex: 0}
	c := DataColumnId{PortURL: "serial://ttyUSB0", DeviceRoute: "0", StreamID: "1", ColumnIndex: 1}

	m := map[DataColumnId]int{a: 1}
	_, ok := m[b]
	require.True(t, ok, "structurally equal ids must collide in a map")
	_, ok = m[c]
	require.False(t, ok)
}

func TestStreamKeyDerivation(t *testing.T) {
	id := DataColumnId{PortURL: "p", DeviceRoute: "r", StreamID: "3", ColumnIndex: 2}
	require.Equal(t, StreamKey{PortURL: "p", DeviceRoute: "r", StreamID: "3"}, id.StreamKey())
}

func TestPlotDataEmpty(t *testing.T) {
	require.True(t, EmptyPlotData().IsEmpty())
	p := PlotData{Timestamps: []float64{1}, SeriesData: [][]float64{{1}}}
	require.False(t, p.IsEmpty())
}

func TestColumnDataTypeIsInteger(t *testing.T) {
	require.True(t, TypeI32.IsInteger())
	require.True(t, TypeU64.IsInteger())
	require.False(t, TypeF64.IsInteger())
	require.False(t, TypeUnknown.IsInteger())
}

func TestErrorKindMatching(t *testing.T) {
	err := NewError(ConfigInvalid, "window must be positive")
	require.ErrorIs(t, err, ErrConfigInvalid)
	require.NotErrorIs(t, err, ErrChannelClosed)
}
