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

package capture

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/twinleaf/trendline/internal/contracts"
)

func TestColumnBufferEvictsOldestOnOverflow(t *testing.T) {
	b := newColumnBuffer(4)
	for i, t0 := range []float64{1, 2, 3, 4, 5} {
		b.push(contracts.Point{T: t0, Y: float64(i+1) * 10}, 0)
	}
	got := b.toSlice()
	want := []contracts.Point{{T: 2, Y: 20}, {T: 3, Y: 30}, {T: 4, Y: 40}, {T: 5, Y: 50}}
	require.Equal(t, want, got)
}

func TestColumnBufferTieOnLastTOverwrites(t *testing.T) {
	b := newColumnBuffer(10)
	b.push(contracts.Point{T: 1, Y: 1}, 0)
	b.push(contracts.Point{T: 2, Y: 2}, 0)
	b.push(contracts.Point{T: 2, Y: 99}, 0)
	require.Equal(t, []contracts.Point{{T: 1, Y: 1}, {T: 2, Y: 99}}, b.toSlice())
}

func TestColumnBufferOutOfOrderInsert(t *testing.T) {
	b := newColumnBuffer(10)
	for _, t0 := range []float64{1, 2, 4, 5} {
		b.push(contracts.Point{T: t0, Y: t0}, 0)
	}
	b.push(contracts.Point{T: 3, Y: 3}, 0)
	got := b.toSlice()
	require.Len(t, got, 5)
	for i := 1; i < len(got); i++ {
		require.Less(t, got[i-1].T, got[i].T)
	}
	require.Equal(t, 3.0, got[2].Y)
}

func TestColumnBufferRangeSlice(t *testing.T) {
	b := newColumnBuffer(10)
	for _, t0 := range []float64{0, 1, 2, 3, 4} {
		b.push(contracts.Point{T: t0, Y: t0 * 10}, 0)
	}
	got := b.rangeSlice(1, 3)
	require.Equal(t, []contracts.Point{{T: 1, Y: 10}, {T: 2, Y: 20}, {T: 3, Y: 30}}, got)

	require.Nil(t, b.rangeSlice(10, 20))
}

func TestColumnBufferLastAndLen(t *testing.T) {
	b := newColumnBuffer(3)
	_, ok := b.last()
	require.False(t, ok)
	require.Equal(t, 0, b.len())

	b.push(contracts.Point{T: 1, Y: 1}, 0)
	b.push(contracts.Point{T: 2, Y: 2}, 0)
	p, ok := b.last()
	require.True(t, ok)
	require.Equal(t, contracts.Point{T: 2, Y: 2}, p)
	require.Equal(t, 2, b.len())
}

func TestColumnBufferBracketInterpolatesBetweenSamples(t *testing.T) {
	b := newColumnBuffer(10)
	b.push(contracts.Point{T: 0, Y: 0}, 0)
	b.push(contracts.Point{T: 10, Y: 100}, 0)

	p0, p1, s0, s1, ok := b.bracket(5)
	require.True(t, ok)
	require.Equal(t, 0.0, p0.T)
	require.Equal(t, 10.0, p1.T)
	require.Equal(t, uint64(0), s0)
	require.Equal(t, uint64(0), s1)

	_, _, _, _, ok = b.bracket(-1)
	require.False(t, ok)
	_, _, _, _, ok = b.bracket(11)
	require.False(t, ok)
}

func TestColumnBufferBracketCrossesSessionEpoch(t *testing.T) {
	b := newColumnBuffer(10)
	b.push(contracts.Point{T: 0, Y: 0}, 1)
	b.push(contracts.Point{T: 10, Y: 100}, 2)

	_, _, s0, s1, ok := b.bracket(5)
	require.True(t, ok)
	require.NotEqual(t, s0, s1)
}
