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

package kernels

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/twinleaf/trendline/internal/contracts"
)

func sineWave(n int, ratio float64) []contracts.Point {
	pts := make([]contracts.Point, n)
	for i := 0; i < n; i++ {
		t := float64(i)
		pts[i] = contracts.Point{T: t, Y: ratio * float64((i%10)-5)}
	}
	return pts
}

func TestFPCSRetainsFirstPoint(t *testing.T) {
	f := NewFPCS(3)
	out := f.Process(contracts.Point{T: 0, Y: 1})
	require.Equal(t, []contracts.Point{{T: 0, Y: 1}}, out)
}

func TestFPCSReducesVolumeByApproximatelyRatio(t *testing.T) {
	f := NewFPCS(3)
	points := sineWave(300, 1.0)
	out := f.ProcessBatch(points)

	require.NotEmpty(t, out)
	require.Less(t, len(out), len(points))
	// FPCS retains roughly 2 points per `ratio` input samples.
	upperBound := len(points)/3*2 + 10
	require.LessOrEqual(t, len(out), upperBound)
}

func TestFPCSRetainedPointsAreSubsetOfInput(t *testing.T) {
	f := NewFPCS(4)
	points := sineWave(100, 2.0)
	out := f.ProcessBatch(points)

	byTime := make(map[float64]contracts.Point, len(points))
	for _, p := range points {
		byTime[p.T] = p
	}
	for _, p := range out {
		orig, ok := byTime[p.T]
		require.True(t, ok, "retained point %v not present in input", p)
		require.Equal(t, orig.Y, p.Y)
	}
}

func TestFPCSIsDeterministicAcrossIdenticalRuns(t *testing.T) {
	points := sineWave(150, 1.5)

	f1 := NewFPCS(5)
	out1 := f1.ProcessBatch(points)

	f2 := NewFPCS(5)
	out2 := f2.ProcessBatch(points)

	require.Equal(t, out1, out2)
}

func TestFPCSRatioOneEmitsOnEveryWindow(t *testing.T) {
	f := NewFPCS(1)
	points := sineWave(20, 1.0)
	out := f.ProcessBatch(points)
	// With ratio 1 the window closes on every sample after the first, so
	// the retained count tracks the input size closely rather than
	// shrinking by a factor of ~ratio.
	require.Greater(t, len(out), len(points)/2)
}
