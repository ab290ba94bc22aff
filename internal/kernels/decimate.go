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

import "github.com/twinleaf/trendline/internal/contracts"

// fpcsRetained tracks which extremum was emitted most recently, so FPCS
// can decide whether the point it is about to retain was already emitted
// as a "potential" point in a prior window.
type fpcsRetained int

const (
	fpcsRetainedNone fpcsRetained = iota
	fpcsRetainedMax
	fpcsRetainedMin
)

// FPCS is Fast Point-Conserving Sampling: a streaming min/max decimator
// that retains, once every `ratio` input samples, whichever of the
// window's running min/max was not already implied by the prior window's
// retained point — preserving peaks and troughs a naive stride-N
// subsample would average away.
type FPCS struct {
	ratio int

	counter         int
	haveWindow      bool
	windowMax       contracts.Point
	windowMin       contracts.Point
	potentialPoint  contracts.Point
	havePotential   bool
	lastRetained    fpcsRetained
}

// NewFPCS constructs a decimator that retains roughly 2 points out of
// every `ratio` input samples. ratio must be >= 1.
func NewFPCS(ratio int) *FPCS {
	if ratio < 1 {
		ratio = 1
	}
	return &FPCS{ratio: ratio}
}

// Process feeds one input point and returns the points retained as a
// result, in order (0, 1, or 2 points for a single input — 2 when a
// pending potential point and a new extremum are both flushed on the
// same call).
func (f *FPCS) Process(p contracts.Point) []contracts.Point {
	if !f.haveWindow {
		f.haveWindow = true
		f.windowMax = p
		f.windowMin = p
		f.counter = 1
		return []contracts.Point{p}
	}

	maxP := f.windowMax
	minP := f.windowMin
	f.counter++

	if p.Y >= maxP.Y {
		maxP = p
	} else if p.Y < minP.Y {
		minP = p
	}

	var out []contracts.Point
	if f.counter >= f.ratio {
		if minP.T < maxP.T {
			if f.lastRetained == fpcsRetainedMin && (!f.havePotential || f.potentialPoint != minP) {
				if f.havePotential {
					out = append(out, f.potentialPoint)
				}
			}
			out = append(out, minP)
			f.potentialPoint = maxP
			f.havePotential = true
			minP = maxP
			f.lastRetained = fpcsRetainedMin
		} else {
			if f.lastRetained == fpcsRetainedMax && (!f.havePotential || f.potentialPoint != maxP) {
				if f.havePotential {
					out = append(out, f.potentialPoint)
				}
			}
			out = append(out, maxP)
			f.potentialPoint = minP
			f.havePotential = true
			maxP = minP
			f.lastRetained = fpcsRetainedMax
		}
		f.counter = 0
	}
	f.windowMax = maxP
	f.windowMin = minP
	return out
}

// ProcessBatch feeds a slice of points in order and returns every point
// retained across the whole slice.
func (f *FPCS) ProcessBatch(points []contracts.Point) []contracts.Point {
	out := make([]contracts.Point, 0, len(points))
	for _, p := range points {
		out = append(out, f.Process(p)...)
	}
	return out
}
