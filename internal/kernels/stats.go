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

// Package kernels holds the pure numeric building blocks shared by the
// pipeline stages: incremental and batch statistics, FPCS decimation,
// least-squares detrending and Welch spectral estimation, and the k-way
// merge used to assemble a plot's final PlotData. Nothing here owns a
// goroutine, a channel or a lock; every exported function is a pure
// transform over its inputs so the pipeline stages that wrap them stay
// thin and testable in isolation.
package kernels

import (
	"math"

	"github.com/twinleaf/trendline/internal/contracts"
)

// PersistentStats accumulates count/mean/min/max/stdev/rms over an
// unbounded stream using Welford's online algorithm, so a running
// statistics provider never has to re-scan its full history on every
// update.
type PersistentStats struct {
	count        uint64
	mean         float64
	m2           float64
	sumOfSquares float64
	min          float64
	max          float64
}

// Update folds one new sample into the running statistics.
func (s *PersistentStats) Update(y float64) {
	s.count++
	if s.count == 1 {
		s.mean = y
		s.min = y
		s.max = y
		s.sumOfSquares = y * y
		return
	}
	delta := y - s.mean
	s.mean += delta / float64(s.count)
	delta2 := y - s.mean
	s.m2 += delta * delta2
	s.sumOfSquares += y * y

	if y < s.min {
		s.min = y
	}
	if y > s.max {
		s.max = y
	}
}

// Stdev returns the sample standard deviation (Bessel's correction,
// divisor n-1), 0 for fewer than two samples.
func (s *PersistentStats) Stdev() float64 {
	if s.count < 2 {
		return 0
	}
	return math.Sqrt(s.m2 / float64(s.count-1))
}

// RMS returns the root-mean-square of all samples seen so far.
func (s *PersistentStats) RMS() float64 {
	if s.count == 0 {
		return 0
	}
	return math.Sqrt(s.sumOfSquares / float64(s.count))
}

// Snapshot returns the current statistics as a contracts.StatisticSet.
func (s *PersistentStats) Snapshot() contracts.StatisticSet {
	return contracts.StatisticSet{
		Count: s.count,
		Mean:  s.mean,
		Min:   s.min,
		Max:   s.max,
		Stdev: s.Stdev(),
		RMS:   s.RMS(),
	}
}

// Count reports the number of samples folded in so far.
func (s *PersistentStats) Count() uint64 { return s.count }

// BatchStats computes the same statistic set as PersistentStats, but as a
// one-shot reduction over a finite slice of points — used for the
// window statistics of a StatisticsProvider, where the window is
// recomputed from scratch on every tick rather than updated
// incrementally.
func BatchStats(points []contracts.Point) contracts.StatisticSet {
	var acc PersistentStats
	for _, p := range points {
		acc.Update(p.Y)
	}
	return acc.Snapshot()
}
