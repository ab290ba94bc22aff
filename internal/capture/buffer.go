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
	"sort"
	"sync"

	"github.com/twinleaf/trendline/internal/contracts"
)

// columnBuffer is a fixed-capacity, time-ordered ring of (t, y) samples
// for a single DataColumnId. Invariant: |buffer| <= cap; once full, the
// oldest sample is evicted one at a time on every insert — strictly
// oldest-first, no amortized batch eviction.
//
// The common case — samples arriving in non-decreasing t order, as real
// sensors produce — is an O(1) circular-buffer append/evict. Out-of-order
// arrival (late session-boundary backfill, clock jitter) falls back to an
// O(n) sorted re-insertion; this is not the hot path.
type columnBuffer struct {
	mu   sync.RWMutex
	data []contracts.Point
	seg  []uint64 // session epoch each sample was captured under, parallel to data
	head int
	size int
	cap  int
}

func newColumnBuffer(capacity int) *columnBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &columnBuffer{
		cap:  capacity,
		data: make([]contracts.Point, capacity),
		seg:  make([]uint64, capacity),
	}
}

func (b *columnBuffer) idx(i int) int { return (b.head + i) % b.cap }

// push inserts p under session epoch seg, evicting the oldest sample if the
// buffer is already at capacity. Ties on t: the later write replaces the
// earlier one.
func (b *columnBuffer) push(p contracts.Point, seg uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size > 0 {
		last := b.data[b.idx(b.size-1)]
		if p.T < last.T {
			b.insertOutOfOrderLocked(p, seg)
			return
		}
		if p.T == last.T {
			i := b.idx(b.size - 1)
			b.data[i] = p
			b.seg[i] = seg
			return
		}
	}

	if b.size < b.cap {
		i := b.idx(b.size)
		b.data[i] = p
		b.seg[i] = seg
		b.size++
		return
	}
	// Full: overwrite the oldest slot and advance head — the classic
	// O(1) ring-buffer eviction.
	b.data[b.head] = p
	b.seg[b.head] = seg
	b.head = (b.head + 1) % b.cap
}

func (b *columnBuffer) insertOutOfOrderLocked(p contracts.Point, seg uint64) {
	pts, segs := b.snapshotWithSegLocked()
	i := sort.Search(len(pts), func(i int) bool { return pts[i].T >= p.T })
	if i < len(pts) && pts[i].T == p.T {
		pts[i] = p
		segs[i] = seg
	} else {
		pts = append(pts, contracts.Point{})
		copy(pts[i+1:], pts[i:])
		pts[i] = p
		segs = append(segs, 0)
		copy(segs[i+1:], segs[i:])
		segs[i] = seg
	}
	if len(pts) > b.cap {
		drop := len(pts) - b.cap
		pts = pts[drop:]
		segs = segs[drop:]
	}
	b.size = len(pts)
	b.head = 0
	copy(b.data, pts)
	copy(b.seg, segs)
}

func (b *columnBuffer) snapshotLocked() []contracts.Point {
	out := make([]contracts.Point, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.data[b.idx(i)]
	}
	return out
}

func (b *columnBuffer) snapshotWithSegLocked() ([]contracts.Point, []uint64) {
	pts := make([]contracts.Point, b.size)
	segs := make([]uint64, b.size)
	for i := 0; i < b.size; i++ {
		j := b.idx(i)
		pts[i] = b.data[j]
		segs[i] = b.seg[j]
	}
	return pts, segs
}

// toSlice returns a newly allocated, time-ordered copy of the buffer.
func (b *columnBuffer) toSlice() []contracts.Point {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked()
}

// len reports the current number of stored samples.
func (b *columnBuffer) len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// last returns the most recent sample, if any.
func (b *columnBuffer) last() (contracts.Point, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.size == 0 {
		return contracts.Point{}, false
	}
	return b.data[b.idx(b.size-1)], true
}

// rangeSlice returns a newly allocated, time-ordered slice of samples with
// tMin <= t <= tMax.
func (b *columnBuffer) rangeSlice(tMin, tMax float64) []contracts.Point {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.size == 0 {
		return nil
	}
	all := b.snapshotLocked()
	lo := sort.Search(len(all), func(i int) bool { return all[i].T >= tMin })
	hi := sort.Search(len(all), func(i int) bool { return all[i].T > tMax })
	if lo >= hi {
		return nil
	}
	out := make([]contracts.Point, hi-lo)
	copy(out, all[lo:hi])
	return out
}

// bracket locates the two samples immediately surrounding t (p0.T <= t <=
// p1.T) along with the session epoch each was captured under, for linear
// interpolation. ok is false if t falls outside the buffer's time range.
func (b *columnBuffer) bracket(t float64) (p0, p1 contracts.Point, seg0, seg1 uint64, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.size == 0 {
		return contracts.Point{}, contracts.Point{}, 0, 0, false
	}
	pts, segs := b.snapshotWithSegLocked()
	if t < pts[0].T || t > pts[len(pts)-1].T {
		return contracts.Point{}, contracts.Point{}, 0, 0, false
	}
	i := sort.Search(len(pts), func(i int) bool { return pts[i].T >= t })
	if pts[i].T == t {
		return pts[i], pts[i], segs[i], segs[i], true
	}
	return pts[i-1], pts[i], segs[i-1], segs[i], true
}
