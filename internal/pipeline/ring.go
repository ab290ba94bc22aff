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

package pipeline

import "github.com/twinleaf/trendline/internal/contracts"

// pointRing is a fixed-capacity, time-ordered ring of points, the same
// O(1) circular-buffer eviction as capture's columnBuffer but without
// out-of-order insertion or session tracking: stage output only ever
// arrives already in order. A zero-value pointRing grows unbounded
// until setCapacity is called, since a stage's output cap is only known
// once a hydrate command reports the source's sampling rate.
type pointRing struct {
	data    []contracts.Point
	head    int
	size    int
	bounded bool
}

// append adds p, evicting the oldest point in O(1) once the ring is at
// capacity. Not callable concurrently; callers hold the stage's mutex.
func (r *pointRing) append(p contracts.Point) {
	if !r.bounded {
		r.data = append(r.data, p)
		r.size++
		return
	}
	if r.size < len(r.data) {
		r.data[(r.head+r.size)%len(r.data)] = p
		r.size++
		return
	}
	r.data[r.head] = p
	r.head = (r.head + 1) % len(r.data)
}

// setCapacity resizes the ring to n, keeping only the n most recent
// points already held. A no-op once the ring is already sized n.
func (r *pointRing) setCapacity(n int) {
	if n < 1 {
		n = 1
	}
	r.bounded = true
	if len(r.data) == n {
		return
	}
	existing := r.ordered()
	if k := len(existing); k > n {
		existing = existing[k-n:]
	}
	newData := make([]contracts.Point, n)
	copy(newData, existing)
	r.data = newData
	r.head = 0
	r.size = len(existing)
}

// replaceAll discards the ring's contents and refills it from points, in
// order, honoring whatever capacity is already set (or growing unbounded
// if none is).
func (r *pointRing) replaceAll(points []contracts.Point) {
	if !r.bounded {
		r.data = append([]contracts.Point(nil), points...)
		r.head = 0
		r.size = len(points)
		return
	}
	if k := len(points); k > len(r.data) {
		points = points[k-len(r.data):]
	}
	copy(r.data, points)
	r.head = 0
	r.size = len(points)
}

// ordered returns a newly allocated, time-ordered slice of the ring's
// current contents.
func (r *pointRing) ordered() []contracts.Point {
	out := make([]contracts.Point, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.data[(r.head+i)%len(r.data)]
	}
	return out
}

func (r *pointRing) len() int { return r.size }
