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

import "github.com/twinleaf/trendline/internal/contracts"

func (s *Store) bufferFor(key contracts.DataColumnId) (*columnBuffer, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	buf, ok := sh.buffers[key]
	return buf, ok
}

// GetDataAcrossSessionsForKeys returns, for each key with data, the samples
// in [tMin, tMax] stitched across any session boundaries that key's buffer
// has seen — the buffer itself never resets on a new session, so this is
// simply each key's ranged slice.
func (s *Store) GetDataAcrossSessionsForKeys(keys []contracts.DataColumnId, tMin, tMax float64) map[contracts.DataColumnId][]contracts.Point {
	out := make(map[contracts.DataColumnId][]contracts.Point, len(keys))
	for _, key := range keys {
		buf, ok := s.bufferFor(key)
		if !ok {
			continue
		}
		if pts := buf.rangeSlice(tMin, tMax); len(pts) > 0 {
			out[key] = pts
		}
	}
	return out
}

// GetLatestUnifiedTimestamp returns the minimum over keys of each key's
// most recent sample timestamp, and false if any key has no buffer or
// no samples yet. This is the anchor for a coherent multi-column
// window: the latest point in time that every requested key has
// actually reached, never a timestamp a slower or stalled column hasn't
// reached yet.
func (s *Store) GetLatestUnifiedTimestamp(keys []contracts.DataColumnId) (float64, bool) {
	var (
		min   float64
		found bool
	)
	for _, key := range keys {
		buf, ok := s.bufferFor(key)
		if !ok {
			return 0, false
		}
		p, ok := buf.last()
		if !ok {
			return 0, false
		}
		if !found || p.T < min {
			min = p.T
			found = true
		}
	}
	return min, found
}

// InterpolateAt linearly interpolates the value of key at time t. It
// returns false when key has no data, t falls outside the buffer's
// recorded time range, or the two bracketing samples were captured in
// different sessions — interpolation never bridges a session boundary.
func (s *Store) InterpolateAt(key contracts.DataColumnId, t float64) (float64, bool) {
	buf, ok := s.bufferFor(key)
	if !ok {
		return 0, false
	}
	p0, p1, seg0, seg1, ok := buf.bracket(t)
	if !ok || seg0 != seg1 {
		return 0, false
	}
	if p0.T == p1.T {
		return p0.Y, true
	}
	frac := (t - p0.T) / (p1.T - p0.T)
	return p0.Y + frac*(p1.Y-p0.Y), true
}
