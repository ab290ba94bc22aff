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

import "sync"

// DoubleBuffer is a thread-safe double-buffered container: writers build
// up the next value in the back buffer and swap it into place under the
// write lock, so readers never observe a partially-written value; a
// reader that arrives while a write is in progress waits for it to
// finish.
type DoubleBuffer[T any] struct {
	mu    sync.RWMutex
	front T
	back  T
}

// WriteWith gives the writer mutable access to the back buffer; once the
// closure returns, the back buffer becomes the new front buffer.
func (d *DoubleBuffer[T]) WriteWith(writer func(back *T)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	writer(&d.back)
	d.front, d.back = d.back, d.front
}

// ReadWith gives the reader read-only access to the current front buffer.
func (d *DoubleBuffer[T]) ReadWith(reader func(front *T)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	reader(&d.front)
}

// Load returns a copy of the current front buffer.
func (d *DoubleBuffer[T]) Load() T {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.front
}
