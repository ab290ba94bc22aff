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

// Package capture implements the capture store: bounded per-column
// ring buffers fed by many producer goroutines, fanned out in batches to
// subscribing pipelines, gated by an active set per port. It is the
// single process-wide instance shared by reference throughout the
// engine's lifetime.
//
// Sharding follows a sync.Map-based sharded store, generalized to a
// fixed set of lock-sharded maps selected by rendezvous hashing
// (github.com/dgryski/go-rendezvous) so the single-writer/many-reader
// contract holds per shard rather than on one global lock.
package capture

import (
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/dgryski/go-rendezvous"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/twinleaf/trendline/internal/contracts"
)

const (
	// DefaultCapacity mirrors the original's "~1.2M points per column"
	// default (e.g. 1000 samples/sec * 60 sec * 20 min).
	DefaultCapacity = 1_200_000
	defaultShards   = 32
)

type subscription struct {
	subID int
	ch    chan contracts.BatchedData
}

type shard struct {
	mu      sync.RWMutex
	buffers map[contracts.DataColumnId]*columnBuffer
	pending map[contracts.DataColumnId][]contracts.Point
	subs    map[contracts.DataColumnId][]subscription
}

func newShard() *shard {
	return &shard{
		buffers: make(map[contracts.DataColumnId]*columnBuffer),
		pending: make(map[contracts.DataColumnId][]contracts.Point),
		subs:    make(map[contracts.DataColumnId][]subscription),
	}
}

// Store is the capture store. The zero value is not usable; construct
// with New (pass WithCapacity to set the per-column buffer capacity).
type Store struct {
	shards     []*shard
	rdv        *rendezvous.Rendezvous
	shardNames []string

	capacity int

	activeMu sync.RWMutex
	active   map[contracts.DataColumnId]struct{}
	byPort   map[string]map[contracts.DataColumnId]struct{}

	rateMu sync.RWMutex
	rates  map[contracts.StreamKey]float64

	portStateMu sync.RWMutex
	portState   map[string]contracts.PortState

	sessionMu  sync.RWMutex
	portEpoch  map[string]uint64

	columnMetaMu sync.RWMutex
	columnMeta   map[contracts.DataColumnId]contracts.ColumnMeta

	log zerolog.Logger

	stopFanout chan struct{}
	fanoutDone chan struct{}
	closeOnce  sync.Once
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithCapacity overrides the default per-column buffer capacity.
func WithCapacity(n int) Option {
	return func(s *Store) { s.capacity = n }
}

// WithShardCount overrides the default shard count. Must be a positive
// power of two for an even hash distribution; not validated strictly
// since misuse only degrades load-balance, never correctness.
func WithShardCount(n int) Option {
	return func(s *Store) {
		if n < 1 {
			n = 1
		}
		s.shardNames = make([]string, n)
		s.shards = make([]*shard, n)
	}
}

// WithLogger overrides the zerolog.Logger used for cold-path diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New constructs a Store and starts its background batching/fan-out loop.
// Call Close to stop it.
func New(opts ...Option) *Store {
	s := &Store{
		capacity:   DefaultCapacity,
		active:     make(map[contracts.DataColumnId]struct{}),
		byPort:     make(map[string]map[contracts.DataColumnId]struct{}),
		rates:      make(map[contracts.StreamKey]float64),
		portState:  make(map[string]contracts.PortState),
		portEpoch:  make(map[string]uint64),
		columnMeta: make(map[contracts.DataColumnId]contracts.ColumnMeta),
		log:        log.Logger,
		stopFanout: make(chan struct{}),
		fanoutDone: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.shards == nil {
		s.shardNames = make([]string, defaultShards)
		s.shards = make([]*shard, defaultShards)
	}
	for i := range s.shards {
		s.shards[i] = newShard()
		s.shardNames[i] = strconv.Itoa(i)
	}
	s.rdv = rendezvous.New(s.shardNames, fnvHash)

	go s.runFanout()
	return s
}

func fnvHash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

func (s *Store) shardFor(key contracts.DataColumnId) *shard {
	name := s.rdv.Lookup(key.String())
	for i, n := range s.shardNames {
		if n == name {
			return s.shards[i]
		}
	}
	// Unreachable in practice: Lookup always returns one of shardNames.
	return s.shards[0]
}

// Insert is the admission-gated append: points for keys outside the
// active set are dropped silently.
func (s *Store) Insert(key contracts.DataColumnId, p contracts.Point) {
	s.activeMu.RLock()
	_, active := s.active[key]
	s.activeMu.RUnlock()
	if !active {
		metricPointsDropped.Inc()
		return
	}

	epoch := s.epochFor(key.PortURL)

	sh := s.shardFor(key)
	sh.mu.Lock()
	buf, ok := sh.buffers[key]
	if !ok {
		buf = newColumnBuffer(s.capacity)
		sh.buffers[key] = buf
	}
	sh.pending[key] = append(sh.pending[key], p)
	sh.mu.Unlock()

	buf.push(p, epoch)
	metricPointsInserted.Inc()
}

// StartSession begins a new capture session for a port: subsequent
// inserts are tagged with a fresh epoch, so InterpolateAt and other
// cross-sample queries can detect and refuse to bridge a session
// boundary — interpolating across a session boundary returns none
// rather than a misleading blend of two disconnected runs.
func (s *Store) StartSession(portURL string) uint64 {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	s.portEpoch[portURL]++
	return s.portEpoch[portURL]
}

func (s *Store) epochFor(portURL string) uint64 {
	s.sessionMu.RLock()
	defer s.sessionMu.RUnlock()
	return s.portEpoch[portURL]
}

// SetActiveColumns atomically replaces the active set for a given port.
// Keys removed keep their subscriptions but stop accepting inserts; keys
// added begin capturing immediately.
func (s *Store) SetActiveColumns(portURL string, keys []contracts.DataColumnId) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()

	if old, ok := s.byPort[portURL]; ok {
		for k := range old {
			delete(s.active, k)
		}
	}
	next := make(map[contracts.DataColumnId]struct{}, len(keys))
	for _, k := range keys {
		next[k] = struct{}{}
		s.active[k] = struct{}{}
	}
	s.byPort[portURL] = next
}

// IsActive reports whether key currently accepts inserts.
func (s *Store) IsActive(key contracts.DataColumnId) bool {
	s.activeMu.RLock()
	defer s.activeMu.RUnlock()
	_, ok := s.active[key]
	return ok
}

// Subscribe registers a best-effort one-directional channel that receives
// BatchedData values for key. Idempotent: re-subscribing the same
// (key, subID) replaces the prior sender.
func (s *Store) Subscribe(key contracts.DataColumnId, subID int, ch chan contracts.BatchedData) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	subs := sh.subs[key]
	for i, sub := range subs {
		if sub.subID == subID {
			subs[i].ch = ch
			return
		}
	}
	sh.subs[key] = append(subs, subscription{subID: subID, ch: ch})
}

// Unsubscribe cancels a subscription. Unknown (key, subID) pairs are a
// no-op rather than an error.
func (s *Store) Unsubscribe(key contracts.DataColumnId, subID int) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	subs := sh.subs[key]
	for i, sub := range subs {
		if sub.subID == subID {
			sh.subs[key] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// ReportSamplingRate records the effective sampling rate most recently
// observed for a stream, as reported by the transport layer at discovery
// time.
func (s *Store) ReportSamplingRate(key contracts.StreamKey, hz float64) {
	s.rateMu.Lock()
	defer s.rateMu.Unlock()
	s.rates[key] = hz
}

// GetEffectiveSamplingRate returns the most recently observed sampling
// rate for stream, or false if none has been reported.
func (s *Store) GetEffectiveSamplingRate(stream contracts.StreamKey) (float64, bool) {
	s.rateMu.RLock()
	defer s.rateMu.RUnlock()
	hz, ok := s.rates[stream]
	return hz, ok
}

// ReportPortState records the latest connection state for a port, as
// reported by the transport layer. The engine never transitions this
// itself.
func (s *Store) ReportPortState(portURL string, state contracts.PortState) {
	s.portStateMu.Lock()
	defer s.portStateMu.Unlock()
	s.portState[portURL] = state
}

// GetPortState returns the last reported state for a port, or PortIdle if
// none has ever been reported.
func (s *Store) GetPortState(portURL string) contracts.PortState {
	s.portStateMu.RLock()
	defer s.portStateMu.RUnlock()
	return s.portState[portURL]
}

// ListPortStates returns a snapshot of every port's last-reported
// connection state, for the HTTP control API's read-only /ports
// endpoint.
func (s *Store) ListPortStates() map[string]contracts.PortState {
	s.portStateMu.RLock()
	defer s.portStateMu.RUnlock()
	out := make(map[string]contracts.PortState, len(s.portState))
	for k, v := range s.portState {
		out[k] = v
	}
	return out
}

// SetColumnMeta records the transport-reported metadata for key, used
// only for CSV export naming and numeric formatting decisions. The
// engine never fetches this itself — it is always passed in by the
// transport layer that discovered the column.
func (s *Store) SetColumnMeta(key contracts.DataColumnId, meta contracts.ColumnMeta) {
	s.columnMetaMu.Lock()
	defer s.columnMetaMu.Unlock()
	s.columnMeta[key] = meta
}

// GetColumnMeta returns the metadata most recently recorded for key, or
// false if none has been reported.
func (s *Store) GetColumnMeta(key contracts.DataColumnId) (contracts.ColumnMeta, bool) {
	s.columnMetaMu.RLock()
	defer s.columnMetaMu.RUnlock()
	meta, ok := s.columnMeta[key]
	return meta, ok
}

// Close stops the background batching/fan-out goroutine. Safe to call
// once; the store's data remains readable afterward.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.stopFanout) })
	<-s.fanoutDone
}

// columnLen exposes the current sample count for a key, for tests.
func (s *Store) columnLen(key contracts.DataColumnId) int {
	sh := s.shardFor(key)
	sh.mu.RLock()
	buf, ok := sh.buffers[key]
	sh.mu.RUnlock()
	if !ok {
		return 0
	}
	return buf.len()
}
