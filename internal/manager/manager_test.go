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

package manager

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/twinleaf/trendline/internal/contracts"
)

type fakeStore struct {
	mu   sync.Mutex
	subs map[contracts.DataColumnId]map[int]chan contracts.BatchedData

	samplingRate float64
	haveRate     bool
	latest       float64
	haveLatest   bool
	data         map[contracts.DataColumnId][]contracts.Point
}

func newFakeStore() *fakeStore {
	return &fakeStore{subs: make(map[contracts.DataColumnId]map[int]chan contracts.BatchedData)}
}

func (f *fakeStore) Subscribe(key contracts.DataColumnId, subID int, ch chan contracts.BatchedData) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs[key] == nil {
		f.subs[key] = make(map[int]chan contracts.BatchedData)
	}
	f.subs[key][subID] = ch
}

func (f *fakeStore) Unsubscribe(key contracts.DataColumnId, subID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs[key], subID)
}

func (f *fakeStore) GetEffectiveSamplingRate(contracts.StreamKey) (float64, bool) {
	return f.samplingRate, f.haveRate
}

func (f *fakeStore) GetLatestUnifiedTimestamp([]contracts.DataColumnId) (float64, bool) {
	return f.latest, f.haveLatest
}

func (f *fakeStore) GetDataAcrossSessionsForKeys(keys []contracts.DataColumnId, tMin, tMax float64) map[contracts.DataColumnId][]contracts.Point {
	return f.data
}

func testKey() contracts.DataColumnId {
	return contracts.DataColumnId{PortURL: "p", StreamID: "s", ColumnIndex: 0}
}

func TestApplyPlotConfigRejectsZeroMaxSamplingRate(t *testing.T) {
	m := New(newFakeStore(), WithEmitterInterval(time.Hour))
	defer m.Close()

	_, err := m.ApplyPlotConfig(contracts.SharedPlotConfig{PlotID: "p1", MaxSamplingRate: 0})
	require.ErrorIs(t, err, contracts.ErrConfigInvalid)
}

func TestApplyPlotConfigSpawnsPassthroughAndMergesOutput(t *testing.T) {
	store := newFakeStore()
	m := New(store, WithEmitterInterval(time.Hour))
	defer m.Close()

	key := testKey()
	cfg := contracts.SharedPlotConfig{
		PlotID:          "p1",
		DataKeys:        []contracts.DataColumnId{key},
		MaxSamplingRate: 100,
		ViewConfig: contracts.ViewConfig{
			Kind:       contracts.ViewTimeseries,
			Timeseries: contracts.TimeseriesConfig{WindowSeconds: 1, Decimation: contracts.DecimationNone},
		},
	}

	ids, err := m.ApplyPlotConfig(cfg)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	sink := make(chan contracts.PlotData, 1)
	m.RegisterPlotSink("p1", sink)

	store.mu.Lock()
	subs := store.subs[key]
	store.mu.Unlock()
	require.Len(t, subs, 1)
	var dataCh chan contracts.BatchedData
	for _, ch := range subs {
		dataCh = ch
	}
	dataCh <- contracts.BatchedData{Key: key, Points: []contracts.Point{{T: 1, Y: 5}}, TMax: 1}

	require.Eventually(t, func() bool {
		m.tickEmitter()
		select {
		case out := <-sink:
			return !out.IsEmpty()
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestApplyPlotConfigReplacesExistingPlot(t *testing.T) {
	store := newFakeStore()
	m := New(store, WithEmitterInterval(time.Hour))
	defer m.Close()

	key := testKey()
	cfg := contracts.SharedPlotConfig{
		PlotID:          "p1",
		DataKeys:        []contracts.DataColumnId{key},
		MaxSamplingRate: 100,
		ViewConfig:      contracts.ViewConfig{Kind: contracts.ViewTimeseries, Timeseries: contracts.TimeseriesConfig{WindowSeconds: 1}},
	}
	firstIDs, err := m.ApplyPlotConfig(cfg)
	require.NoError(t, err)

	secondIDs, err := m.ApplyPlotConfig(cfg)
	require.NoError(t, err)
	require.NotEqual(t, firstIDs[0], secondIDs[0])

	m.mu.Lock()
	_, stillExists := m.stages[firstIDs[0]]
	m.mu.Unlock()
	require.False(t, stillExists)
}

func TestCreateFftChainWiresDetrendToSpectral(t *testing.T) {
	store := newFakeStore()
	m := New(store, WithEmitterInterval(time.Hour))
	defer m.Close()

	key := testKey()
	cfg := contracts.SharedPlotConfig{
		PlotID:          "fft1",
		DataKeys:        []contracts.DataColumnId{key},
		MaxSamplingRate: 100,
		ViewConfig: contracts.ViewConfig{
			Kind: contracts.ViewFft,
			Fft:  contracts.FftConfig{WindowSeconds: 1, DetrendMethod: contracts.DetrendLinear},
		},
	}
	ids, err := m.ApplyPlotConfig(cfg)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	m.mu.Lock()
	plot := m.managedPlots["fft1"]
	m.mu.Unlock()
	require.Len(t, plot.allComponentIDs, 2)
}

func TestDestroyUnknownIDIsNoop(t *testing.T) {
	m := New(newFakeStore(), WithEmitterInterval(time.Hour))
	defer m.Close()
	m.Destroy("does-not-exist")
}

func TestCreateStatisticsProviderAndReset(t *testing.T) {
	store := newFakeStore()
	store.latest = 1
	store.haveLatest = true
	key := testKey()
	store.data = map[contracts.DataColumnId][]contracts.Point{key: {{T: 0, Y: 1}, {T: 1, Y: 3}}}

	m := New(store, WithEmitterInterval(time.Hour))
	defer m.Close()

	id := m.CreateStatisticsProvider(key, 1)
	m.tickEmitter()

	m.mu.Lock()
	provider := m.statProviders[id]
	m.mu.Unlock()
	require.NotZero(t, provider.GetOutput().Persistent.Count)

	m.ResetStatisticsProvider(id)
	require.Eventually(t, func() bool {
		m.mu.Lock()
		p := m.statProviders[id]
		m.mu.Unlock()
		return p.GetOutput().Persistent.Count == 0
	}, time.Second, 5*time.Millisecond)
}
