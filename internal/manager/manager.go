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

// Package manager implements the pipeline manager: it owns one goroutine
// per live pipeline/statistics-provider, reconciles declarative plot
// configs into spawned/destroyed pipeline chains, and runs the 33ms
// UI-emitter goroutine that merges every plot's pipeline outputs into a
// single PlotData per tick.
//
// The goroutine-per-pipeline design and its ticker-driven background
// loop are grounded on a rate-limiter's worker pool: a bounded stopChan
// + sync.WaitGroup for graceful shutdown, select over a ticker and a
// stop signal.
package manager

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/twinleaf/trendline/internal/contracts"
	"github.com/twinleaf/trendline/internal/kernels"
	"github.com/twinleaf/trendline/internal/pipeline"
	"github.com/twinleaf/trendline/internal/telemetry/churn"
)

const (
	rootDataChannelCapacity    = 128
	derivedDataChannelCapacity = 1
	commandChannelCapacity     = 16
)

// CaptureStore is the slice of the capture store the manager needs: the
// pipeline.CaptureQuerier read methods plus subscription management.
// *capture.Store satisfies this without modification.
type CaptureStore interface {
	pipeline.CaptureQuerier
	Subscribe(key contracts.DataColumnId, subID int, ch chan contracts.BatchedData)
	Unsubscribe(key contracts.DataColumnId, subID int)
}

type threadKind int

const (
	threadRoot threadKind = iota
	threadDerived
	threadStatistics
)

type pipelineThread struct {
	cmdCh     chan pipeline.Command
	done      chan struct{}
	kind      threadKind
	subID     int
	sourceKey contracts.DataColumnId
}

// managedPlot tracks the pipeline ids backing one declarative plot
// config, mirroring the original's ManagedPlotPipeline.
type managedPlot struct {
	config            contracts.SharedPlotConfig
	outputPipelineIDs []contracts.PipelineId
	allComponentIDs   []contracts.PipelineId
}

// Manager is the pipeline manager. The zero value is not usable;
// construct with New.
type Manager struct {
	capture CaptureStore
	log     zerolog.Logger

	mu           sync.Mutex
	managedPlots map[string]*managedPlot
	stages       map[contracts.PipelineId]pipeline.Stage
	statProviders map[contracts.PipelineId]pipeline.StatisticsProvider
	threads      map[contracts.PipelineId]*pipelineThread

	nextSubID atomic.Int64

	emitterStop chan struct{}
	emitterDone chan struct{}
	emitInterval time.Duration

	plotSinks  map[string]chan contracts.PlotData
	statsSinks map[contracts.PipelineId]chan contracts.StreamStatistics

	closeOnce sync.Once
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithLogger overrides the zerolog.Logger used for lifecycle diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithEmitterInterval overrides the default 33ms UI-emitter tick.
func WithEmitterInterval(d time.Duration) Option {
	return func(m *Manager) { m.emitInterval = d }
}

// New constructs a Manager bound to capture and starts its UI-emitter
// goroutine. Call Close to stop it and tear down every managed pipeline.
func New(capture CaptureStore, opts ...Option) *Manager {
	m := &Manager{
		capture:       capture,
		log:           log.Logger,
		managedPlots:  make(map[string]*managedPlot),
		stages:        make(map[contracts.PipelineId]pipeline.Stage),
		statProviders: make(map[contracts.PipelineId]pipeline.StatisticsProvider),
		threads:       make(map[contracts.PipelineId]*pipelineThread),
		emitterStop:   make(chan struct{}),
		emitterDone:   make(chan struct{}),
		emitInterval:  33 * time.Millisecond,
		plotSinks:     make(map[string]chan contracts.PlotData),
		statsSinks:    make(map[contracts.PipelineId]chan contracts.StreamStatistics),
	}
	for _, o := range opts {
		o(m)
	}
	go m.runEmitter()
	return m
}

// RegisterPlotSink registers the channel that receives merged PlotData
// for plotID on every emitter tick in which the data is non-empty.
func (m *Manager) RegisterPlotSink(plotID string, ch chan contracts.PlotData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plotSinks[plotID] = ch
}

// RegisterStatisticsSink registers the channel that receives a
// statistics provider's output on every emitter tick.
func (m *Manager) RegisterStatisticsSink(providerID contracts.PipelineId, ch chan contracts.StreamStatistics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statsSinks[providerID] = ch
}

func (m *Manager) spawnRootPipeline(stage pipeline.Stage, sourceKey contracts.DataColumnId) contracts.PipelineId {
	id := stage.ID()
	dataCh := make(chan contracts.BatchedData, rootDataChannelCapacity)
	cmdCh := make(chan pipeline.Command, commandChannelCapacity)
	subID := int(m.nextSubID.Add(1))

	m.capture.Subscribe(sourceKey, subID, dataCh)
	cmdCh <- pipeline.Command{Kind: pipeline.CommandHydrate}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case batch, ok := <-dataCh:
				if !ok {
					return
				}
				stage.ProcessBatch(batch)
			case cmd, ok := <-cmdCh:
				if !ok {
					return
				}
				if cmd.Kind == pipeline.CommandShutdown {
					return
				}
				stage.ProcessCommand(cmd, m.capture)
			}
		}
	}()

	m.mu.Lock()
	m.stages[id] = stage
	m.threads[id] = &pipelineThread{cmdCh: cmdCh, done: done, kind: threadRoot, subID: subID, sourceKey: sourceKey}
	m.mu.Unlock()
	churn.ObserveSpawn(string(id))
	return id
}

func (m *Manager) spawnDerivedPipeline(stage pipeline.Stage) (contracts.PipelineId, chan<- pipeline.DerivedBatch) {
	id := stage.ID()
	dataCh := make(chan pipeline.DerivedBatch, derivedDataChannelCapacity)
	cmdCh := make(chan pipeline.Command, commandChannelCapacity)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case batch, ok := <-dataCh:
				if !ok {
					return
				}
				stage.ProcessDerivedBatch(batch)
			case cmd, ok := <-cmdCh:
				if !ok {
					return
				}
				if cmd.Kind == pipeline.CommandShutdown {
					return
				}
				stage.ProcessCommand(cmd, m.capture)
			}
		}
	}()

	m.mu.Lock()
	m.stages[id] = stage
	m.threads[id] = &pipelineThread{cmdCh: cmdCh, done: done, kind: threadDerived}
	m.mu.Unlock()
	churn.ObserveSpawn(string(id))
	return id, dataCh
}

// ApplyPlotConfig reconciles a declarative plot config: any existing
// pipelines for config.PlotID are torn down first, then one pipeline
// chain per data key is spawned according to the view kind.
func (m *Manager) ApplyPlotConfig(config contracts.SharedPlotConfig) ([]contracts.PipelineId, error) {
	if config.MaxSamplingRate == 0 {
		churn.ObserveSpawnError()
		return nil, contracts.NewError(contracts.ConfigInvalid, "max_sampling_rate must be non-zero")
	}

	m.destroyPlotComponents(config.PlotID)

	outputIDs := make([]contracts.PipelineId, 0, len(config.DataKeys))
	allIDs := make([]contracts.PipelineId, 0, len(config.DataKeys)*2)

	for _, key := range config.DataKeys {
		switch config.ViewConfig.Kind {
		case contracts.ViewTimeseries:
			id := m.createTimeseriesForPlot(key, config.ViewConfig.Timeseries, config.MaxSamplingRate)
			outputIDs = append(outputIDs, id)
			allIDs = append(allIDs, id)
		case contracts.ViewFft:
			fftID, detrendID, err := m.createFftChainForPlot(key, config.ViewConfig.Fft)
			if err != nil {
				return nil, err
			}
			outputIDs = append(outputIDs, fftID)
			allIDs = append(allIDs, detrendID, fftID)
		}
	}

	m.mu.Lock()
	m.managedPlots[config.PlotID] = &managedPlot{
		config:            config,
		outputPipelineIDs: outputIDs,
		allComponentIDs:   allIDs,
	}
	m.mu.Unlock()
	return outputIDs, nil
}

// fpcsRatio mirrors the original's decimation-ratio formula:
// round(maxSamplingRate*windowSeconds / (10*resolutionMultiplier)),
// floored at 1. Each FPCS window then spans that many raw samples, so a
// full configured window holds about 10*resolutionMultiplier of them.
func fpcsRatio(maxSamplingRate, windowSeconds float64, resolutionMultiplier int) int {
	if resolutionMultiplier <= 0 {
		resolutionMultiplier = 1
	}
	ratio := int((maxSamplingRate*windowSeconds)/(10*float64(resolutionMultiplier)) + 0.5)
	if ratio < 1 {
		ratio = 1
	}
	return ratio
}

func (m *Manager) createTimeseriesForPlot(key contracts.DataColumnId, config contracts.TimeseriesConfig, maxSR float64) contracts.PipelineId {
	switch config.Decimation {
	case contracts.DecimationFpcs:
		ratio := fpcsRatio(maxSR, config.WindowSeconds, config.ResolutionMultiplier)
		stage := pipeline.NewFPCSStage(key, ratio, config.WindowSeconds)
		return m.spawnRootPipeline(stage, key)
	default:
		stage := pipeline.NewPassthroughStage(key, config.WindowSeconds)
		return m.spawnRootPipeline(stage, key)
	}
}

func (m *Manager) createFftChainForPlot(key contracts.DataColumnId, config contracts.FftConfig) (fftID, detrendID contracts.PipelineId, err error) {
	detrendStage := pipeline.NewDetrendStage(key, config.WindowSeconds, config.DetrendMethod)
	detrendID = m.spawnRootPipeline(detrendStage, key)

	spectralStage := pipeline.NewSpectralStage()
	fftID, fftInputCh := m.spawnDerivedPipeline(spectralStage)

	m.mu.Lock()
	thread, ok := m.threads[detrendID]
	m.mu.Unlock()
	if !ok {
		return "", "", contracts.NewError(contracts.InvariantViolated, "detrend thread not found immediately after spawn")
	}
	thread.cmdCh <- pipeline.Command{Kind: pipeline.CommandAddSubscriber, Subscriber: fftInputCh}
	return fftID, detrendID, nil
}

// DestroyPlotPipelines tears down every pipeline backing plotID and
// forgets its registered plot sink.
func (m *Manager) DestroyPlotPipelines(plotID string) {
	m.destroyPlotComponents(plotID)
	m.mu.Lock()
	delete(m.plotSinks, plotID)
	m.mu.Unlock()
}

func (m *Manager) destroyPlotComponents(plotID string) {
	m.mu.Lock()
	plot, ok := m.managedPlots[plotID]
	if ok {
		delete(m.managedPlots, plotID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	for i := len(plot.allComponentIDs) - 1; i >= 0; i-- {
		m.Destroy(plot.allComponentIDs[i])
	}
}

// CreateStatisticsProvider spawns a statistics provider over sourceKey
// and returns its id.
func (m *Manager) CreateStatisticsProvider(sourceKey contracts.DataColumnId, windowSeconds float64) contracts.PipelineId {
	provider := pipeline.NewStreamingStatisticsProvider(sourceKey, windowSeconds)
	id := provider.ID()

	dataCh := make(chan contracts.BatchedData, rootDataChannelCapacity)
	cmdCh := make(chan pipeline.Command, commandChannelCapacity)
	subID := int(m.nextSubID.Add(1))

	m.capture.Subscribe(sourceKey, subID, dataCh)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case batch, ok := <-dataCh:
				if !ok {
					return
				}
				provider.ProcessBatch(batch)
			case cmd, ok := <-cmdCh:
				if !ok {
					return
				}
				if cmd.Kind == pipeline.CommandShutdown {
					return
				}
				if cmd.Kind == pipeline.CommandResetSelf {
					provider.Reset(m.capture)
				}
			}
		}
	}()

	m.mu.Lock()
	m.statProviders[id] = provider
	m.threads[id] = &pipelineThread{cmdCh: cmdCh, done: done, kind: threadStatistics, subID: subID, sourceKey: sourceKey}
	m.mu.Unlock()
	churn.ObserveSpawn(string(id))
	return id
}

// ResetStatisticsProvider clears a provider's persistent accumulator.
func (m *Manager) ResetStatisticsProvider(id contracts.PipelineId) {
	m.mu.Lock()
	thread, ok := m.threads[id]
	m.mu.Unlock()
	if !ok {
		return
	}
	select {
	case thread.cmdCh <- pipeline.Command{Kind: pipeline.CommandResetSelf}:
	default:
	}
}

// Destroy stops and forgets the pipeline or statistics provider
// identified by id. Unknown ids are a no-op.
func (m *Manager) Destroy(id contracts.PipelineId) {
	m.mu.Lock()
	thread, ok := m.threads[id]
	if ok {
		delete(m.threads, id)
	}
	delete(m.stages, id)
	delete(m.statProviders, id)
	delete(m.statsSinks, id)
	m.mu.Unlock()
	if !ok {
		return
	}

	switch thread.kind {
	case threadRoot, threadStatistics:
		m.capture.Unsubscribe(thread.sourceKey, thread.subID)
	case threadDerived:
	}

	select {
	case thread.cmdCh <- pipeline.Command{Kind: pipeline.CommandShutdown}:
	default:
	}
	<-thread.done
	churn.ObserveDestroy(string(id))
}

func (m *Manager) getMergedDataForPlot(plotID string) (contracts.PlotData, bool) {
	m.mu.Lock()
	plot, ok := m.managedPlots[plotID]
	if !ok {
		m.mu.Unlock()
		return contracts.PlotData{}, false
	}
	outputs := make([]contracts.PlotData, 0, len(plot.outputPipelineIDs))
	for _, id := range plot.outputPipelineIDs {
		if stage, ok := m.stages[id]; ok {
			outputs = append(outputs, stage.GetOutput())
		}
	}
	m.mu.Unlock()

	if len(outputs) == 0 {
		return contracts.PlotData{}, false
	}
	return kernels.KWayMergePlotData(outputs), true
}

// runEmitter is the UI-emitter goroutine: every tick it merges each
// managed plot's pipeline outputs and advances every statistics
// provider, pushing non-empty results to their registered sinks.
func (m *Manager) runEmitter() {
	defer close(m.emitterDone)
	ticker := time.NewTicker(m.emitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.tickEmitter()
		case <-m.emitterStop:
			return
		}
	}
}

func (m *Manager) tickEmitter() {
	m.mu.Lock()
	plotIDs := make([]string, 0, len(m.managedPlots))
	for id := range m.managedPlots {
		plotIDs = append(plotIDs, id)
	}
	providerIDs := make([]contracts.PipelineId, 0, len(m.statProviders))
	for id := range m.statProviders {
		providerIDs = append(providerIDs, id)
	}
	m.mu.Unlock()

	for _, plotID := range plotIDs {
		data, ok := m.getMergedDataForPlot(plotID)
		if !ok || data.IsEmpty() {
			continue
		}
		m.mu.Lock()
		sink, hasSink := m.plotSinks[plotID]
		m.mu.Unlock()
		if !hasSink {
			continue
		}
		select {
		case sink <- data:
		default:
		}
	}

	for _, id := range providerIDs {
		m.mu.Lock()
		provider, ok := m.statProviders[id]
		sink, hasSink := m.statsSinks[id]
		m.mu.Unlock()
		if !ok {
			continue
		}
		provider.Update(m.capture)
		if !hasSink {
			continue
		}
		select {
		case sink <- provider.GetOutput():
		default:
		}
	}
}

// Close stops the UI-emitter goroutine and tears down every managed
// plot and statistics provider.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.emitterStop) })
	<-m.emitterDone

	m.mu.Lock()
	plotIDs := make([]string, 0, len(m.managedPlots))
	for id := range m.managedPlots {
		plotIDs = append(plotIDs, id)
	}
	providerIDs := make([]contracts.PipelineId, 0, len(m.statProviders))
	for id := range m.statProviders {
		providerIDs = append(providerIDs, id)
	}
	m.mu.Unlock()

	for _, id := range plotIDs {
		m.destroyPlotComponents(id)
	}
	for _, id := range providerIDs {
		m.Destroy(id)
	}
}
