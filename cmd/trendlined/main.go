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

// Command trendlined runs the capture engine as a standalone daemon: a
// capture store, the pipeline manager, the HTTP control API, and an
// optional NATS republisher, wired together and torn down on SIGINT or
// SIGTERM.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/twinleaf/trendline/internal/api"
	"github.com/twinleaf/trendline/internal/bus"
	"github.com/twinleaf/trendline/internal/capture"
	"github.com/twinleaf/trendline/internal/contracts"
	"github.com/twinleaf/trendline/internal/manager"
	"github.com/twinleaf/trendline/internal/telemetry/churn"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("trendlined: fatal error")
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "trendlined",
		Short: "trendlined runs the capture-and-streaming engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v)
		},
	}

	flags := cmd.Flags()
	flags.String("http-addr", ":8090", "HTTP control API listen address")
	flags.Int("capture-capacity", capture.DefaultCapacity, "Per-column ring buffer capacity")
	flags.Int("capture-shards", 0, "Capture store shard count (0 uses the package default)")
	flags.Duration("emitter-interval", 33*time.Millisecond, "UI-emitter tick interval")
	flags.String("nats-address", "", "NATS server address (e.g. nats://localhost:4222); empty disables republishing")
	flags.String("nats-username", "", "NATS username, if the server requires auth")
	flags.String("nats-password", "", "NATS password, if the server requires auth")
	flags.String("nats-creds-file", "", "Path to a NATS .creds file, as an alternative to username/password")
	flags.Bool("churn-metrics", false, "Enable in-process pipeline churn telemetry (opt-in)")
	flags.Float64("churn-sample", 1.0, "Deterministic per-pipeline sampling rate for churn telemetry (0..1)")
	flags.Duration("churn-log-interval", 15*time.Second, "If > 0, periodically log a churn summary")
	flags.Duration("churn-window", time.Minute, "Rolling window the churn ratio is computed over")
	flags.String("log-level", "info", "Minimum zerolog level (debug, info, warn, error)")
	flags.String("config", "", "Optional config file (yaml/json/toml) overriding flag defaults")

	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("trendlined")
	v.AutomaticEnv()

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if path := v.GetString("config"); path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("trendlined: reading config file: %w", err)
			}
		}
		return nil
	}

	return cmd
}

func run(v *viper.Viper) error {
	configureLogger(v.GetString("log-level"))
	churn.SetLogger(log.Logger)

	churn.Enable(churn.Config{
		Enabled:     v.GetBool("churn-metrics"),
		SampleRate:  v.GetFloat64("churn-sample"),
		LogInterval: v.GetDuration("churn-log-interval"),
		Window:      v.GetDuration("churn-window"),
	})

	captureOpts := []capture.Option{capture.WithCapacity(v.GetInt("capture-capacity")), capture.WithLogger(log.Logger)}
	if shards := v.GetInt("capture-shards"); shards > 0 {
		captureOpts = append(captureOpts, capture.WithShardCount(shards))
	}
	store := capture.New(captureOpts...)
	defer store.Close()

	mgr := manager.New(store, manager.WithLogger(log.Logger), manager.WithEmitterInterval(v.GetDuration("emitter-interval")))

	var publisher *bus.Publisher
	if addr := v.GetString("nats-address"); addr != "" {
		p, err := bus.Connect(bus.Config{
			Address:       addr,
			Username:      v.GetString("nats-username"),
			Password:      v.GetString("nats-password"),
			CredsFilePath: v.GetString("nats-creds-file"),
		}, bus.WithLogger(log.Logger))
		if err != nil {
			return fmt.Errorf("trendlined: connecting to nats: %w", err)
		}
		publisher = p
	}

	plotManager := newBusBackedManager(mgr, publisher)

	server := api.NewServer(store, plotManager, api.WithLogger(log.Logger))
	router := mux.NewRouter()
	server.MountRoutes(router)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	httpAddr := v.GetString("http-addr")
	httpServer := &http.Server{Addr: httpAddr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpAddr).Msg("trendlined: control API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("trendlined: shutting down")
	case err := <-errCh:
		return fmt.Errorf("trendlined: control API failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("trendlined: http shutdown: %w", err)
	}

	// mgr.Close stops the emitter goroutine and waits for it before
	// returning, so no send to a sink channel can race the channel
	// closes below.
	mgr.Close()
	plotManager.Close()
	if publisher != nil {
		publisher.Close()
	}
	return nil
}

func configureLogger(level string) {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		l = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(l)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}

// busBackedManager adapts *manager.Manager to api.PlotManager, additionally
// bridging every plot's and statistics provider's output channel onto the
// NATS bus (when one is configured) for the lifetime of that pipeline.
// The manager's registered-sink channels are pure fan-out targets; this
// type owns their lifecycle so a replaced or destroyed plot doesn't leak
// its previous publishing goroutine.
type busBackedManager struct {
	mgr       *manager.Manager
	publisher *bus.Publisher

	mu         sync.Mutex
	plotChans  map[string]chan contracts.PlotData
	statsChans map[contracts.PipelineId]chan contracts.StreamStatistics
}

func newBusBackedManager(mgr *manager.Manager, publisher *bus.Publisher) *busBackedManager {
	return &busBackedManager{
		mgr:        mgr,
		publisher:  publisher,
		plotChans:  make(map[string]chan contracts.PlotData),
		statsChans: make(map[contracts.PipelineId]chan contracts.StreamStatistics),
	}
}

func (b *busBackedManager) ApplyPlotConfig(config contracts.SharedPlotConfig) ([]contracts.PipelineId, error) {
	ids, err := b.mgr.ApplyPlotConfig(config)
	if err != nil {
		return nil, err
	}
	if b.publisher != nil {
		b.mu.Lock()
		if old, ok := b.plotChans[config.PlotID]; ok {
			close(old)
		}
		ch := make(chan contracts.PlotData, 8)
		b.plotChans[config.PlotID] = ch
		b.mu.Unlock()
		b.mgr.RegisterPlotSink(config.PlotID, ch)
		b.publisher.PublishPlots(config.PlotID, ch)
	}
	return ids, nil
}

func (b *busBackedManager) DestroyPlotPipelines(plotID string) {
	b.mgr.DestroyPlotPipelines(plotID)
	if b.publisher == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.plotChans[plotID]; ok {
		close(ch)
		delete(b.plotChans, plotID)
	}
}

func (b *busBackedManager) CreateStatisticsProvider(sourceKey contracts.DataColumnId, windowSeconds float64) contracts.PipelineId {
	id := b.mgr.CreateStatisticsProvider(sourceKey, windowSeconds)
	if b.publisher != nil {
		ch := make(chan contracts.StreamStatistics, 8)
		b.mu.Lock()
		b.statsChans[id] = ch
		b.mu.Unlock()
		b.mgr.RegisterStatisticsSink(id, ch)
		b.publisher.PublishStats(id, ch)
	}
	return id
}

func (b *busBackedManager) ResetStatisticsProvider(id contracts.PipelineId) {
	b.mgr.ResetStatisticsProvider(id)
}

func (b *busBackedManager) Destroy(id contracts.PipelineId) {
	b.mgr.Destroy(id)
	if b.publisher == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.statsChans[id]; ok {
		close(ch)
		delete(b.statsChans, id)
	}
}

// Close tears down every channel this wrapper owns. Called after the
// underlying manager has already been closed.
func (b *busBackedManager) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.plotChans {
		close(ch)
		delete(b.plotChans, id)
	}
	for id, ch := range b.statsChans {
		close(ch)
		delete(b.statsChans, id)
	}
}
