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

// Package bus republishes the pipeline manager's internal Go channels
// onto NATS subjects, so an out-of-process front-end can consume plot
// data and statistics without linking against this module. The
// manager's channels remain the ground truth: this package is a pure
// fan-out adapter, never a second source of state.
//
// Grounded on ClusterCockpit-cc-backend's pkg/nats client wrapper
// (connection management, reconnect/error handlers via nats-io/nats.go
// options), generalized from its generic publish/subscribe shape to
// two fixed subject families.
package bus

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/twinleaf/trendline/internal/contracts"
)

// Config configures the NATS connection used to republish engine
// output.
type Config struct {
	Address       string // e.g. "nats://localhost:4222"
	Username      string
	Password      string
	CredsFilePath string
}

const (
	plotSubjectPrefix  = "trendline.plot."
	statsSubjectPrefix = "trendline.stats."
)

// PlotSubject returns the NATS subject a plot's output is published on.
func PlotSubject(plotID string) string { return plotSubjectPrefix + plotID }

// StatsSubject returns the NATS subject a statistics provider's output
// is published on.
func StatsSubject(providerID contracts.PipelineId) string {
	return statsSubjectPrefix + string(providerID)
}

// Publisher wraps a NATS connection and range-loops manager output
// channels onto subjects, marshaling each message as JSON.
type Publisher struct {
	conn *nats.Conn
	log  zerolog.Logger

	wg sync.WaitGroup
}

// Connect dials the configured NATS server. Safe to call once per
// Publisher.
func Connect(cfg Config, opts ...Option) (*Publisher, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("bus: address is required")
	}

	p := &Publisher{log: log.Logger}
	for _, o := range opts {
		o(p)
	}

	var natsOpts []nats.Option
	if cfg.Username != "" && cfg.Password != "" {
		natsOpts = append(natsOpts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.CredsFilePath != "" {
		natsOpts = append(natsOpts, nats.UserCredentials(cfg.CredsFilePath))
	}
	natsOpts = append(natsOpts,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				p.log.Warn().Err(err).Msg("bus: nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			p.log.Info().Str("url", nc.ConnectedUrl()).Msg("bus: nats reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			p.log.Error().Err(err).Msg("bus: nats error")
		}),
	)

	nc, err := nats.Connect(cfg.Address, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("bus: connect failed: %w", err)
	}
	p.conn = nc
	return p, nil
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger overrides the logger used for connection events and
// publish failures.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Publisher) { p.log = l }
}

// PublishPlots range-loops ch, publishing each PlotData onto
// PlotSubject(plotID) as JSON, until ch is closed. Marshal or publish
// failures are logged and skipped; they never block the loop.
func (p *Publisher) PublishPlots(plotID string, ch <-chan contracts.PlotData) {
	subject := PlotSubject(plotID)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for data := range ch {
			p.publish(subject, data)
		}
	}()
}

// PublishStats range-loops ch, publishing each StreamStatistics onto
// StatsSubject(providerID) as JSON, until ch is closed.
func (p *Publisher) PublishStats(providerID contracts.PipelineId, ch <-chan contracts.StreamStatistics) {
	subject := StatsSubject(providerID)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for data := range ch {
			p.publish(subject, data)
		}
	}()
}

func (p *Publisher) publish(subject string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.log.Error().Err(err).Str("subject", subject).Msg("bus: marshal failed")
		return
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		p.log.Warn().Err(err).Str("subject", subject).Msg("bus: publish failed")
	}
}

// Close flushes pending publishes, waits for republishing goroutines
// started by PublishPlots/PublishStats to drain (their source channels
// must already be closed by the caller), and closes the NATS
// connection.
func (p *Publisher) Close() {
	_ = p.conn.Flush()
	p.wg.Wait()
	p.conn.Close()
}
