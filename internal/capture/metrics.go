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

import "github.com/prometheus/client_golang/prometheus"

var (
	metricPointsInserted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trendline_capture_points_inserted_total",
		Help: "Total points accepted into the capture store across all columns.",
	})
	metricPointsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trendline_capture_points_dropped_total",
		Help: "Total points dropped at admission because their key was not in the active set.",
	})
	metricBatchesEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trendline_capture_batches_emitted_total",
		Help: "Total BatchedData values delivered to subscribers.",
	})
	metricSubscriberDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trendline_capture_subscriber_batches_dropped_total",
		Help: "Total batches dropped because a subscriber channel was full.",
	})
	metricColumnsTracked = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trendline_capture_columns_tracked",
		Help: "Number of distinct DataColumnId keys currently holding a buffer.",
	})
)

func init() {
	prometheus.MustRegister(
		metricPointsInserted,
		metricPointsDropped,
		metricBatchesEmitted,
		metricSubscriberDropped,
		metricColumnsTracked,
	)
}
