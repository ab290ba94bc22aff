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
	"time"

	"github.com/twinleaf/trendline/internal/contracts"
)

const (
	// fanoutInterval is the batching/fan-out cadence.
	fanoutInterval = 20 * time.Millisecond

	// briefBlockTimeout bounds how long the fan-out loop will wait for a
	// root (>1 slot) subscriber channel to drain before giving up and
	// dropping the batch: a single bounded wait followed by a drop,
	// rather than blocking the fan-out loop indefinitely on a slow
	// subscriber.
	briefBlockTimeout = 2 * time.Millisecond
)

type fanoutJob struct {
	key   contracts.DataColumnId
	batch contracts.BatchedData
	subs  []subscription
}

func (s *Store) runFanout() {
	defer close(s.fanoutDone)
	ticker := time.NewTicker(fanoutInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopFanout:
			return
		case <-ticker.C:
			s.tickFanout()
		}
	}
}

func (s *Store) tickFanout() {
	var tracked int
	for _, sh := range s.shards {
		sh.mu.Lock()
		tracked += len(sh.buffers)
		var jobs []fanoutJob
		for key, pts := range sh.pending {
			if len(pts) == 0 {
				continue
			}
			subs := sh.subs[key]
			if len(subs) == 0 {
				delete(sh.pending, key)
				continue
			}
			subsCopy := make([]subscription, len(subs))
			copy(subsCopy, subs)
			jobs = append(jobs, fanoutJob{
				key: key,
				batch: contracts.BatchedData{
					Key:    key,
					Points: pts,
					TMax:   pts[len(pts)-1].T,
				},
				subs: subsCopy,
			})
			delete(sh.pending, key)
		}
		sh.mu.Unlock()

		for _, j := range jobs {
			s.deliver(j)
		}
	}
	metricColumnsTracked.Set(float64(tracked))
}

func (s *Store) deliver(j fanoutJob) {
	for _, sub := range j.subs {
		if cap(sub.ch) <= 1 {
			select {
			case sub.ch <- j.batch:
				metricBatchesEmitted.Inc()
			default:
				metricSubscriberDropped.Inc()
			}
			continue
		}

		select {
		case sub.ch <- j.batch:
			metricBatchesEmitted.Inc()
		default:
			timer := time.NewTimer(briefBlockTimeout)
			select {
			case sub.ch <- j.batch:
				metricBatchesEmitted.Inc()
				timer.Stop()
			case <-timer.C:
				metricSubscriberDropped.Inc()
				s.log.Warn().
					Str("key", j.key.String()).
					Int("sub_id", sub.subID).
					Msg("subscriber channel full, dropping batch")
			}
		}
	}
}
