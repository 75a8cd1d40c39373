// Copyright 2025 Tom Barlow
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

package writer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flightrec_records_enqueued_total",
		Help: "Total execution records accepted by the writer",
	})

	recordsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flightrec_records_dropped_total",
		Help: "Total records dropped by reason (io_error, open_error)",
	}, []string{"reason"})

	batchesFlushed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flightrec_batches_flushed_total",
		Help: "Total record batches flushed to disk by trigger (size, timer, close)",
	}, []string{"trigger"})

	bytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flightrec_bytes_written_total",
		Help: "Total bytes appended to segment files",
	})

	segmentRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flightrec_segment_rotations_total",
		Help: "Total segment rotations caused by the size ceiling",
	})

	openSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flightrec_open_sessions",
		Help: "Sessions with an active write target",
	})
)
