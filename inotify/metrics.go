package inotify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notify",
		Subsystem: "inotify",
		Name:      "reads_total",
		Help:      "Total number of reads from inotify instances",
	}, []string{"mode", "result"})
	metricBytesRead = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "notify",
		Subsystem: "inotify",
		Name:      "read_bytes_total",
		Help:      "Total number of bytes read from inotify instances",
	})
	metricRecordsDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "notify",
		Subsystem: "inotify",
		Name:      "events_total",
		Help:      "Total number of events decoded",
	})
	metricQueueOverflows = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "notify",
		Subsystem: "inotify",
		Name:      "queue_overflows_total",
		Help:      "Total number of queue overflow records seen",
	})
	metricWatchOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notify",
		Subsystem: "inotify",
		Name:      "watch_operations_total",
		Help:      "Total number of watch additions and removals",
	}, []string{"operation", "result"})
	metricStreamSuspensions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "notify",
		Subsystem: "inotify",
		Name:      "stream_suspensions_total",
		Help:      "Total number of times an event stream waited for readiness",
	})
)
