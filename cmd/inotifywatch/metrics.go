package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "notify",
	Subsystem: "inotifywatch",
	Name:      "events_total",
	Help:      "Total number of events seen on watched paths, by kind",
}, []string{"kind"})
