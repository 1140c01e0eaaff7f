// Package metrics holds the Prometheus collectors shared by the aggregator components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rssreader"

var (
	ProxyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "proxy_requests_total",
		Help:      "Proxy fetches by outcome",
	}, []string{"outcome"})

	ProxyRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "proxy_request_duration_seconds",
		Help:      "Latency of a single proxy round trip",
		Buckets:   prometheus.DefBuckets,
	})

	Ingestions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingestions_total",
		Help:      "Feed submissions by resulting error kind, ok for success",
	}, []string{"result"})

	PollCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_cycles_total",
		Help:      "Polling cycles by outcome",
	}, []string{"outcome"})

	PolledPosts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_new_posts_total",
		Help:      "Posts merged by the polling engine",
	})

	Renders = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "renders_total",
		Help:      "Region re-renders",
	}, []string{"region"})

	LiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "live_clients",
		Help:      "Connected websocket clients",
	})
)
