package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "crowsnest"

var (
	CandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Crawled candidates by final outcome",
		},
		[]string{"kind", "outcome"}, // kind: news|reels
	)

	DedupRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_rejections_total",
			Help:      "Candidates rejected by a duplicate gate",
		},
		[]string{"reason"},
	)

	RewritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewrites_total",
			Help:      "Rewrite attempts by mode and status",
		},
		[]string{"mode", "status"},
	)

	ImagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_total",
			Help:      "Processed images by result",
		},
		[]string{"result"}, // kept, failed, duplicate
	)

	PublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Queue publishes by status",
		},
		[]string{"kind", "status"}, // status: success, failed, debug
	)

	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of crawl cycles",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34m
		},
		[]string{"kind"},
	)

	CrawlErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crawl_errors_total",
			Help:      "Source crawl failures",
		},
		[]string{"kind"},
	)

	SinkErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Log sink delivery failures",
		},
		[]string{"sink"},
	)

	HubConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Connected WebSocket log viewers",
		},
	)

	HubMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket frames by outcome",
		},
		[]string{"outcome"}, // sent, dropped
	)
)

var (
	depthMu    sync.Mutex
	depthFuncs = map[string]func() int{}
)

// RegisterQueueDepth exposes a queue length as a gauge. Registering the
// same kind again swaps the source function.
func RegisterQueueDepth(kind string, depth func() int) {
	depthMu.Lock()
	defer depthMu.Unlock()
	_, exists := depthFuncs[kind]
	depthFuncs[kind] = depth
	if exists {
		return
	}
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "queue_depth",
		Help:        "Posts waiting to be published",
		ConstLabels: prometheus.Labels{"kind": kind},
	}, func() float64 {
		depthMu.Lock()
		fn := depthFuncs[kind]
		depthMu.Unlock()
		if fn == nil {
			return 0
		}
		return float64(fn())
	})
}
