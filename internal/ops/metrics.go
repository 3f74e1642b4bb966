package ops

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hydrogen-go/timelinefill/internal/timeline"
)

var chunksIngestedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "timelinefill_chunks_ingested_total",
	Help: "counter of message chunks handed to the gap writer for fragment filling",
})

var overlapsDetectedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "timelinefill_overlaps_detected_total",
	Help: "counter of chunks in which a duplicate event bordering an existing fragment was found",
})

var selfLinksDiscardedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "timelinefill_self_links_discarded_total",
	Help: "counter of candidate fragment self-links discarded to avoid a zero-length cycle",
})

var fragmentsLinkedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "timelinefill_fragments_linked_total",
	Help: "counter of fragment pairs joined by a verified forward/backward link",
})

// PrometheusMetrics implements timeline.Metrics on top of package-level
// Prometheus counters, registered via promauto at package init.
type PrometheusMetrics struct{}

var _ timeline.Metrics = PrometheusMetrics{}

func (PrometheusMetrics) IncChunksIngested()     { chunksIngestedCounter.Inc() }
func (PrometheusMetrics) IncOverlapsDetected()   { overlapsDetectedCounter.Inc() }
func (PrometheusMetrics) IncSelfLinksDiscarded() { selfLinksDiscardedCounter.Inc() }
func (PrometheusMetrics) IncFragmentsLinked()    { fragmentsLinkedCounter.Inc() }
