package ops

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetricsIncrementsCounters(t *testing.T) {
	var m PrometheusMetrics

	var before = testutil.ToFloat64(chunksIngestedCounter)
	m.IncChunksIngested()
	require.Equal(t, before+1, testutil.ToFloat64(chunksIngestedCounter))

	before = testutil.ToFloat64(overlapsDetectedCounter)
	m.IncOverlapsDetected()
	require.Equal(t, before+1, testutil.ToFloat64(overlapsDetectedCounter))

	before = testutil.ToFloat64(selfLinksDiscardedCounter)
	m.IncSelfLinksDiscarded()
	require.Equal(t, before+1, testutil.ToFloat64(selfLinksDiscardedCounter))

	before = testutil.ToFloat64(fragmentsLinkedCounter)
	m.IncFragmentsLinked()
	require.Equal(t, before+1, testutil.ToFloat64(fragmentsLinkedCounter))
}
