package nowplaying

import "github.com/prometheus/client_golang/prometheus"

var (
	metricPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "radioplayer",
		Subsystem: "nowplaying",
		Name:      "published_total",
		Help:      "Tracks published to the now-playing surface and event stream.",
	})

	metricDuplicates = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "radioplayer",
		Subsystem: "nowplaying",
		Name:      "duplicates_total",
		Help:      "Metadata updates suppressed because the track did not change.",
	})

	metricStale = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "radioplayer",
		Subsystem: "nowplaying",
		Name:      "stale_results_total",
		Help:      "Artwork resolutions discarded because a newer update superseded them.",
	})

	metricIgnored = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "radioplayer",
		Subsystem: "nowplaying",
		Name:      "ignored_stream_metadata_total",
		Help:      "In-stream metadata notifications that were not forwarded.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(metricPublished, metricDuplicates, metricStale, metricIgnored)
}
