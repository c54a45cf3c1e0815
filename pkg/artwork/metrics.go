package artwork

import "github.com/prometheus/client_golang/prometheus"

var (
	metricResolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "radioplayer",
		Subsystem: "artwork",
		Name:      "resolutions_total",
		Help:      "Artwork resolutions by outcome.",
	}, []string{"source", "outcome"})

	metricLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "radioplayer",
		Subsystem: "artwork",
		Name:      "lookups_total",
		Help:      "Online artwork lookups by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(metricResolutions, metricLookups)
}
