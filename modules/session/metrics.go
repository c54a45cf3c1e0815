package session

import "github.com/prometheus/client_golang/prometheus"

var (
	metricCommands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "radioplayer",
		Subsystem: "session",
		Name:      "commands_total",
		Help:      "Session commands by name and outcome.",
	}, []string{"command", "outcome"})

	metricPlayerErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "radioplayer",
		Subsystem: "session",
		Name:      "player_errors_total",
		Help:      "Errors reported by the audio player.",
	})

	metricAudioBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "radioplayer",
		Subsystem: "session",
		Name:      "audio_bytes_total",
		Help:      "Audio bytes received from the stream.",
	})
)

func init() {
	prometheus.MustRegister(metricCommands, metricPlayerErrors, metricAudioBytes)
}

func observe(command string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metricCommands.WithLabelValues(command, outcome).Inc()
}
