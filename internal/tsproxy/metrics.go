package tsproxy

//
// Metrics definitions
//

import (
	"time"

	"github.com/netshape/tsproxy/internal/resolver"
	"github.com/netshape/tsproxy/internal/shaping"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricsSummaryObjectives returns the summary objectives for promauto.NewSummaryVec.
func metricsSummaryObjectives() map[float64]float64 {
	return map[float64]float64{
		0.5:  0.010,
		0.9:  0.010,
		0.99: 0.001,
	}
}

var (
	// metricConnectionsAccepted counts the accepted client connections.
	metricConnectionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tsproxy_connections_accepted_count",
		Help: "Total number of accepted client connections",
	})

	// metricConnectionsActive gauges the connections in the registry.
	metricConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tsproxy_connections_active_gauge",
		Help: "The number of connections currently in the registry",
	})

	// metricDeliveredBytes counts the payload bytes released by each pipe.
	metricDeliveredBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tsproxy_pipe_delivered_bytes_count",
		Help: "Total number of payload bytes delivered by each pipe",
	}, []string{"direction"})

	// metricDeliveredMessages counts the messages released by each pipe.
	metricDeliveredMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tsproxy_pipe_delivered_messages_count",
		Help: "Total number of messages delivered by each pipe",
	}, []string{"direction", "kind"})

	// metricQueueingDelaySeconds summarizes the time messages spend inside each pipe.
	metricQueueingDelaySeconds = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Name:       "tsproxy_pipe_queueing_delay_seconds",
		Help:       "Summarizes the time between enqueue and delivery (in seconds)",
		Objectives: metricsSummaryObjectives(),
	}, []string{"direction"})

	// metricDNSLookups counts the DNS lookups by result.
	metricDNSLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tsproxy_dns_lookups_count",
		Help: "Total number of DNS lookups by result",
	}, []string{"result"})
)

// metricsObserver feeds the pipe and resolver events into the metrics.
type metricsObserver struct{}

var (
	_ shaping.Observer  = metricsObserver{}
	_ resolver.Observer = metricsObserver{}
)

// OnDeliver implements shaping.Observer.
func (metricsObserver) OnDeliver(direction shaping.Direction, msg shaping.Message, queued time.Duration) {
	dir := direction.String()
	metricDeliveredMessages.WithLabelValues(dir, msg.Kind().String()).Inc()
	metricDeliveredBytes.WithLabelValues(dir).Add(float64(msg.Size()))
	metricQueueingDelaySeconds.WithLabelValues(dir).Observe(queued.Seconds())
}

// OnLookup implements resolver.Observer.
func (metricsObserver) OnLookup(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	metricDNSLookups.WithLabelValues(result).Inc()
}
