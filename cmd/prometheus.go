package cmd

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jeremyverde/app-sim/sim"
)

// reportMetrics holds the Prometheus collectors a finished run is exported through.
type reportMetrics struct {
	registry *prometheus.Registry

	totalRequests     prometheus.Gauge
	droppedRequests   prometheus.Gauge
	admitted          prometheus.Gauge
	completed         prometheus.Gauge
	inFlight          prometheus.Gauge
	avgResponseTime   prometheus.Gauge
	dropRate          prometheus.Gauge
	latency           *prometheus.GaugeVec
	simEndedTime      prometheus.Gauge
	eventsProcessed   prometheus.Gauge
	serverLoad        *prometheus.GaugeVec
	serverCompleted   *prometheus.GaugeVec
	serverMeanLatency *prometheus.GaugeVec
	serverHealthy     *prometheus.GaugeVec
}

func newReportMetrics() *reportMetrics {
	m := &reportMetrics{
		registry: prometheus.NewRegistry(),
		totalRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lbsim_requests_total",
			Help: "Requests that arrived before the end of the run",
		}),
		droppedRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lbsim_requests_dropped",
			Help: "Requests rejected by admission control",
		}),
		admitted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lbsim_requests_admitted",
			Help: "Requests admitted to a server",
		}),
		completed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lbsim_requests_completed",
			Help: "Requests whose completion was processed",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lbsim_requests_in_flight",
			Help: "Admitted requests still in flight when the run ended",
		}),
		avgResponseTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lbsim_average_response_time_seconds",
			Help: "Sampled service time divided by total requests",
		}),
		dropRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lbsim_drop_ratio",
			Help: "Dropped requests divided by total requests",
		}),
		latency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lbsim_latency_seconds",
			Help: "End-to-end latency of completed requests",
		}, []string{"stat"}),
		simEndedTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lbsim_sim_ended_time_seconds",
			Help: "Simulated clock at the end of the run",
		}),
		eventsProcessed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lbsim_events_processed",
			Help: "Events dispatched to a handler",
		}),
		serverLoad: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lbsim_server_load",
			Help: "In-flight requests per server at the end of the run",
		}, []string{"server"}),
		serverCompleted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lbsim_server_requests_completed",
			Help: "Completed requests per server",
		}, []string{"server"}),
		serverMeanLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lbsim_server_mean_latency_seconds",
			Help: "Mean end-to-end latency per server",
		}, []string{"server"}),
		serverHealthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lbsim_server_healthy",
			Help: "Server health flag (1=healthy, 0=unhealthy)",
		}, []string{"server"}),
	}
	m.registry.MustRegister(
		m.totalRequests,
		m.droppedRequests,
		m.admitted,
		m.completed,
		m.inFlight,
		m.avgResponseTime,
		m.dropRate,
		m.latency,
		m.simEndedTime,
		m.eventsProcessed,
		m.serverLoad,
		m.serverCompleted,
		m.serverMeanLatency,
		m.serverHealthy,
	)
	return m
}

func (m *reportMetrics) update(r *sim.Report) {
	m.totalRequests.Set(float64(r.TotalRequests))
	m.droppedRequests.Set(float64(r.DroppedRequests))
	m.admitted.Set(float64(r.AdmittedRequests))
	m.completed.Set(float64(r.CompletedRequests))
	m.inFlight.Set(float64(r.InFlight))
	m.avgResponseTime.Set(r.AverageResponseTime)
	m.dropRate.Set(r.DropRate())
	m.simEndedTime.Set(r.SimEndedTime)
	m.eventsProcessed.Set(float64(r.EventsProcessed))

	m.latency.WithLabelValues("mean").Set(r.Latency.Mean)
	m.latency.WithLabelValues("p50").Set(r.Latency.P50)
	m.latency.WithLabelValues("p95").Set(r.Latency.P95)
	m.latency.WithLabelValues("p99").Set(r.Latency.P99)
	m.latency.WithLabelValues("max").Set(r.Latency.Max)

	for _, s := range r.PerServer {
		m.serverLoad.WithLabelValues(s.ID).Set(float64(s.FinalLoad))
		m.serverCompleted.WithLabelValues(s.ID).Set(float64(s.RequestsCompleted))
		m.serverMeanLatency.WithLabelValues(s.ID).Set(s.MeanLatency)
		if s.Healthy {
			m.serverHealthy.WithLabelValues(s.ID).Set(1.0)
		} else {
			m.serverHealthy.WithLabelValues(s.ID).Set(0.0)
		}
	}
}

// writeMetricsTextfile exports the report in Prometheus text format, e.g. for
// the node_exporter textfile collector.
func writeMetricsTextfile(path string, r *sim.Report) error {
	m := newReportMetrics()
	m.update(r)
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
