package authz

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector records what the authorizer sees on the wire.
type MetricsCollector interface {
	RecordRequest(authenticated bool)
	RecordResponse(statusCode int)
	RecordTransportError()
	RecordInvalidation()
}

type noopCollector struct{}

func (noopCollector) RecordRequest(bool)    {}
func (noopCollector) RecordResponse(int)    {}
func (noopCollector) RecordTransportError() {}
func (noopCollector) RecordInvalidation()   {}

// Collector is the Prometheus implementation of MetricsCollector.
type Collector struct {
	requests      *prometheus.CounterVec
	responses     *prometheus.CounterVec
	invalidations prometheus.Counter
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskdesk_client_requests_total",
			Help: "Outgoing API requests by whether a bearer credential was attached.",
		}, []string{"outcome"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskdesk_client_responses_total",
			Help: "API responses by status class, or error when no response arrived.",
		}, []string{"class"}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskdesk_client_invalidations_total",
			Help: "Sessions invalidated by a 401 on a protected request.",
		}),
	}

	reg.MustRegister(c.requests, c.responses, c.invalidations)
	return c
}

func (c *Collector) RecordRequest(authenticated bool) {
	outcome := "anonymous"
	if authenticated {
		outcome = "authenticated"
	}
	c.requests.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordResponse(statusCode int) {
	c.responses.WithLabelValues(statusClass(statusCode)).Inc()
}

func (c *Collector) RecordTransportError() {
	c.responses.WithLabelValues("error").Inc()
}

func (c *Collector) RecordInvalidation() {
	c.invalidations.Inc()
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}
