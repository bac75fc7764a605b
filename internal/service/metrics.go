package service

import "github.com/prometheus/client_golang/prometheus"

const (
	resultSuccess  = "success"
	resultRejected = "rejected"
	resultFailed   = "failed"
)

// Metrics holds the domain counters exported by the services.
type Metrics struct {
	uploads *prometheus.CounterVec
}

// NewMetrics creates the service metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "document_uploads_total",
				Help: "Total number of document uploads by result.",
			},
			[]string{"result"},
		),
	}
	if err := reg.Register(m.uploads); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) upload(result string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(result).Inc()
}
