package transport

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts datagram traffic. A nil *Metrics records nothing.
type Metrics struct {
	Datagrams  *prometheus.CounterVec
	Bytes      *prometheus.CounterVec
	SendErrors prometheus.Counter
}

// Label values for the direction label.
const (
	directionSent     = "sent"
	directionReceived = "received"
)

// NewMetrics creates transport metrics and registers them on reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Datagrams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcsync",
			Subsystem: "transport",
			Name:      "datagrams_total",
			Help:      "Datagrams sent and received.",
		}, []string{"direction"}),
		Bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcsync",
			Subsystem: "transport",
			Name:      "bytes_total",
			Help:      "Datagram bytes sent and received.",
		}, []string{"direction"}),
		SendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mcsync",
			Subsystem: "transport",
			Name:      "send_errors_total",
			Help:      "Datagrams the connection failed to write.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Datagrams, m.Bytes, m.SendErrors)
	}
	return m
}

func (m *Metrics) sent(n int) {
	if m == nil {
		return
	}
	m.Datagrams.WithLabelValues(directionSent).Inc()
	m.Bytes.WithLabelValues(directionSent).Add(float64(n))
}

func (m *Metrics) received(n int) {
	if m == nil {
		return
	}
	m.Datagrams.WithLabelValues(directionReceived).Inc()
	m.Bytes.WithLabelValues(directionReceived).Add(float64(n))
}

func (m *Metrics) sendFailed() {
	if m == nil {
		return
	}
	m.SendErrors.Inc()
}
