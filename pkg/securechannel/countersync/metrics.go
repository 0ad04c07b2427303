package countersync

import "github.com/prometheus/client_golang/prometheus"

// Response results.
const (
	resultSynced    = "synced"
	resultMismatch  = "mismatch"
	resultMalformed = "malformed"
	resultNoSession = "no_session"
)

// Pending table labels.
const (
	tableSend    = "send"
	tableReceive = "receive"
)

// Metrics are the counter synchronization collectors.
type Metrics struct {
	RequestsSent     prometheus.Counter
	RequestsAnswered prometheus.Counter
	Responses        *prometheus.CounterVec
	Timeouts         prometheus.Counter
	Released         *prometheus.CounterVec
	Pending          *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them on reg if non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mcsync",
			Subsystem: "countersync",
			Name:      "requests_sent_total",
			Help:      "MsgCounterSyncReq messages sent.",
		}),
		RequestsAnswered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mcsync",
			Subsystem: "countersync",
			Name:      "requests_answered_total",
			Help:      "MsgCounterSyncReq messages answered for peers.",
		}),
		Responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcsync",
			Subsystem: "countersync",
			Name:      "responses_total",
			Help:      "MsgCounterSyncRsp messages received, by outcome.",
		}, []string{"result"}),
		Timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mcsync",
			Subsystem: "countersync",
			Name:      "timeouts_total",
			Help:      "Synchronizations abandoned for lack of a response.",
		}),
		Released: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcsync",
			Subsystem: "countersync",
			Name:      "released_total",
			Help:      "Queued messages released after a successful sync.",
		}, []string{"table"}),
		Pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mcsync",
			Subsystem: "countersync",
			Name:      "pending_messages",
			Help:      "Messages waiting for counter synchronization.",
		}, []string{"table"}),
	}

	if reg != nil {
		reg.MustRegister(m.RequestsSent, m.RequestsAnswered, m.Responses, m.Timeouts, m.Released, m.Pending)
	}
	return m
}
