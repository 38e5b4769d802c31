// Package metrics exports Prometheus counters/gauges for the discovery and
// messaging subsystems, grounded on the teacher's
// cmd/syncthing/discosrv/stats.go init()-registered CounterVec/GaugeVec
// idiom.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	DiscoveryTicksSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lcpnode",
		Subsystem: "discovery",
		Name:      "ticks_sent_total",
		Help:      "Number of broadcast probe ticks sent.",
	})
	DiscoveryTicksReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lcpnode",
		Subsystem: "discovery",
		Name:      "ticks_received_total",
		Help:      "Number of Echo headers and responses received.",
	}, []string{"kind"})
	PeersOnline = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lcpnode",
		Subsystem: "discovery",
		Name:      "peers_online",
		Help:      "Number of peers seen within the online threshold at last snapshot.",
	})

	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lcpnode",
		Subsystem: "messaging",
		Name:      "messages_sent_total",
		Help:      "Number of text messages delivered successfully.",
	})
	MessagesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lcpnode",
		Subsystem: "messaging",
		Name:      "messages_received_total",
		Help:      "Number of text messages accepted and appended to history.",
	})
	MessagesFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lcpnode",
		Subsystem: "messaging",
		Name:      "messages_failed_total",
		Help:      "Number of send/send_file handshake stages that exhausted retries or were answered with a non-OK status.",
	}, []string{"stage"})
	RetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lcpnode",
		Subsystem: "messaging",
		Name:      "retries_total",
		Help:      "Number of send_and_wait retry attempts beyond the first.",
	})
	BytesTransferred = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lcpnode",
		Subsystem: "messaging",
		Name:      "bytes_transferred_total",
		Help:      "File bytes transferred, by direction.",
	}, []string{"direction"})
	PendingHeaderEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lcpnode",
		Subsystem: "messaging",
		Name:      "pending_header_evictions_total",
		Help:      "Number of file-transfer header handshakes that expired unclaimed.",
	})
)

func init() {
	prometheus.MustRegister(
		DiscoveryTicksSent, DiscoveryTicksReceived, PeersOnline,
		MessagesSent, MessagesReceived, MessagesFailed, RetriesTotal,
		BytesTransferred, PendingHeaderEvictions,
	)
}
