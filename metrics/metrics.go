// Package metrics defines prometheus metric types for the datapath and
// the control surface.
//
// When defining new operations or metrics, these are helpful values to
// track:
//   - things coming into or out of the system: PDUs, datagrams, control calls.
//   - the success or error status of any of the above.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PDUsReceived counts PDUs handed up from link drivers, by IP version.
	PDUsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inetd_pdus_received_total",
			Help: "Number of PDUs received from links.",
		}, []string{"version"})

	// PDUsSent counts PDUs handed down to link drivers, by IP version.
	PDUsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inetd_pdus_sent_total",
			Help: "Number of PDUs sent to links.",
		}, []string{"version"})

	// DecodeErrors counts ingress PDUs dropped because they failed to
	// decode. A corrupt PDU must never take the service down, so these
	// are counted and forgotten.
	DecodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inetd_decode_errors_total",
			Help: "Number of received PDUs dropped by the codec.",
		}, []string{"version"})

	// NotForUs counts ingress packets whose destination is not a local
	// address.
	NotForUs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inetd_not_for_us_total",
			Help: "Number of received packets not addressed to this host.",
		})

	// ReassembledTotal counts datagrams delivered by the reassembler.
	ReassembledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inetd_reassembled_total",
			Help: "Number of datagrams reassembled from fragments.",
		})

	// ReassemblyExpiredTotal counts reassembly groups dropped by aging.
	ReassemblyExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inetd_reassembly_expired_total",
			Help: "Number of incomplete reassembly groups dropped.",
		})

	// NDPSolicitations counts neighbour solicitations sent.
	NDPSolicitations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inetd_ndp_solicitations_total",
			Help: "Number of NDP neighbour solicitations sent.",
		})

	// NDPTimeouts counts neighbour translations that timed out.
	NDPTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inetd_ndp_timeouts_total",
			Help: "Number of neighbour translations that timed out.",
		})

	// EchoRequests counts ICMP/ICMPv6 echo requests answered, by version.
	EchoRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inetd_echo_requests_total",
			Help: "Number of ICMP echo requests answered.",
		}, []string{"version"})

	// ErrorCount measures the number of errors by type.
	// Example usage:
	//    metrics.ErrorCount.WithLabelValues("route").Inc()
	ErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inetd_error_total",
			Help: "The total number of errors encountered.",
		}, []string{"type"})

	// ControlCalls counts control-port calls by port and method.
	ControlCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inetd_control_calls_total",
			Help: "Number of control calls served.",
		}, []string{"port", "method"})

	// DatagramSizeHistogram tracks the payload size of routed datagrams.
	DatagramSizeHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inetd_datagram_size_bytes",
			Help:    "Routed datagram payload size distribution (bytes).",
			Buckets: prometheus.ExponentialBuckets(16, 2, 12),
		})
)
