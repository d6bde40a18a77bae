// Package metrics exposes a prometheus.Collector over a set of live
// session.Session values, the way TCPInfoCollector in the reference exporter
// walks a set of net.Conn values under a mutex: Add/Remove track which
// sessions exist, and Collect reads their protocol-level counters without
// touching the sessions themselves from another goroutine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"

	"github.com/fastybird-io/gotuya/session"
)

const namespace = "tuya"

// SessionCollector reports protocol-level counters for every session it is
// tracking: connected state, reconnects, heartbeats sent, and the current
// sequence number. It does not read raw socket statistics (tcpinfo and
// similar are out of scope here, unlike the exporter it is grounded on)
// since session already tracks everything this collector needs.
type SessionCollector struct {
	mu       sync.Mutex
	sessions map[xid.ID]*session.Session
	labels   map[xid.ID]string

	connected      *prometheus.Desc
	reconnects     *prometheus.Desc
	heartbeatsSent *prometheus.Desc
	sequence       *prometheus.Desc
}

// NewSessionCollector builds a collector with no sessions registered yet.
func NewSessionCollector() *SessionCollector {
	variableLabels := []string{"session"}
	return &SessionCollector{
		sessions: make(map[xid.ID]*session.Session),
		labels:   make(map[xid.ID]string),

		connected: prometheus.NewDesc(
			namespace+"_session_connected",
			"1 if the session's TCP endpoint is currently open, 0 otherwise.",
			variableLabels, nil,
		),
		reconnects: prometheus.NewDesc(
			namespace+"_session_reconnects_total",
			"Number of times this session has torn down and rebuilt its socket.",
			variableLabels, nil,
		),
		heartbeatsSent: prometheus.NewDesc(
			namespace+"_session_heartbeats_sent_total",
			"Number of HEART_BEAT requests this session has issued.",
			variableLabels, nil,
		),
		sequence: prometheus.NewDesc(
			namespace+"_session_sequence",
			"Current outgoing sequence number for this session.",
			variableLabels, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *SessionCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.connected
	descs <- c.reconnects
	descs <- c.heartbeatsSent
	descs <- c.sequence
}

// Collect implements prometheus.Collector, reading every tracked session's
// counters under the collector's own lock.
func (c *SessionCollector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, s := range c.sessions {
		label := c.labels[id]

		connectedValue := 0.0
		if s.IsConnected() {
			connectedValue = 1.0
		}

		metrics <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, connectedValue, label)
		metrics <- prometheus.MustNewConstMetric(c.reconnects, prometheus.CounterValue, float64(s.ReconnectCount()), label)
		metrics <- prometheus.MustNewConstMetric(c.heartbeatsSent, prometheus.CounterValue, float64(s.HeartbeatsSent()), label)
		metrics <- prometheus.MustNewConstMetric(c.sequence, prometheus.GaugeValue, float64(s.CurrentSequence()), label)
	}
}

// Add registers s for collection, labeled with name (typically the device
// identifier a caller's roster knows it by).
func (c *SessionCollector) Add(s *session.Session, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sessions[s.ID] = s
	c.labels[s.ID] = name
}

// Remove stops tracking s.
func (c *SessionCollector) Remove(s *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.sessions, s.ID)
	delete(c.labels, s.ID)
}
