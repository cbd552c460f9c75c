package metrics

import (
	"github.com/fr3shw3b/fix-session-engine/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
)

// SessionSource lists the sessions to report on; connector.Registry
// satisfies it.
type SessionSource interface {
	All() []*session.Session
}

var (
	nextSenderDesc = prometheus.NewDesc(
		"fix_session_next_sender_seq_num",
		"Next MsgSeqNum the session will send",
		[]string{"session_id"}, nil,
	)
	nextTargetDesc = prometheus.NewDesc(
		"fix_session_next_target_seq_num",
		"Next MsgSeqNum the session expects to receive",
		[]string{"session_id"}, nil,
	)
	loggedOnDesc = prometheus.NewDesc(
		"fix_session_logged_on",
		"1 while the session is logged on",
		[]string{"session_id"}, nil,
	)
	stateDesc = prometheus.NewDesc(
		"fix_session_state",
		"Current session state, the state label carries the name",
		[]string{"session_id", "state"}, nil,
	)
)

// SessionCollector reads sequence numbers and states at scrape time.
type SessionCollector struct {
	source SessionSource
}

func NewSessionCollector(source SessionSource) *SessionCollector {
	return &SessionCollector{source: source}
}

func (c *SessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- nextSenderDesc
	ch <- nextTargetDesc
	ch <- loggedOnDesc
	ch <- stateDesc
}

func (c *SessionCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.source.All() {
		id := s.ID().String()
		ch <- prometheus.MustNewConstMetric(nextSenderDesc, prometheus.GaugeValue, float64(s.NextSenderMsgSeqNum()), id)
		ch <- prometheus.MustNewConstMetric(nextTargetDesc, prometheus.GaugeValue, float64(s.NextTargetMsgSeqNum()), id)
		loggedOn := 0.0
		if s.IsLoggedOn() {
			loggedOn = 1
		}
		ch <- prometheus.MustNewConstMetric(loggedOnDesc, prometheus.GaugeValue, loggedOn, id)
		ch <- prometheus.MustNewConstMetric(stateDesc, prometheus.GaugeValue, 1, id, s.State().String())
	}
}
