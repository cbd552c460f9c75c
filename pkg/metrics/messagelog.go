package metrics

import (
	"github.com/fr3shw3b/fix-session-engine/pkg/fix"
	"github.com/fr3shw3b/fix-session-engine/pkg/session"
)

type messageLog struct {
	next    session.MessageLog
	metrics *Metrics
}

// MessageLog wraps next, counting traffic and error events before passing
// them on.
func (m *Metrics) MessageLog(next session.MessageLog) session.MessageLog {
	return &messageLog{next: next, metrics: m}
}

func (l *messageLog) OnIncoming(id fix.SessionID, raw []byte) {
	l.count(id, "in", raw)
	l.next.OnIncoming(id, raw)
}

func (l *messageLog) OnOutgoing(id fix.SessionID, raw []byte) {
	l.count(id, "out", raw)
	l.next.OnOutgoing(id, raw)
}

func (l *messageLog) OnEvent(id fix.SessionID, text string) {
	l.next.OnEvent(id, text)
}

func (l *messageLog) OnErrorEvent(id fix.SessionID, category, text string) {
	l.metrics.ErrorsTotal.WithLabelValues(id.String(), category).Inc()
	l.next.OnErrorEvent(id, category, text)
}

func (l *messageLog) count(id fix.SessionID, direction string, raw []byte) {
	l.metrics.MessagesTotal.WithLabelValues(id.String(), direction).Inc()
	l.metrics.BytesTotal.WithLabelValues(id.String(), direction).Add(float64(len(raw)))
}
