package metrics

import (
	"github.com/fr3shw3b/fix-session-engine/pkg/fix"
	"github.com/fr3shw3b/fix-session-engine/pkg/session"
)

// Lifecycle event labels.
const (
	EventConnect          = "connect"
	EventDisconnect       = "disconnect"
	EventLogon            = "logon"
	EventLogout           = "logout"
	EventReset            = "reset"
	EventRefresh          = "refresh"
	EventMissedHeartbeat  = "missed_heartbeat"
	EventHeartbeatTimeout = "heartbeat_timeout"
	EventResendRequest    = "resend_request"
	EventSequenceReset    = "sequence_reset"
	EventGapFill          = "gap_fill"
	EventResetReceived    = "reset_received"
	EventConnectException = "connect_exception"
)

type stateListener struct {
	metrics *Metrics
}

// StateListener counts session lifecycle events. Combine it with other
// listeners through session.MultiStateListener.
func (m *Metrics) StateListener() session.StateListener {
	return &stateListener{metrics: m}
}

func (l *stateListener) inc(id fix.SessionID, event string) {
	l.metrics.EventsTotal.WithLabelValues(id.String(), event).Inc()
}

func (l *stateListener) OnConnect(id fix.SessionID)         { l.inc(id, EventConnect) }
func (l *stateListener) OnDisconnect(id fix.SessionID)      { l.inc(id, EventDisconnect) }
func (l *stateListener) OnLogon(id fix.SessionID)           { l.inc(id, EventLogon) }
func (l *stateListener) OnLogout(id fix.SessionID)          { l.inc(id, EventLogout) }
func (l *stateListener) OnReset(id fix.SessionID)           { l.inc(id, EventReset) }
func (l *stateListener) OnRefresh(id fix.SessionID)         { l.inc(id, EventRefresh) }
func (l *stateListener) OnMissedHeartBeat(id fix.SessionID) { l.inc(id, EventMissedHeartbeat) }
func (l *stateListener) OnResetReceived(id fix.SessionID)   { l.inc(id, EventResetReceived) }

func (l *stateListener) OnHeartBeatTimeout(id fix.SessionID) {
	l.inc(id, EventHeartbeatTimeout)
}

func (l *stateListener) OnResendRequestSent(id fix.SessionID, _, _ uint64) {
	l.inc(id, EventResendRequest)
}

func (l *stateListener) OnSequenceResetReceived(id fix.SessionID, _ uint64, gapFill bool) {
	if gapFill {
		l.inc(id, EventGapFill)
		return
	}
	l.inc(id, EventSequenceReset)
}

func (l *stateListener) OnConnectException(id fix.SessionID, _ error) {
	l.inc(id, EventConnectException)
}
