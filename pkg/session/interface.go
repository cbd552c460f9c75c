package session

import "github.com/fr3shw3b/fix-session-engine/pkg/fix"

// Responder is the transport side of a connected session.
type Responder interface {
	// Send transmits raw bytes and reports whether the transport took them.
	Send(raw []byte) bool
	Disconnect()
	RemoteAddress() string
}

// PrioritySender is implemented by responders that can push resend
// traffic ahead of messages already waiting to be written.
type PrioritySender interface {
	PrioritySend(raws [][]byte) int
}

// StateListener is notified of session state transitions. Callbacks run
// while the session is locked and must not call back into it.
type StateListener interface {
	OnConnect(sessionID fix.SessionID)
	OnDisconnect(sessionID fix.SessionID)
	OnLogon(sessionID fix.SessionID)
	OnLogout(sessionID fix.SessionID)
	OnReset(sessionID fix.SessionID)
	OnRefresh(sessionID fix.SessionID)
	OnMissedHeartBeat(sessionID fix.SessionID)
	OnHeartBeatTimeout(sessionID fix.SessionID)
	OnResendRequestSent(sessionID fix.SessionID, beginSeqNo, endSeqNo uint64)
	OnSequenceResetReceived(sessionID fix.SessionID, newSeqNo uint64, gapFill bool)
	OnResetReceived(sessionID fix.SessionID)
	OnConnectException(sessionID fix.SessionID, err error)
}

// BaseStateListener implements StateListener with no-ops so listeners only
// override what they need.
type BaseStateListener struct{}

func (BaseStateListener) OnConnect(fix.SessionID)                             {}
func (BaseStateListener) OnDisconnect(fix.SessionID)                          {}
func (BaseStateListener) OnLogon(fix.SessionID)                               {}
func (BaseStateListener) OnLogout(fix.SessionID)                              {}
func (BaseStateListener) OnReset(fix.SessionID)                               {}
func (BaseStateListener) OnRefresh(fix.SessionID)                             {}
func (BaseStateListener) OnMissedHeartBeat(fix.SessionID)                     {}
func (BaseStateListener) OnHeartBeatTimeout(fix.SessionID)                    {}
func (BaseStateListener) OnResendRequestSent(fix.SessionID, uint64, uint64)   {}
func (BaseStateListener) OnSequenceResetReceived(fix.SessionID, uint64, bool) {}
func (BaseStateListener) OnResetReceived(fix.SessionID)                       {}
func (BaseStateListener) OnConnectException(fix.SessionID, error)             {}

// MultiStateListener forwards every callback to each listener in order.
type MultiStateListener []StateListener

func (m MultiStateListener) OnConnect(id fix.SessionID) {
	for _, l := range m {
		l.OnConnect(id)
	}
}

func (m MultiStateListener) OnDisconnect(id fix.SessionID) {
	for _, l := range m {
		l.OnDisconnect(id)
	}
}

func (m MultiStateListener) OnLogon(id fix.SessionID) {
	for _, l := range m {
		l.OnLogon(id)
	}
}

func (m MultiStateListener) OnLogout(id fix.SessionID) {
	for _, l := range m {
		l.OnLogout(id)
	}
}

func (m MultiStateListener) OnReset(id fix.SessionID) {
	for _, l := range m {
		l.OnReset(id)
	}
}

func (m MultiStateListener) OnRefresh(id fix.SessionID) {
	for _, l := range m {
		l.OnRefresh(id)
	}
}

func (m MultiStateListener) OnMissedHeartBeat(id fix.SessionID) {
	for _, l := range m {
		l.OnMissedHeartBeat(id)
	}
}

func (m MultiStateListener) OnHeartBeatTimeout(id fix.SessionID) {
	for _, l := range m {
		l.OnHeartBeatTimeout(id)
	}
}

func (m MultiStateListener) OnResendRequestSent(id fix.SessionID, begin, end uint64) {
	for _, l := range m {
		l.OnResendRequestSent(id, begin, end)
	}
}

func (m MultiStateListener) OnSequenceResetReceived(id fix.SessionID, newSeqNo uint64, gapFill bool) {
	for _, l := range m {
		l.OnSequenceResetReceived(id, newSeqNo, gapFill)
	}
}

func (m MultiStateListener) OnResetReceived(id fix.SessionID) {
	for _, l := range m {
		l.OnResetReceived(id)
	}
}

func (m MultiStateListener) OnConnectException(id fix.SessionID, err error) {
	for _, l := range m {
		l.OnConnectException(id, err)
	}
}
