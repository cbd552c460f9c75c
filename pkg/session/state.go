package session

// State is the top level protocol state of a session. Awaiting a test
// request response and servicing a resend are tracked separately since
// both overlap with normal message flow.
type State int

const (
	StateDisconnected State = iota
	// Initiator sent its Logon and waits for the response.
	StateLogonSent
	// Acceptor is connected and waits for the counterparty Logon.
	StateLogonPending
	StateEstablished
	StateLogoutSent
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateLogonSent:
		return "LOGON_SENT"
	case StateLogonPending:
		return "LOGON_PENDING"
	case StateEstablished:
		return "ESTABLISHED"
	case StateLogoutSent:
		return "LOGOUT_SENT"
	}
	return "UNKNOWN"
}

func (s State) isLoggedOn() bool {
	return s == StateEstablished || s == StateLogoutSent
}

func (s State) awaitingLogon() bool {
	return s == StateLogonSent || s == StateLogonPending
}

// resendRange is the window of a ResendRequest we sent and still wait on.
// currentEnd differs from end while the request is split into chunks.
type resendRange struct {
	begin, end, currentEnd uint64
}

func (r resendRange) active() bool {
	return r.begin != 0
}

func (r resendRange) chunked() bool {
	return r.currentEnd != 0 && r.currentEnd < r.end
}
