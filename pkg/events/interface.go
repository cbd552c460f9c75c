// Package events fans session lifecycle notifications and message hooks out
// to any number of registered handlers.
package events

import "github.com/fr3shw3b/fix-session-engine/pkg/fix"

// Application receives session lifecycle callbacks and every admin and
// application message in both directions.
type Application interface {
	OnCreate(sessionID fix.SessionID)
	OnLogon(sessionID fix.SessionID)
	OnLogout(sessionID fix.SessionID)
	// ToAdmin may modify outbound admin messages before they are sent.
	ToAdmin(msg *fix.Message, sessionID fix.SessionID)
	// FromAdmin may return a *fix.MessageRejectError, including RejectLogon.
	FromAdmin(msg *fix.Message, sessionID fix.SessionID) error
	// ToApp may return fix.ErrDoNotSend to veto the message.
	ToApp(msg *fix.Message, sessionID fix.SessionID) error
	FromApp(msg *fix.Message, sessionID fix.SessionID) error
}

// LogonValidator is implemented by applications that want a say in whether a
// counterparty logon is accepted.
type LogonValidator interface {
	CanLogon(sessionID fix.SessionID) bool
}

// ResetListener is implemented by applications that need to act before the
// session's sequence state is wiped.
type ResetListener interface {
	OnBeforeSessionReset(sessionID fix.SessionID)
}

type (
	SessionHandler func(sessionID fix.SessionID)
	MessageHandler func(msg *fix.Message, sessionID fix.SessionID)
	MessageCheck   func(msg *fix.Message, sessionID fix.SessionID) error
	LogonCheck     func(sessionID fix.SessionID) bool
)

// NopApplication accepts everything and does nothing.
type NopApplication struct{}

func (NopApplication) OnCreate(fix.SessionID)                      {}
func (NopApplication) OnLogon(fix.SessionID)                       {}
func (NopApplication) OnLogout(fix.SessionID)                      {}
func (NopApplication) ToAdmin(*fix.Message, fix.SessionID)         {}
func (NopApplication) FromAdmin(*fix.Message, fix.SessionID) error { return nil }
func (NopApplication) ToApp(*fix.Message, fix.SessionID) error     { return nil }
func (NopApplication) FromApp(*fix.Message, fix.SessionID) error   { return nil }
