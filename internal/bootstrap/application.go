package bootstrap

import (
	"github.com/fr3shw3b/fix-session-engine/pkg/events"
	"github.com/fr3shw3b/fix-session-engine/pkg/fix"
	"github.com/sirupsen/logrus"
)

// LoggingApplication is the application the binaries run with: it accepts
// every message and logs application traffic.
type LoggingApplication struct {
	events.NopApplication
	Logger *logrus.Logger
}

func (a *LoggingApplication) OnLogon(sessionID fix.SessionID) {
	a.Logger.WithField("session_id", sessionID.String()).Info("logged on")
}

func (a *LoggingApplication) OnLogout(sessionID fix.SessionID) {
	a.Logger.WithField("session_id", sessionID.String()).Info("logged out")
}

func (a *LoggingApplication) FromApp(msg *fix.Message, sessionID fix.SessionID) error {
	msgType, _ := msg.MsgType()
	a.Logger.WithFields(logrus.Fields{
		"session_id": sessionID.String(),
		"msg_type":   msgType,
	}).Info("application message received")
	return nil
}
