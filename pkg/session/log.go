package session

import (
	"bytes"

	"github.com/fr3shw3b/fix-session-engine/pkg/fix"
	"github.com/sirupsen/logrus"
)

// Error event categories.
const (
	EventGarbledMessage = "GARBLED_MESSAGE"
	EventInvalidMessage = "INVALID_MESSAGE"
	EventIOError        = "IO_ERROR"
	EventSessionError   = "SESSION_ERROR"
)

// MessageLog records raw traffic and session events.
type MessageLog interface {
	OnIncoming(sessionID fix.SessionID, raw []byte)
	OnOutgoing(sessionID fix.SessionID, raw []byte)
	OnEvent(sessionID fix.SessionID, text string)
	OnErrorEvent(sessionID fix.SessionID, category, text string)
}

type logrusMessageLog struct {
	logger *logrus.Logger
}

// NewLogrusMessageLog writes traffic at debug level and events at info or
// error level.
func NewLogrusMessageLog(logger *logrus.Logger) MessageLog {
	return &logrusMessageLog{logger: logger}
}

func (l *logrusMessageLog) OnIncoming(sessionID fix.SessionID, raw []byte) {
	l.entry(sessionID).WithField("direction", "in").Debug(printable(raw))
}

func (l *logrusMessageLog) OnOutgoing(sessionID fix.SessionID, raw []byte) {
	l.entry(sessionID).WithField("direction", "out").Debug(printable(raw))
}

func (l *logrusMessageLog) OnEvent(sessionID fix.SessionID, text string) {
	l.entry(sessionID).Info(text)
}

func (l *logrusMessageLog) OnErrorEvent(sessionID fix.SessionID, category, text string) {
	l.entry(sessionID).WithField("category", category).Error(text)
}

func (l *logrusMessageLog) entry(sessionID fix.SessionID) *logrus.Entry {
	return l.logger.WithField("session_id", sessionID.String())
}

func printable(raw []byte) string {
	return string(bytes.ReplaceAll(raw, []byte{0x01}, []byte{'|'}))
}
