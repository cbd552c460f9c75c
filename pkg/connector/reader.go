package connector

import (
	"bytes"
	"errors"
	"io"

	"github.com/fr3shw3b/fix-session-engine/pkg/fix"
	"github.com/fr3shw3b/fix-session-engine/pkg/session"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// messageSource yields one framed FIX message at a time.
type messageSource interface {
	ReadMessage() ([]byte, error)
}

// wsSource frames messages out of WebSocket frames. A frame may carry more
// than one message.
type wsSource struct {
	conn    *websocket.Conn
	pending *fix.Reader
}

func newWSSource(conn *websocket.Conn) *wsSource {
	return &wsSource{conn: conn}
}

func (s *wsSource) ReadMessage() ([]byte, error) {
	for {
		if s.pending != nil {
			raw, err := s.pending.ReadMessage()
			if err == nil {
				return raw, nil
			}
			var parseErr *fix.ParseError
			if errors.As(err, &parseErr) {
				return nil, err
			}
			s.pending = nil
		}
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		s.pending = fix.NewReader(bytes.NewReader(frame))
	}
}

// readLoop feeds every inbound message to sess until the source fails, then
// releases the session from this connection. It returns the error that
// ended the connection, nil for a clean close.
func readLoop(source messageSource, sess *session.Session, responder session.Responder, logger *logrus.Entry) error {
	var closeErr error
	for {
		raw, err := source.ReadMessage()
		if err != nil {
			var parseErr *fix.ParseError
			if errors.As(err, &parseErr) {
				logger.Warn("dropping garbled input: ", err)
				sess.Garbled(err)
				continue
			}
			if !errors.Is(err, io.EOF) && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Debug("read error: ", err)
				closeErr = err
			}
			break
		}
		if err := sess.Receive(raw); err != nil {
			logger.Debug("inbound message: ", err)
		}
	}
	sess.Release(responder, "connection closed")
	return closeErr
}
