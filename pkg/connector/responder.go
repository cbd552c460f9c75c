package connector

import (
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	defaultWriteTimeout = 5 * time.Second
	closeDeadline       = 1 * time.Second
)

// tcpResponder writes framed FIX messages straight to a socket. Writes are
// serialized so a priority batch is never interleaved with other sends.
type tcpResponder struct {
	conn         net.Conn
	writeTimeout time.Duration
	logger       *logrus.Entry

	mu     sync.Mutex
	closed bool
}

func newTCPResponder(conn net.Conn, writeTimeout time.Duration, logger *logrus.Entry) *tcpResponder {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &tcpResponder{conn: conn, writeTimeout: writeTimeout, logger: logger}
}

func (r *tcpResponder) Send(raw []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.write(raw)
}

func (r *tcpResponder) PrioritySend(raws [][]byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, raw := range raws {
		if !r.write(raw) {
			return i
		}
	}
	return len(raws)
}

func (r *tcpResponder) write(raw []byte) bool {
	if r.closed {
		return false
	}
	r.conn.SetWriteDeadline(time.Now().Add(r.writeTimeout))
	if _, err := r.conn.Write(raw); err != nil {
		r.logger.Error("write error: ", err)
		return false
	}
	return true
}

func (r *tcpResponder) Disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.conn.Close()
}

func (r *tcpResponder) RemoteAddress() string {
	return r.conn.RemoteAddr().String()
}

// wsResponder carries one FIX message per WebSocket text frame.
type wsResponder struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	logger       *logrus.Entry

	mu     sync.Mutex
	closed bool
}

func newWSResponder(conn *websocket.Conn, writeTimeout time.Duration, logger *logrus.Entry) *wsResponder {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &wsResponder{conn: conn, writeTimeout: writeTimeout, logger: logger}
}

func (r *wsResponder) Send(raw []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.write(raw)
}

func (r *wsResponder) PrioritySend(raws [][]byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, raw := range raws {
		if !r.write(raw) {
			return i
		}
	}
	return len(raws)
}

func (r *wsResponder) write(raw []byte) bool {
	if r.closed {
		return false
	}
	r.conn.SetWriteDeadline(time.Now().Add(r.writeTimeout))
	if err := r.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		r.logger.Error("write error: ", err)
		return false
	}
	return true
}

func (r *wsResponder) Disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session disconnected"),
		time.Now().Add(closeDeadline),
	)
	r.conn.Close()
}

func (r *wsResponder) RemoteAddress() string {
	return r.conn.RemoteAddr().String()
}
