package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/fr3shw3b/fix-session-engine/pkg/fix"
	"github.com/fr3shw3b/fix-session-engine/pkg/session"
	"github.com/fr3shw3b/fix-session-engine/pkg/utils"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var ErrAcceptorStopped = errors.New("connector: acceptor stopped")

type AcceptorParams struct {
	// TCP address for ListenAndServe, e.g. ":9876".
	Address  string
	Sessions []*session.Session
	// How long a new connection has to deliver its Logon.
	LogonTimeout    time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Acceptor waits for counterparties to connect and log on to one of its
// sessions, over raw TCP or over WebSocket through ServeHTTP.
type Acceptor struct {
	params   *AcceptorParams
	registry *Registry
	logger   *logrus.Logger
	upgrader websocket.Upgrader

	mu        sync.Mutex
	stopped   bool
	listeners map[net.Listener]struct{}
	pending   map[io.Closer]struct{}
}

func NewAcceptor(params *AcceptorParams, logger *logrus.Logger) (*Acceptor, error) {
	registry := NewRegistry()
	for _, s := range params.Sessions {
		if s.Settings().Initiator {
			return nil, fmt.Errorf("connector: session %s is configured as an initiator", s.ID())
		}
		if err := registry.Add(s); err != nil {
			return nil, fmt.Errorf("%w: %s", err, s.ID())
		}
	}
	if params.LogonTimeout <= 0 {
		params.LogonTimeout = 10 * time.Second
	}
	if params.ShutdownTimeout <= 0 {
		params.ShutdownTimeout = 2 * time.Second
	}
	return &Acceptor{
		params:   params,
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// FIX counterparties are not browsers.
				return true
			},
		},
		listeners: map[net.Listener]struct{}{},
		pending:   map[io.Closer]struct{}{},
	}, nil
}

func (a *Acceptor) Registry() *Registry {
	return a.registry
}

func (a *Acceptor) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.params.Address)
	if err != nil {
		return err
	}
	a.logger.Infof("Acceptor listening on %s ... \n", ln.Addr())
	return a.Serve(ctx, ln)
}

// Serve accepts TCP connections on ln until ctx is cancelled or Stop is
// called. Cancelling ctx stops the acceptor.
func (a *Acceptor) Serve(ctx context.Context, ln net.Listener) error {
	if !a.trackListener(ln) {
		ln.Close()
		return ErrAcceptorStopped
	}

	g, ctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		select {
		case <-ctx.Done():
			a.Stop()
		case <-done:
		}
		return nil
	})
	g.Go(func() error {
		defer close(done)
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return nil
				}
				a.logger.Error("accept error: ", err)
				a.Stop()
				return err
			}
			g.Go(func() error {
				a.handleTCP(conn)
				return nil
			})
		}
	})
	return g.Wait()
}

func (a *Acceptor) handleTCP(conn net.Conn) {
	logger := a.logger.WithFields(logrus.Fields{
		"conn_id":     uuid.NewString(),
		"remote_addr": conn.RemoteAddr().String(),
	})
	if !a.trackPending(conn) {
		conn.Close()
		return
	}
	defer a.untrackPending(conn)

	conn.SetReadDeadline(time.Now().Add(a.params.LogonTimeout))
	reader := fix.NewReader(conn)
	raw, err := reader.ReadMessage()
	if err != nil {
		logger.Warn("no logon received: ", err)
		conn.Close()
		return
	}

	responder := newTCPResponder(conn, a.params.WriteTimeout, logger)
	sess, err := a.attach(raw, responder)
	if err != nil {
		logger.Warn("connection refused: ", err)
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})
	a.untrackPending(conn)

	logger = logger.WithField("session_id", sess.ID().String())
	if err := sess.Receive(raw); err != nil {
		logger.Debug("logon: ", err)
	}
	readLoop(reader, sess, responder, logger)
}

// ServeHTTP upgrades the request to a FIX-over-WebSocket connection.
// Refused connections are closed with one of the utils.CloseCode* codes.
func (a *Acceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if a.isStopped() {
		http.Error(w, ErrAcceptorStopped.Error(), http.StatusServiceUnavailable)
		return
	}
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Error("websockets upgrade error: ", err)
		return
	}
	logger := a.logger.WithFields(logrus.Fields{
		"conn_id":     uuid.NewString(),
		"remote_addr": conn.RemoteAddr().String(),
	})
	if !a.trackPending(conn) {
		conn.Close()
		return
	}
	defer a.untrackPending(conn)

	conn.SetReadDeadline(time.Now().Add(a.params.LogonTimeout))
	source := newWSSource(conn)
	raw, err := source.ReadMessage()
	if err != nil {
		var parseErr *fix.ParseError
		if errors.As(err, &parseErr) {
			closeWithCode(conn, utils.CloseCodeGarbledLogon, parseErr.Error(), logger)
			return
		}
		logger.Warn("no logon received: ", err)
		conn.Close()
		return
	}

	responder := newWSResponder(conn, a.params.WriteTimeout, logger)
	sess, err := a.attach(raw, responder)
	if err != nil {
		logger.Warn("connection refused: ", err)
		var refusal *logonRefusal
		if errors.As(err, &refusal) {
			closeWithCode(conn, refusal.code, refusal.reason, logger)
			return
		}
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})
	a.untrackPending(conn)

	logger = logger.WithField("session_id", sess.ID().String())
	if err := sess.Receive(raw); err != nil {
		logger.Debug("logon: ", err)
	}
	readLoop(source, sess, responder, logger)
}

type logonRefusal struct {
	code   int
	reason string
}

func (e *logonRefusal) Error() string {
	return fmt.Sprintf("%s: %s", utils.CloseCodeName(e.code), e.reason)
}

// attach finds the session addressed by the first message on a connection
// and connects it to responder. The message itself is not processed.
func (a *Acceptor) attach(raw []byte, responder session.Responder) (*session.Session, error) {
	msg, err := fix.ParseMessage(raw)
	if err != nil {
		return nil, &logonRefusal{code: utils.CloseCodeGarbledLogon, reason: err.Error()}
	}
	msgType, _ := msg.MsgType()
	if msgType != fix.MsgTypeLogon {
		return nil, &logonRefusal{
			code:   utils.CloseCodeFirstNotLogon,
			reason: fmt.Sprintf("first message must be a logon, received %q", msgType),
		}
	}
	id, err := fix.SessionIDFromHeader(msg)
	if err != nil {
		return nil, &logonRefusal{code: utils.CloseCodeGarbledLogon, reason: err.Error()}
	}
	sess, ok := a.registry.Lookup(id)
	if !ok {
		return nil, &logonRefusal{code: utils.CloseCodeUnknownSession, reason: "unknown session " + id.String()}
	}

	err = sess.Connect(responder)
	switch {
	case err == nil:
		return sess, nil
	case errors.Is(err, session.ErrAlreadyConnected):
		return nil, &logonRefusal{code: utils.CloseCodeSessionConnected, reason: "session " + id.String() + " is already connected"}
	case errors.Is(err, session.ErrSessionDisabled), errors.Is(err, session.ErrOutsideSessionTime):
		return nil, &logonRefusal{code: utils.CloseCodeSessionClosed, reason: err.Error()}
	}
	return nil, err
}

func closeWithCode(conn *websocket.Conn, code int, reason string, logger *logrus.Entry) {
	err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(closeDeadline),
	)
	if err != nil {
		logger.Debug("failed to write close message: ", err)
	}
	conn.Close()
}

// Stop closes every listener and pending connection, then logs out all
// sessions. Sessions that do not answer within ShutdownTimeout are
// disconnected.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	for ln := range a.listeners {
		ln.Close()
	}
	for conn := range a.pending {
		conn.Close()
	}
	a.listeners = map[net.Listener]struct{}{}
	a.pending = map[io.Closer]struct{}{}
	a.mu.Unlock()

	logoutAll(a.registry.All(), "Acceptor shutting down", a.params.ShutdownTimeout)
}

func (a *Acceptor) isStopped() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopped
}

func (a *Acceptor) trackListener(ln net.Listener) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return false
	}
	a.listeners[ln] = struct{}{}
	return true
}

func (a *Acceptor) trackPending(conn io.Closer) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return false
	}
	a.pending[conn] = struct{}{}
	return true
}

func (a *Acceptor) untrackPending(conn io.Closer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pending, conn)
}

// logoutAll starts a Logout on every logged on session and waits up to
// timeout for the handshakes before dropping what is left.
func logoutAll(sessions []*session.Session, reason string, timeout time.Duration) {
	for _, s := range sessions {
		s.Logout(reason)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !anyConnected(sessions) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	for _, s := range sessions {
		s.Disconnect(reason)
	}
}

func anyConnected(sessions []*session.Session) bool {
	for _, s := range sessions {
		if s.IsConnected() {
			return true
		}
	}
	return false
}
