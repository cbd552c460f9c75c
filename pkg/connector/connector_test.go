package connector

import (
	"context"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fr3shw3b/fix-session-engine/pkg/events"
	"github.com/fr3shw3b/fix-session-engine/pkg/fix"
	"github.com/fr3shw3b/fix-session-engine/pkg/session"
	"github.com/fr3shw3b/fix-session-engine/pkg/store"
	"github.com/fr3shw3b/fix-session-engine/pkg/utils"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	acceptorID  = fix.SessionID{BeginString: "FIX.4.4", SenderCompID: "ACCEPTOR", TargetCompID: "INITIATOR"}
	initiatorID = acceptorID.Reverse()
)

const waitFor = 5 * time.Second

func createLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type countingApp struct {
	events.NopApplication
	logons  atomic.Int32
	fromApp atomic.Int32
}

func (a *countingApp) OnLogon(fix.SessionID) { a.logons.Add(1) }

func (a *countingApp) FromApp(*fix.Message, fix.SessionID) error {
	a.fromApp.Add(1)
	return nil
}

func createSession(t *testing.T, id fix.SessionID, initiator bool, app events.Application) *session.Session {
	t.Helper()
	logger := createLogger()
	settings := session.NewSettings()
	settings.Initiator = initiator
	settings.LogonTimeout = time.Second
	s, err := session.New(session.Params{
		SessionID:   id,
		Settings:    settings,
		Store:       store.NewInMemoryStore(id, logger),
		Application: app,
	}, logger)
	require.NoError(t, err)
	return s
}

func buildMessage(t *testing.T, msgType string, sender, target string, fields ...fix.Field) []byte {
	t.Helper()
	m := fix.NewMessage()
	m.Header.SetString(fix.TagBeginString, acceptorID.BeginString)
	m.Header.SetString(fix.TagMsgType, msgType)
	m.Header.SetString(fix.TagSenderCompID, sender)
	m.Header.SetString(fix.TagTargetCompID, target)
	m.Header.SetSeqNum(fix.TagMsgSeqNum, 1)
	m.Header.SetTime(fix.TagSendingTime, time.Now(), fix.Millis)
	for _, f := range fields {
		m.Body.Set(f)
	}
	raw, err := m.Build()
	require.NoError(t, err)
	return raw
}

func logonFrom(t *testing.T, sender, target string) []byte {
	return buildMessage(t, fix.MsgTypeLogon, sender, target,
		fix.NewIntField(fix.TagEncryptMethod, 0),
		fix.NewIntField(fix.TagHeartBtInt, 30),
	)
}

func startAcceptor(t *testing.T, sessions ...*session.Session) (*Acceptor, string, func()) {
	t.Helper()
	acceptor, err := NewAcceptor(&AcceptorParams{Sessions: sessions, LogonTimeout: time.Second}, createLogger())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- acceptor.Serve(ctx, ln) }()

	return acceptor, ln.Addr().String(), func() {
		cancel()
		select {
		case err := <-served:
			assert.NoError(t, err)
		case <-time.After(waitFor):
			t.Error("acceptor did not stop")
		}
	}
}

func dialWebSocket(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func expectCloseCode(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(waitFor))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		closeErr, ok := err.(*websocket.CloseError)
		require.True(t, ok, "expected a close frame, got %v", err)
		assert.Equal(t, code, closeErr.Code, utils.CloseCodeName(closeErr.Code))
		return
	}
}

func Test_registry_add_lookup_remove(t *testing.T) {
	registry := NewRegistry()
	a := createSession(t, acceptorID, false, nil)
	other := createSession(t, fix.SessionID{BeginString: "FIX.4.2", SenderCompID: "A", TargetCompID: "B"}, false, nil)

	require.NoError(t, registry.Add(a))
	require.NoError(t, registry.Add(other))
	assert.ErrorIs(t, registry.Add(a), ErrDuplicateSession)
	assert.Equal(t, 2, registry.Len())

	found, ok := registry.Lookup(acceptorID)
	require.True(t, ok)
	assert.Same(t, a, found)

	found, ok = registry.LookupString(acceptorID.String())
	require.True(t, ok)
	assert.Same(t, a, found)
	_, ok = registry.LookupString("not a session id")
	assert.False(t, ok)

	all := registry.All()
	require.Len(t, all, 2)
	assert.Same(t, other, all[0], "ordered by canonical id")

	registry.Remove(acceptorID)
	_, ok = registry.Lookup(acceptorID)
	assert.False(t, ok)
}

func Test_connectors_reject_sessions_of_the_wrong_role(t *testing.T) {
	_, err := NewAcceptor(&AcceptorParams{
		Sessions: []*session.Session{createSession(t, initiatorID, true, nil)},
	}, createLogger())
	assert.Error(t, err)

	_, err = NewInitiator(&InitiatorParams{
		Sessions: []InitiatorSession{{Session: createSession(t, acceptorID, false, nil), Address: "127.0.0.1:1"}},
	}, createLogger())
	assert.Error(t, err)

	_, err = NewInitiator(&InitiatorParams{
		Sessions: []InitiatorSession{{Session: createSession(t, initiatorID, true, nil), Transport: "udp", Address: "127.0.0.1:1"}},
	}, createLogger())
	assert.Error(t, err)
}

func Test_initiator_logs_on_to_acceptor_over_tcp(t *testing.T) {
	acceptorApp := &countingApp{}
	acceptorSession := createSession(t, acceptorID, false, acceptorApp)
	_, address, stopAcceptor := startAcceptor(t, acceptorSession)
	defer stopAcceptor()

	initiatorSession := createSession(t, initiatorID, true, nil)
	initiator, err := NewInitiator(&InitiatorParams{
		Sessions:             []InitiatorSession{{Session: initiatorSession, Address: address}},
		ReconnectInterval:    50 * time.Millisecond,
		MaxReconnectAttempts: 3,
	}, createLogger())
	require.NoError(t, err)
	require.NoError(t, initiator.Start(context.Background()))
	assert.ErrorIs(t, initiator.Start(context.Background()), ErrInitiatorRunning)

	require.Eventually(t, func() bool {
		return initiatorSession.IsLoggedOn() && acceptorSession.IsLoggedOn()
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, int32(1), acceptorApp.logons.Load())

	order := fix.NewMessage()
	order.Header.SetString(fix.TagMsgType, "D")
	order.Body.SetString(fix.Tag(11), "order-1")
	sent, err := initiatorSession.Send(order)
	require.NoError(t, err)
	assert.True(t, sent)
	require.Eventually(t, func() bool { return acceptorApp.fromApp.Load() == 1 }, waitFor, 10*time.Millisecond)

	require.NoError(t, initiator.Stop())
	assert.False(t, initiatorSession.IsConnected())
	require.Eventually(t, func() bool { return !acceptorSession.IsConnected() }, waitFor, 10*time.Millisecond)
}

func Test_initiator_reconnects_after_the_connection_drops(t *testing.T) {
	acceptorSession := createSession(t, acceptorID, false, nil)
	_, address, stopAcceptor := startAcceptor(t, acceptorSession)
	defer stopAcceptor()

	initiatorSession := createSession(t, initiatorID, true, nil)
	initiator, err := NewInitiator(&InitiatorParams{
		Sessions:             []InitiatorSession{{Session: initiatorSession, Address: address}},
		ReconnectInterval:    50 * time.Millisecond,
		MaxReconnectAttempts: 3,
	}, createLogger())
	require.NoError(t, err)
	require.NoError(t, initiator.Start(context.Background()))
	defer initiator.Stop()

	require.Eventually(t, acceptorSession.IsLoggedOn, waitFor, 10*time.Millisecond)
	acceptorSession.Disconnect("test drop")

	require.Eventually(t, func() bool { return !initiatorSession.IsConnected() }, waitFor, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return initiatorSession.IsLoggedOn() && acceptorSession.IsLoggedOn()
	}, waitFor, 10*time.Millisecond)
}

type connectFailures struct {
	session.BaseStateListener
	mu   sync.Mutex
	errs []error
}

func (l *connectFailures) OnConnectException(_ fix.SessionID, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func (l *connectFailures) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errs)
}

func Test_initiator_reports_failed_dials(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	address := ln.Addr().String()
	ln.Close()

	listener := &connectFailures{}
	logger := createLogger()
	settings := session.NewSettings()
	settings.Initiator = true
	s, err := session.New(session.Params{
		SessionID:     initiatorID,
		Settings:      settings,
		Store:         store.NewInMemoryStore(initiatorID, logger),
		StateListener: listener,
	}, logger)
	require.NoError(t, err)

	initiator, err := NewInitiator(&InitiatorParams{
		Sessions:             []InitiatorSession{{Session: s, Address: address}},
		ReconnectInterval:    time.Hour,
		MaxReconnectAttempts: 0,
	}, logger)
	require.NoError(t, err)
	require.NoError(t, initiator.Start(context.Background()))

	require.Eventually(t, func() bool { return listener.count() == 1 }, waitFor, 10*time.Millisecond)
	require.NoError(t, initiator.Stop())
}

func Test_initiator_logs_on_over_websocket(t *testing.T) {
	acceptorSession := createSession(t, acceptorID, false, nil)
	acceptor, err := NewAcceptor(&AcceptorParams{Sessions: []*session.Session{acceptorSession}}, createLogger())
	require.NoError(t, err)
	server := httptest.NewServer(acceptor)
	defer server.Close()
	defer acceptor.Stop()

	initiatorSession := createSession(t, initiatorID, true, nil)
	initiator, err := NewInitiator(&InitiatorParams{
		Sessions: []InitiatorSession{{
			Session:   initiatorSession,
			Transport: TransportWebSocket,
			Address:   "ws" + strings.TrimPrefix(server.URL, "http"),
		}},
		ReconnectInterval:    50 * time.Millisecond,
		MaxReconnectAttempts: 3,
	}, createLogger())
	require.NoError(t, err)
	require.NoError(t, initiator.Start(context.Background()))

	require.Eventually(t, func() bool {
		return initiatorSession.IsLoggedOn() && acceptorSession.IsLoggedOn()
	}, waitFor, 10*time.Millisecond)
	require.NoError(t, initiator.Stop())
}

func Test_websocket_connection_must_start_with_a_logon(t *testing.T) {
	acceptor, err := NewAcceptor(&AcceptorParams{
		Sessions: []*session.Session{createSession(t, acceptorID, false, nil)},
	}, createLogger())
	require.NoError(t, err)
	server := httptest.NewServer(acceptor)
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		buildMessage(t, fix.MsgTypeHeartbeat, "INITIATOR", "ACCEPTOR")))
	expectCloseCode(t, conn, utils.CloseCodeFirstNotLogon)
}

func Test_websocket_logon_for_unknown_session_is_refused(t *testing.T) {
	acceptor, err := NewAcceptor(&AcceptorParams{
		Sessions: []*session.Session{createSession(t, acceptorID, false, nil)},
	}, createLogger())
	require.NoError(t, err)
	server := httptest.NewServer(acceptor)
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, logonFrom(t, "STRANGER", "ACCEPTOR")))
	expectCloseCode(t, conn, utils.CloseCodeUnknownSession)
}

func Test_websocket_garbled_logon_is_refused(t *testing.T) {
	acceptor, err := NewAcceptor(&AcceptorParams{
		Sessions: []*session.Session{createSession(t, acceptorID, false, nil)},
	}, createLogger())
	require.NoError(t, err)
	server := httptest.NewServer(acceptor)
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("8=FIX.4.4\x019=abc\x0135=A\x01")))
	expectCloseCode(t, conn, utils.CloseCodeGarbledLogon)
}

func Test_websocket_second_connection_for_a_logged_on_session_is_refused(t *testing.T) {
	acceptorSession := createSession(t, acceptorID, false, nil)
	acceptor, err := NewAcceptor(&AcceptorParams{Sessions: []*session.Session{acceptorSession}}, createLogger())
	require.NoError(t, err)
	server := httptest.NewServer(acceptor)
	defer server.Close()

	first := dialWebSocket(t, server)
	defer first.Close()
	require.NoError(t, first.WriteMessage(websocket.TextMessage, logonFrom(t, "INITIATOR", "ACCEPTOR")))
	first.SetReadDeadline(time.Now().Add(waitFor))
	_, reply, err := first.ReadMessage()
	require.NoError(t, err)
	msg, err := fix.ParseMessage(reply)
	require.NoError(t, err)
	msgType, _ := msg.MsgType()
	assert.Equal(t, fix.MsgTypeLogon, msgType)
	assert.True(t, acceptorSession.IsLoggedOn())

	second := dialWebSocket(t, server)
	defer second.Close()
	require.NoError(t, second.WriteMessage(websocket.TextMessage, logonFrom(t, "INITIATOR", "ACCEPTOR")))
	expectCloseCode(t, second, utils.CloseCodeSessionConnected)
	assert.True(t, acceptorSession.IsLoggedOn(), "the first connection is untouched")
}

func Test_stopped_acceptor_refuses_new_connections(t *testing.T) {
	acceptor, err := NewAcceptor(&AcceptorParams{}, createLogger())
	require.NoError(t, err)
	acceptor.Stop()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.ErrorIs(t, acceptor.Serve(context.Background(), ln), ErrAcceptorStopped)

	server := httptest.NewServer(acceptor)
	defer server.Close()
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 503, resp.StatusCode)
}

type nopResponder struct{}

func (nopResponder) Send([]byte) bool      { return true }
func (nopResponder) Disconnect()           {}
func (nopResponder) RemoteAddress() string { return "test" }

func Test_session_timer_ticks_registered_sessions(t *testing.T) {
	registry := NewRegistry()
	s := createSession(t, acceptorID, false, nil)
	require.NoError(t, registry.Add(s))
	require.NoError(t, s.Connect(nopResponder{}))

	timer, err := NewSessionTimer(registry, time.Second, createLogger())
	require.NoError(t, err)

	timer.now = func() time.Time { return time.Now().Add(100 * time.Millisecond) }
	timer.tick()
	assert.True(t, s.IsConnected())

	// LogonTimeout is one second
	timer.now = func() time.Time { return time.Now().Add(2 * time.Second) }
	timer.tick()
	assert.False(t, s.IsConnected())

	timer.Start()
	timer.Stop()
}

type scriptedSource struct {
	reads []func() ([]byte, error)
}

func (s *scriptedSource) ReadMessage() ([]byte, error) {
	if len(s.reads) == 0 {
		return nil, io.EOF
	}
	next := s.reads[0]
	s.reads = s.reads[1:]
	return next()
}

type errorEventLog struct {
	mu     sync.Mutex
	errors map[string]int
}

func (l *errorEventLog) OnIncoming(fix.SessionID, []byte) {}
func (l *errorEventLog) OnOutgoing(fix.SessionID, []byte) {}
func (l *errorEventLog) OnEvent(fix.SessionID, string)    {}
func (l *errorEventLog) OnErrorEvent(_ fix.SessionID, category, _ string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors[category]++
}

func Test_read_loop_reports_framing_errors_to_the_session_log(t *testing.T) {
	msgLog := &errorEventLog{errors: map[string]int{}}
	logger := createLogger()
	sess, err := session.New(session.Params{
		SessionID:  acceptorID,
		Settings:   session.NewSettings(),
		Store:      store.NewInMemoryStore(acceptorID, logger),
		MessageLog: msgLog,
	}, logger)
	require.NoError(t, err)

	source := &scriptedSource{reads: []func() ([]byte, error){
		func() ([]byte, error) { return nil, &fix.ParseError{Reason: "bad BodyLength"} },
		func() ([]byte, error) { return nil, &fix.ParseError{Reason: "bad CheckSum"} },
	}}
	err = readLoop(source, sess, nil, logrus.NewEntry(logger))

	assert.NoError(t, err)
	assert.Equal(t, 2, msgLog.errors[session.EventGarbledMessage])
}
