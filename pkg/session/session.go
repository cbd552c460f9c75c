// Package session implements the FIX session layer: logon and logout,
// heartbeats, sequence number tracking, gap detection with resend, and
// sequence resets, on top of a MessageStore for recovery.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fr3shw3b/fix-session-engine/pkg/events"
	"github.com/fr3shw3b/fix-session-engine/pkg/fix"
	"github.com/fr3shw3b/fix-session-engine/pkg/queue"
	"github.com/fr3shw3b/fix-session-engine/pkg/schedule"
	"github.com/fr3shw3b/fix-session-engine/pkg/store"
	"github.com/sirupsen/logrus"
)

type Params struct {
	SessionID fix.SessionID
	Settings  Settings
	Store     store.MessageStore
	// Optional collaborators, defaults in brackets.
	Schedule      schedule.Schedule  // non-stop
	Factory       fix.MessageFactory // generic factory for the BeginString
	Application   events.Application // no-op application
	StateListener StateListener      // none
	MessageLog    MessageLog         // logrus
	Clock         func() time.Time   // time.Now
}

// Session is the state machine of one FIX session. Every operation runs
// under the session's mutex, so inbound processing, sends and timer ticks
// never interleave. Application hooks and listeners run with that mutex held
// and must hand any work that calls back into the session to another
// goroutine.
type Session struct {
	mu sync.Mutex

	id       fix.SessionID
	settings Settings
	store    store.MessageStore
	queue    queue.MessageQueue
	schedule schedule.Schedule
	factory  fix.MessageFactory
	app      *events.Dispatcher
	listener StateListener
	log      MessageLog
	logger   *logrus.Entry
	now      func() time.Time

	enabled      bool
	state        State
	stateSince   time.Time
	responder    Responder
	heartBtInt   time.Duration
	lastReceived time.Time
	lastSent     time.Time

	testRequestCounter int
	resend             resendRange
	resetSent          bool
	resetReceived      bool
}

func New(params Params, logger *logrus.Logger) (*Session, error) {
	if params.SessionID.IsZero() {
		return nil, configError("SessionID", "sender and target comp ids are required")
	}
	if params.Store == nil {
		return nil, configError("Store", "a message store is required")
	}
	if err := params.Settings.Validate(); err != nil {
		return nil, err
	}

	factory := params.Factory
	if factory == nil {
		var err error
		factory, err = fix.DefaultRegistry().Lookup(params.SessionID.BeginString)
		if err != nil {
			return nil, configError("BeginString", "%v", err)
		}
	}

	sched := params.Schedule
	if sched == nil {
		sched = schedule.NonStop()
	}

	dispatcher, ok := params.Application.(*events.Dispatcher)
	if !ok {
		dispatcher = events.NewDispatcher(logger)
		if params.Application != nil {
			dispatcher.AddApplication(params.Application)
		}
	}

	listener := params.StateListener
	if listener == nil {
		listener = BaseStateListener{}
	}

	messageLog := params.MessageLog
	if messageLog == nil {
		messageLog = NewLogrusMessageLog(logger)
	}

	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}

	s := &Session{
		id:         params.SessionID,
		settings:   params.Settings,
		store:      params.Store,
		queue:      queue.New(params.Settings.QueueCapacity),
		schedule:   sched,
		factory:    factory,
		app:        dispatcher,
		listener:   listener,
		log:        messageLog,
		logger:     logger.WithField("session_id", params.SessionID.String()),
		now:        clock,
		enabled:    true,
		state:      StateDisconnected,
		heartBtInt: params.Settings.HeartBtInt,
	}
	s.stateSince = clock()

	s.app.OnCreate(s.id)
	s.logger.Debugf("session created, next sender %d, next target %d",
		s.store.NextSenderMsgSeqNum(), s.store.NextTargetMsgSeqNum())
	return s, nil
}

func (s *Session) ID() fix.SessionID {
	return s.id
}

func (s *Session) Settings() Settings {
	return s.settings
}

// Events exposes the dispatcher so more handlers can be registered.
func (s *Session) Events() *events.Dispatcher {
	return s.app
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) IsLoggedOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateEstablished
}

func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responder != nil
}

// IsEnabled is false after a manual Logout until the next Logon call.
func (s *Session) IsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *Session) IsSessionTime() bool {
	return s.schedule.IsSessionTime(s.now())
}

func (s *Session) RemoteAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.responder == nil {
		return ""
	}
	return s.responder.RemoteAddress()
}

func (s *Session) NextSenderMsgSeqNum() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.NextSenderMsgSeqNum()
}

func (s *Session) NextTargetMsgSeqNum() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.NextTargetMsgSeqNum()
}

func (s *Session) SetNextSenderMsgSeqNum(next uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if next == 0 {
		return fmt.Errorf("session: sequence numbers start at 1")
	}
	s.log.OnEvent(s.id, fmt.Sprintf("Next sender MsgSeqNum set to %d", next))
	return s.ioError(s.store.SetNextSenderMsgSeqNum(next))
}

func (s *Session) SetNextTargetMsgSeqNum(next uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if next == 0 {
		return fmt.Errorf("session: sequence numbers start at 1")
	}
	s.log.OnEvent(s.id, fmt.Sprintf("Next target MsgSeqNum set to %d", next))
	return s.ioError(s.store.SetNextTargetMsgSeqNum(next))
}

// Connect attaches a transport connection. Initiators immediately send their
// Logon; acceptors wait for the counterparty's.
func (s *Session) Connect(r Responder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.responder != nil {
		return ErrAlreadyConnected
	}
	if !s.enabled {
		return ErrSessionDisabled
	}
	now := s.now()
	if !s.schedule.IsSessionTime(now) {
		return ErrOutsideSessionTime
	}

	s.responder = r
	s.lastReceived = now
	s.lastSent = now
	s.testRequestCounter = 0
	s.log.OnEvent(s.id, "Connected to "+r.RemoteAddress())
	s.listener.OnConnect(s.id)

	if !s.settings.Initiator {
		s.setState(StateLogonPending)
		return nil
	}

	if err := s.prepareLogon(now); err != nil {
		s.disconnectLocked(err.Error())
		return err
	}
	if s.settings.ResetOnLogon {
		if err := s.resetLocked("reset on logon"); err != nil {
			s.disconnectLocked(err.Error())
			return err
		}
	}
	s.heartBtInt = s.settings.HeartBtInt
	if err := s.sendLogon(s.settings.ResetOnLogon); err != nil {
		s.disconnectLocked(err.Error())
		return err
	}
	s.setState(StateLogonSent)
	return nil
}

// prepareLogon resets state left over from an earlier session window and
// refreshes counters from shared storage.
func (s *Session) prepareLogon(now time.Time) error {
	if !s.schedule.IsNonStopSession() && !s.schedule.IsSameSession(s.store.CreationTime(), now) {
		if err := s.resetLocked("new session window"); err != nil {
			return err
		}
	}
	if s.settings.RefreshOnLogon {
		if err := s.ioError(s.store.Refresh()); err != nil {
			return err
		}
		s.listener.OnRefresh(s.id)
	}
	return nil
}

// Disconnect drops the transport without a Logout exchange.
func (s *Session) Disconnect(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectLocked(reason)
}

// Release is called by the transport when r has gone away. It is a no-op
// if the session has since moved on to another connection.
func (s *Session) Release(r Responder, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.responder != r {
		return
	}
	s.disconnectLocked(reason)
}

// ConnectFailed reports a connection attempt that never reached the
// session, e.g. a refused dial.
func (s *Session) ConnectFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.OnErrorEvent(s.id, EventIOError, "Connection failed: "+err.Error())
	s.listener.OnConnectException(s.id, err)
}

func (s *Session) disconnectLocked(reason string) {
	if s.responder == nil {
		return
	}
	wasLoggedOn := s.state.isLoggedOn()

	s.log.OnEvent(s.id, "Disconnecting: "+reason)
	r := s.responder
	s.responder = nil
	r.Disconnect()

	s.setState(StateDisconnected)
	s.queue.Clear()
	s.resend = resendRange{}
	s.testRequestCounter = 0
	s.resetSent = false
	s.resetReceived = false
	s.heartBtInt = s.settings.HeartBtInt

	if wasLoggedOn {
		s.app.OnLogout(s.id)
		s.listener.OnLogout(s.id)
	}
	s.listener.OnDisconnect(s.id)

	if s.settings.ResetOnDisconnect {
		if err := s.resetLocked("reset on disconnect"); err != nil {
			s.logger.Error("reset on disconnect failed: ", err)
		}
	}
}

// Logon enables a session that was stopped with Logout. Initiator
// connectors dial enabled sessions; acceptors accept their Logon.
func (s *Session) Logon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		s.log.OnEvent(s.id, "Session enabled")
	}
	s.enabled = true
}

// Logout disables the session and, when logged on, starts the Logout
// handshake.
func (s *Session) Logout(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = false
	s.log.OnEvent(s.id, "Session disabled")
	switch {
	case s.state == StateEstablished:
		s.initiateLogout(reason)
	case s.state.awaitingLogon():
		s.disconnectLocked(reason)
	}
}

// Reset logs out if needed and wipes the sequence state.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateEstablished {
		s.generateLogout("Session reset")
	}
	s.disconnectLocked("Session reset")
	return s.resetLocked("manual reset")
}

func (s *Session) resetLocked(reason string) error {
	s.app.OnBeforeSessionReset(s.id)
	if err := s.ioError(s.store.Reset()); err != nil {
		return err
	}
	s.queue.Clear()
	s.resend = resendRange{}
	s.log.OnEvent(s.id, "Session reset: "+reason)
	s.listener.OnReset(s.id)
	return nil
}

// Tick drives timeouts and heartbeats. It is called periodically by the
// connector's timer.
func (s *Session) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.responder == nil {
		return
	}

	switch s.state {
	case StateLogonSent, StateLogonPending:
		if now.Sub(s.stateSince) >= s.settings.LogonTimeout {
			s.log.OnErrorEvent(s.id, EventSessionError, "Timed out waiting for logon")
			s.disconnectLocked("logon timeout")
		}
		return
	case StateLogoutSent:
		if now.Sub(s.stateSince) >= s.settings.LogoutTimeout {
			s.log.OnErrorEvent(s.id, EventSessionError, "Timed out waiting for logout response")
			s.disconnectLocked("logout timeout")
		}
		return
	case StateEstablished:
	default:
		return
	}

	if !s.schedule.IsSessionTime(now) {
		s.initiateLogout("End of session")
		return
	}

	if s.heartBtInt <= 0 {
		return
	}

	sinceReceived := now.Sub(s.lastReceived)
	if s.testRequestCounter > 0 && sinceReceived >= 2*s.heartBtInt {
		s.log.OnErrorEvent(s.id, EventSessionError, "Timed out waiting for heartbeat")
		s.listener.OnHeartBeatTimeout(s.id)
		s.disconnectLocked("heartbeat timeout")
		return
	}
	if s.testRequestCounter == 0 && sinceReceived >= s.heartBtInt {
		s.listener.OnMissedHeartBeat(s.id)
		if err := s.sendTestRequest(); err != nil {
			s.logger.Error("failed to send test request: ", err)
		}
		s.testRequestCounter++
	}

	if now.Sub(s.lastSent) >= s.heartBtInt {
		if err := s.sendHeartbeat(""); err != nil {
			s.logger.Error("failed to send heartbeat: ", err)
		}
	}
}

func (s *Session) setState(state State) {
	if s.state != state {
		s.logger.Debugf("state %s -> %s", s.state, state)
	}
	s.state = state
	s.stateSince = s.now()
}

func (s *Session) initiateLogout(reason string) {
	if s.state != StateEstablished {
		return
	}
	s.generateLogout(reason)
	s.setState(StateLogoutSent)
}

// ioError reports store failures as IO_ERROR events.
func (s *Session) ioError(err error) error {
	if err == nil {
		return nil
	}
	s.log.OnErrorEvent(s.id, EventIOError, err.Error())
	var storeErr *store.StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	return &store.StoreError{Op: "session", SessionID: s.id.String(), Err: err}
}
