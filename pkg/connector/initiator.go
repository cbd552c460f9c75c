package connector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fr3shw3b/fix-session-engine/pkg/fix"
	"github.com/fr3shw3b/fix-session-engine/pkg/session"
	"github.com/fr3shw3b/fix-session-engine/pkg/utils"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)

var ErrInitiatorRunning = errors.New("connector: initiator already started")

// InitiatorSession pairs a session with the counterparty address it dials.
type InitiatorSession struct {
	Session   *session.Session
	Transport string
	// host:port for TCP, a ws:// or wss:// URL for WebSocket.
	Address string
}

type InitiatorParams struct {
	Sessions []InitiatorSession
	// Pause between connection cycles once a connection has ended or
	// all dial attempts failed.
	ReconnectInterval time.Duration
	// Dial attempts per cycle, with exponential backoff between them.
	MaxReconnectAttempts int
	DialTimeout          time.Duration
	WriteTimeout         time.Duration
	ShutdownTimeout      time.Duration
}

// Initiator keeps each of its sessions connected while the session is
// enabled and inside its schedule.
type Initiator struct {
	params    *InitiatorParams
	registry  *Registry
	addresses map[fix.SessionID]InitiatorSession
	logger    *logrus.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func NewInitiator(params *InitiatorParams, logger *logrus.Logger) (*Initiator, error) {
	registry := NewRegistry()
	addresses := map[fix.SessionID]InitiatorSession{}
	for _, entry := range params.Sessions {
		s := entry.Session
		if !s.Settings().Initiator {
			return nil, fmt.Errorf("connector: session %s is configured as an acceptor", s.ID())
		}
		if entry.Transport == "" {
			entry.Transport = TransportTCP
		}
		if entry.Transport != TransportTCP && entry.Transport != TransportWebSocket {
			return nil, fmt.Errorf("connector: unknown transport %q for session %s", entry.Transport, s.ID())
		}
		if entry.Address == "" {
			return nil, fmt.Errorf("connector: no address for session %s", s.ID())
		}
		if err := registry.Add(s); err != nil {
			return nil, fmt.Errorf("%w: %s", err, s.ID())
		}
		addresses[s.ID()] = entry
	}
	if params.ReconnectInterval <= 0 {
		params.ReconnectInterval = 30 * time.Second
	}
	if params.DialTimeout <= 0 {
		params.DialTimeout = 10 * time.Second
	}
	if params.ShutdownTimeout <= 0 {
		params.ShutdownTimeout = 2 * time.Second
	}
	return &Initiator{
		params:    params,
		registry:  registry,
		addresses: addresses,
		logger:    logger,
	}, nil
}

func (i *Initiator) Registry() *Registry {
	return i.registry
}

// Start launches one connection loop per session and returns immediately.
func (i *Initiator) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cancel != nil {
		return ErrInitiatorRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	for _, entry := range i.addresses {
		entry := entry
		g.Go(func() error {
			i.maintain(ctx, entry)
			return nil
		})
	}
	i.cancel = cancel
	i.done = make(chan struct{})
	go func(done chan struct{}) {
		err := g.Wait()
		i.mu.Lock()
		i.err = err
		i.mu.Unlock()
		close(done)
	}(i.done)
	return nil
}

// Stop logs out every session, ends the connection loops and waits for
// them to return.
func (i *Initiator) Stop() error {
	i.mu.Lock()
	cancel, done := i.cancel, i.done
	i.mu.Unlock()
	if cancel == nil {
		return nil
	}

	logoutAll(i.registry.All(), "Initiator shutting down", i.params.ShutdownTimeout)
	cancel()
	<-done

	i.mu.Lock()
	defer i.mu.Unlock()
	i.cancel = nil
	return i.err
}

func (i *Initiator) maintain(ctx context.Context, entry InitiatorSession) {
	s := entry.Session
	for {
		if s.IsEnabled() && s.IsSessionTime() && !s.IsConnected() {
			i.connect(ctx, entry)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(i.params.ReconnectInterval):
		}
	}
}

// connect dials the counterparty, sends the Logon and serves the
// connection until it ends.
func (i *Initiator) connect(ctx context.Context, entry InitiatorSession) {
	s := entry.Session
	logger := i.logger.WithFields(logrus.Fields{
		"session_id": s.ID().String(),
		"conn_id":    uuid.NewString(),
	})

	var (
		responder session.Responder
		source    messageSource
	)
	retryConnect := func() error {
		var err error
		responder, source, err = i.dial(ctx, entry, logger)
		if err != nil {
			logger.Warn("failed to connect to ", entry.Address, ": ", err)
		}
		return err
	}
	err := backoff.Retry(retryConnect, backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(),
			uint64(i.params.MaxReconnectAttempts),
		),
		ctx,
	))
	if err != nil {
		if ctx.Err() == nil {
			s.ConnectFailed(err)
		}
		return
	}

	logger = logger.WithField("remote_addr", responder.RemoteAddress())
	if err := s.Connect(responder); err != nil {
		logger.Warn("session did not take the connection: ", err)
		responder.Disconnect()
		return
	}

	err = readLoop(source, s, responder, logger)
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && utils.IsKnownClientErrorCode(closeErr.Code) {
		logger.Error("connection refused by counterparty: ", utils.CloseCodeName(closeErr.Code), " ", closeErr.Text)
		s.ConnectFailed(err)
	}
}

func (i *Initiator) dial(ctx context.Context, entry InitiatorSession, logger *logrus.Entry) (session.Responder, messageSource, error) {
	if entry.Transport == TransportWebSocket {
		dialer := *websocket.DefaultDialer
		dialer.HandshakeTimeout = i.params.DialTimeout
		conn, _, err := dialer.DialContext(ctx, entry.Address, nil)
		if err != nil {
			return nil, nil, err
		}
		return newWSResponder(conn, i.params.WriteTimeout, logger), newWSSource(conn), nil
	}

	dialer := net.Dialer{Timeout: i.params.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", entry.Address)
	if err != nil {
		return nil, nil, err
	}
	return newTCPResponder(conn, i.params.WriteTimeout, logger), fix.NewReader(conn), nil
}
