package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/fr3shw3b/fix-session-engine/pkg/fix"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sirupsen/logrus"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS fix_sessions (
		session_id      VARCHAR(256) PRIMARY KEY,
		creation_time   TIMESTAMPTZ NOT NULL,
		incoming_seqnum BIGINT NOT NULL,
		outgoing_seqnum BIGINT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS fix_messages (
		session_id VARCHAR(256) NOT NULL,
		msgseqnum  BIGINT NOT NULL,
		message    BYTEA NOT NULL,
		PRIMARY KEY (session_id, msgseqnum)
	);
`

type PostgresStoreParams struct {
	DSN string
	// Upper bound for each statement.
	QueryTimeout time.Duration
}

// PostgresStoreFactory keeps session state in shared tables so that several
// engine processes can observe the same counters through Refresh.
type PostgresStoreFactory struct {
	db      *sql.DB
	timeout time.Duration
	logger  *logrus.Logger
}

func OpenPostgresStoreFactory(params *PostgresStoreParams, logger *logrus.Logger) (*PostgresStoreFactory, error) {
	db, err := sql.Open("postgres", params.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	f := NewPostgresStoreFactory(db, params.QueryTimeout, logger)

	ctx, cancel := f.context()
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return f, nil
}

// NewPostgresStoreFactory uses an existing connection pool whose schema is
// already in place.
func NewPostgresStoreFactory(db *sql.DB, timeout time.Duration, logger *logrus.Logger) *PostgresStoreFactory {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PostgresStoreFactory{db: db, timeout: timeout, logger: logger}
}

func (f *PostgresStoreFactory) Close() error {
	return f.db.Close()
}

func (f *PostgresStoreFactory) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), f.timeout)
}

func (f *PostgresStoreFactory) Create(sessionID fix.SessionID) (MessageStore, error) {
	s := &postgresStore{
		factory:   f,
		sessionID: sessionID.String(),
	}

	ctx, cancel := f.context()
	defer cancel()
	_, err := f.db.ExecContext(ctx, `
		INSERT INTO fix_sessions (session_id, creation_time, incoming_seqnum, outgoing_seqnum)
		VALUES ($1, $2, 1, 1)
		ON CONFLICT (session_id) DO NOTHING
	`, s.sessionID, time.Now().UTC())
	if err != nil {
		return nil, &StoreError{Op: "create", SessionID: s.sessionID, Err: err}
	}

	if err := s.Refresh(); err != nil {
		return nil, err
	}
	return s, nil
}

type postgresStore struct {
	mu                  sync.RWMutex
	factory             *PostgresStoreFactory
	sessionID           string
	nextSenderMsgSeqNum uint64
	nextTargetMsgSeqNum uint64
	creationTime        time.Time
}

func (s *postgresStore) NextSenderMsgSeqNum() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextSenderMsgSeqNum
}

func (s *postgresStore) NextTargetMsgSeqNum() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextTargetMsgSeqNum
}

func (s *postgresStore) SetNextSenderMsgSeqNum(next uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.updateCounter("set_sender", "outgoing_seqnum", next); err != nil {
		return err
	}
	s.nextSenderMsgSeqNum = next
	return nil
}

func (s *postgresStore) SetNextTargetMsgSeqNum(next uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.updateCounter("set_target", "incoming_seqnum", next); err != nil {
		return err
	}
	s.nextTargetMsgSeqNum = next
	return nil
}

func (s *postgresStore) IncrNextSenderMsgSeqNum() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.nextSenderMsgSeqNum + 1
	if err := s.updateCounter("incr_sender", "outgoing_seqnum", next); err != nil {
		return err
	}
	s.nextSenderMsgSeqNum = next
	return nil
}

func (s *postgresStore) IncrNextTargetMsgSeqNum() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.nextTargetMsgSeqNum + 1
	if err := s.updateCounter("incr_target", "incoming_seqnum", next); err != nil {
		return err
	}
	s.nextTargetMsgSeqNum = next
	return nil
}

func (s *postgresStore) CreationTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creationTime
}

func (s *postgresStore) SaveMessage(seqNum uint64, msg []byte) error {
	ctx, cancel := s.factory.context()
	defer cancel()
	_, err := s.factory.db.ExecContext(ctx, `
		INSERT INTO fix_messages (session_id, msgseqnum, message)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, msgseqnum) DO UPDATE SET message = EXCLUDED.message
	`, s.sessionID, int64(seqNum), msg)
	if err != nil {
		return &StoreError{Op: "save_message", SessionID: s.sessionID, Err: err}
	}
	return nil
}

func (s *postgresStore) GetMessages(beginSeqNum, endSeqNum uint64) ([][]byte, error) {
	if err := validateRange(beginSeqNum, endSeqNum); err != nil {
		return nil, err
	}

	ctx, cancel := s.factory.context()
	defer cancel()
	rows, err := s.factory.db.QueryContext(ctx, `
		SELECT msgseqnum, message FROM fix_messages
		WHERE session_id = $1 AND msgseqnum >= $2 AND msgseqnum <= $3
		ORDER BY msgseqnum
	`, s.sessionID, int64(beginSeqNum), int64(endSeqNum))
	if err != nil {
		return nil, &StoreError{Op: "get_messages", SessionID: s.sessionID, Err: err}
	}
	defer rows.Close()

	msgs := make([][]byte, endSeqNum-beginSeqNum+1)
	for rows.Next() {
		var (
			seq int64
			msg []byte
		)
		if err := rows.Scan(&seq, &msg); err != nil {
			return nil, &StoreError{Op: "get_messages", SessionID: s.sessionID, Err: err}
		}
		msgs[uint64(seq)-beginSeqNum] = msg
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "get_messages", SessionID: s.sessionID, Err: err}
	}
	return msgs, nil
}

func (s *postgresStore) Refresh() error {
	ctx, cancel := s.factory.context()
	defer cancel()

	var (
		created            time.Time
		incoming, outgoing int64
	)
	err := s.factory.db.QueryRowContext(ctx, `
		SELECT creation_time, incoming_seqnum, outgoing_seqnum
		FROM fix_sessions WHERE session_id = $1
	`, s.sessionID).Scan(&created, &incoming, &outgoing)
	if err != nil {
		return &StoreError{Op: "refresh", SessionID: s.sessionID, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.creationTime = created.UTC()
	s.nextTargetMsgSeqNum = uint64(incoming)
	s.nextSenderMsgSeqNum = uint64(outgoing)
	return nil
}

func (s *postgresStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.factory.context()
	defer cancel()

	now := time.Now().UTC()
	tx, err := s.factory.db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Op: "reset", SessionID: s.sessionID, Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fix_messages WHERE session_id = $1`, s.sessionID); err != nil {
		return &StoreError{Op: "reset", SessionID: s.sessionID, Err: err}
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE fix_sessions
		SET creation_time = $2, incoming_seqnum = 1, outgoing_seqnum = 1
		WHERE session_id = $1
	`, s.sessionID, now); err != nil {
		return &StoreError{Op: "reset", SessionID: s.sessionID, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "reset", SessionID: s.sessionID, Err: err}
	}

	s.creationTime = now
	s.nextSenderMsgSeqNum = 1
	s.nextTargetMsgSeqNum = 1
	return nil
}

// Close is a no-op, the factory owns the pool.
func (s *postgresStore) Close() error {
	return nil
}

func (s *postgresStore) updateCounter(op, column string, value uint64) error {
	ctx, cancel := s.factory.context()
	defer cancel()
	query := fmt.Sprintf(`UPDATE fix_sessions SET %s = $2 WHERE session_id = $1`, column)
	if _, err := s.factory.db.ExecContext(ctx, query, s.sessionID, int64(value)); err != nil {
		return &StoreError{Op: op, SessionID: s.sessionID, Err: err}
	}
	return nil
}
