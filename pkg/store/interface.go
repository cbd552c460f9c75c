package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/fr3shw3b/fix-session-engine/pkg/fix"
)

// MessageStore holds the recovery state of one session: both sequence
// counters, the creation time and every outbound message by sequence number.
type MessageStore interface {
	NextSenderMsgSeqNum() uint64
	NextTargetMsgSeqNum() uint64
	SetNextSenderMsgSeqNum(next uint64) error
	SetNextTargetMsgSeqNum(next uint64) error
	// Increments are called exactly once per sequenced message.
	IncrNextSenderMsgSeqNum() error
	IncrNextTargetMsgSeqNum() error
	CreationTime() time.Time
	// Persists a raw outbound message under its sequence number.
	SaveMessage(seqNum uint64, msg []byte) error
	// Returns one entry per sequence number in [beginSeqNum, endSeqNum];
	// numbers never saved are returned as nil.
	GetMessages(beginSeqNum, endSeqNum uint64) ([][]byte, error)
	// Reloads counters from the backing storage.
	Refresh() error
	// Sets both counters to 1, clears the archive and stamps a new
	// creation time as one unit.
	Reset() error
	Close() error
}

// Factory creates the store for a session.
type Factory interface {
	Create(sessionID fix.SessionID) (MessageStore, error)
}

var ErrInvalidRange = errors.New("invalid sequence range")

// StoreError wraps a failure of the backing storage.
type StoreError struct {
	Op        string
	SessionID string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed for session %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func validateRange(begin, end uint64) error {
	if begin == 0 || end < begin {
		return fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, begin, end)
	}
	return nil
}
