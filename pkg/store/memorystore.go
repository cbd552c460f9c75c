package store

import (
	"sync"
	"time"

	"github.com/fr3shw3b/fix-session-engine/pkg/fix"
	"github.com/sirupsen/logrus"
)

// NewInMemoryStore returns a volatile store. Nothing survives a restart.
func NewInMemoryStore(sessionID fix.SessionID, logger *logrus.Logger) MessageStore {
	s := &inMemoryStore{
		sessionID: sessionID.String(),
		logger:    logger,
	}
	s.resetLocked()
	return s
}

type inMemoryStore struct {
	mu                  sync.RWMutex
	sessionID           string
	nextSenderMsgSeqNum uint64
	nextTargetMsgSeqNum uint64
	creationTime        time.Time
	messages            map[uint64][]byte
	logger              *logrus.Logger
}

func (s *inMemoryStore) NextSenderMsgSeqNum() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextSenderMsgSeqNum
}

func (s *inMemoryStore) NextTargetMsgSeqNum() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextTargetMsgSeqNum
}

func (s *inMemoryStore) SetNextSenderMsgSeqNum(next uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSenderMsgSeqNum = next
	return nil
}

func (s *inMemoryStore) SetNextTargetMsgSeqNum(next uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTargetMsgSeqNum = next
	return nil
}

func (s *inMemoryStore) IncrNextSenderMsgSeqNum() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSenderMsgSeqNum += 1
	return nil
}

func (s *inMemoryStore) IncrNextTargetMsgSeqNum() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTargetMsgSeqNum += 1
	return nil
}

func (s *inMemoryStore) CreationTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creationTime
}

func (s *inMemoryStore) SaveMessage(seqNum uint64, msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Callers may reuse their buffer.
	s.messages[seqNum] = append([]byte(nil), msg...)
	return nil
}

func (s *inMemoryStore) GetMessages(beginSeqNum, endSeqNum uint64) ([][]byte, error) {
	if err := validateRange(beginSeqNum, endSeqNum); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := make([][]byte, 0, endSeqNum-beginSeqNum+1)
	for seq := beginSeqNum; seq <= endSeqNum; seq += 1 {
		msgs = append(msgs, s.messages[seq])
	}
	return msgs, nil
}

// Refresh has nothing to reload from.
func (s *inMemoryStore) Refresh() error {
	return nil
}

func (s *inMemoryStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.logger.Debug("reset in-memory store for session ", s.sessionID)
	return nil
}

func (s *inMemoryStore) resetLocked() {
	s.nextSenderMsgSeqNum = 1
	s.nextTargetMsgSeqNum = 1
	s.creationTime = time.Now().UTC()
	s.messages = map[uint64][]byte{}
}

func (s *inMemoryStore) Close() error {
	return nil
}

type inMemoryStoreFactory struct {
	logger *logrus.Logger
}

func NewInMemoryStoreFactory(logger *logrus.Logger) Factory {
	return &inMemoryStoreFactory{logger: logger}
}

func (f *inMemoryStoreFactory) Create(sessionID fix.SessionID) (MessageStore, error) {
	return NewInMemoryStore(sessionID, f.logger), nil
}
