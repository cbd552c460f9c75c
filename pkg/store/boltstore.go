package store

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fr3shw3b/fix-session-engine/pkg/fix"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var (
	metaBucketName     = []byte("meta")
	messagesBucketName = []byte("messages")

	senderKey   = []byte("next_sender_seqnum")
	targetKey   = []byte("next_target_seqnum")
	creationKey = []byte("creation_time")
)

type BoltStoreParams struct {
	// Path of the database file shared by every session of the factory.
	Path string
	// How long to wait for the file lock when opening.
	OpenTimeout time.Duration
}

// BoltStoreFactory owns one bbolt database; each session is a top level
// bucket named after its canonical SessionID.
type BoltStoreFactory struct {
	db     *bolt.DB
	logger *logrus.Logger
}

func OpenBoltStoreFactory(params *BoltStoreParams, logger *logrus.Logger) (*BoltStoreFactory, error) {
	if err := os.MkdirAll(filepath.Dir(params.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir store path: %w", err)
	}
	timeout := params.OpenTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	db, err := bolt.Open(params.Path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &BoltStoreFactory{db: db, logger: logger}, nil
}

func (f *BoltStoreFactory) Close() error {
	if f == nil || f.db == nil {
		return nil
	}
	return f.db.Close()
}

func (f *BoltStoreFactory) Create(sessionID fix.SessionID) (MessageStore, error) {
	s := &boltStore{
		db:        f.db,
		sessionID: sessionID.String(),
		bucket:    []byte(sessionID.String()),
		logger:    f.logger,
	}

	err := f.db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}
		if _, err := root.CreateBucketIfNotExists(messagesBucketName); err != nil {
			return err
		}
		meta := root.Bucket(metaBucketName)
		if meta != nil {
			return nil
		}
		meta, err = root.CreateBucket(metaBucketName)
		if err != nil {
			return err
		}
		return putMeta(meta, 1, 1, time.Now().UTC())
	})
	if err != nil {
		return nil, &StoreError{Op: "create", SessionID: s.sessionID, Err: err}
	}

	if err := s.Refresh(); err != nil {
		return nil, err
	}
	f.logger.Debug("opened file store for session ", s.sessionID,
		" sender: ", s.nextSenderMsgSeqNum, " target: ", s.nextTargetMsgSeqNum)
	return s, nil
}

type boltStore struct {
	mu                  sync.RWMutex
	db                  *bolt.DB
	sessionID           string
	bucket              []byte
	nextSenderMsgSeqNum uint64
	nextTargetMsgSeqNum uint64
	creationTime        time.Time
	logger              *logrus.Logger
}

func (s *boltStore) NextSenderMsgSeqNum() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextSenderMsgSeqNum
}

func (s *boltStore) NextTargetMsgSeqNum() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextTargetMsgSeqNum
}

func (s *boltStore) SetNextSenderMsgSeqNum(next uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.putCounter("set_sender", senderKey, next); err != nil {
		return err
	}
	s.nextSenderMsgSeqNum = next
	return nil
}

func (s *boltStore) SetNextTargetMsgSeqNum(next uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.putCounter("set_target", targetKey, next); err != nil {
		return err
	}
	s.nextTargetMsgSeqNum = next
	return nil
}

func (s *boltStore) IncrNextSenderMsgSeqNum() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.nextSenderMsgSeqNum + 1
	if err := s.putCounter("incr_sender", senderKey, next); err != nil {
		return err
	}
	s.nextSenderMsgSeqNum = next
	return nil
}

func (s *boltStore) IncrNextTargetMsgSeqNum() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.nextTargetMsgSeqNum + 1
	if err := s.putCounter("incr_target", targetKey, next); err != nil {
		return err
	}
	s.nextTargetMsgSeqNum = next
	return nil
}

func (s *boltStore) CreationTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creationTime
}

func (s *boltStore) SaveMessage(seqNum uint64, msg []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(s.bucket)
		if root == nil {
			return fmt.Errorf("bucket %s missing", s.bucket)
		}
		return root.Bucket(messagesBucketName).Put(seqKey(seqNum), msg)
	})
	if err != nil {
		return &StoreError{Op: "save_message", SessionID: s.sessionID, Err: err}
	}
	return nil
}

func (s *boltStore) GetMessages(beginSeqNum, endSeqNum uint64) ([][]byte, error) {
	if err := validateRange(beginSeqNum, endSeqNum); err != nil {
		return nil, err
	}

	msgs := make([][]byte, endSeqNum-beginSeqNum+1)
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(s.bucket)
		if root == nil {
			return fmt.Errorf("bucket %s missing", s.bucket)
		}
		c := root.Bucket(messagesBucketName).Cursor()
		for k, v := c.Seek(seqKey(beginSeqNum)); k != nil; k, v = c.Next() {
			seq := binary.BigEndian.Uint64(k)
			if seq > endSeqNum {
				break
			}
			// Values are only valid for the life of the transaction.
			msgs[seq-beginSeqNum] = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, &StoreError{Op: "get_messages", SessionID: s.sessionID, Err: err}
	}
	return msgs, nil
}

func (s *boltStore) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(s.bucket)
		if root == nil {
			return fmt.Errorf("bucket %s missing", s.bucket)
		}
		meta := root.Bucket(metaBucketName)
		if meta == nil {
			return fmt.Errorf("meta bucket missing for %s", s.bucket)
		}
		s.nextSenderMsgSeqNum = binary.BigEndian.Uint64(meta.Get(senderKey))
		s.nextTargetMsgSeqNum = binary.BigEndian.Uint64(meta.Get(targetKey))
		created, err := time.Parse(time.RFC3339Nano, string(meta.Get(creationKey)))
		if err != nil {
			return err
		}
		s.creationTime = created
		return nil
	})
	if err != nil {
		return &StoreError{Op: "refresh", SessionID: s.sessionID, Err: err}
	}
	return nil
}

func (s *boltStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	err := s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(s.bucket)
		if root == nil {
			return fmt.Errorf("bucket %s missing", s.bucket)
		}
		if err := root.DeleteBucket(messagesBucketName); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		if _, err := root.CreateBucket(messagesBucketName); err != nil {
			return err
		}
		return putMeta(root.Bucket(metaBucketName), 1, 1, now)
	})
	if err != nil {
		return &StoreError{Op: "reset", SessionID: s.sessionID, Err: err}
	}

	s.nextSenderMsgSeqNum = 1
	s.nextTargetMsgSeqNum = 1
	s.creationTime = now
	return nil
}

// Close is a no-op, the factory owns the database.
func (s *boltStore) Close() error {
	return nil
}

func (s *boltStore) putCounter(op string, key []byte, value uint64) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(s.bucket)
		if root == nil {
			return fmt.Errorf("bucket %s missing", s.bucket)
		}
		return root.Bucket(metaBucketName).Put(key, uint64Bytes(value))
	})
	if err != nil {
		return &StoreError{Op: op, SessionID: s.sessionID, Err: err}
	}
	return nil
}

func putMeta(meta *bolt.Bucket, sender, target uint64, created time.Time) error {
	if err := meta.Put(senderKey, uint64Bytes(sender)); err != nil {
		return err
	}
	if err := meta.Put(targetKey, uint64Bytes(target)); err != nil {
		return err
	}
	return meta.Put(creationKey, []byte(created.Format(time.RFC3339Nano)))
}

// Big endian keys keep the cursor in sequence order.
func seqKey(seq uint64) []byte {
	return uint64Bytes(seq)
}

func uint64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
