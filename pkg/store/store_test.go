package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fr3shw3b/fix-session-engine/pkg/fix"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSessionID = fix.SessionID{
	BeginString:  fix.BeginStringFIX44,
	SenderCompID: "ISLD",
	TargetCompID: "TW",
}

func createLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

// exerciseStore checks the contract every variant must satisfy.
func exerciseStore(t *testing.T, s MessageStore) {
	t.Helper()

	require.Equal(t, uint64(1), s.NextSenderMsgSeqNum())
	require.Equal(t, uint64(1), s.NextTargetMsgSeqNum())
	require.False(t, s.CreationTime().IsZero())

	require.NoError(t, s.SaveMessage(1, []byte("first")))
	require.NoError(t, s.IncrNextSenderMsgSeqNum())
	require.NoError(t, s.SaveMessage(3, []byte("third")))
	require.NoError(t, s.SetNextSenderMsgSeqNum(4))
	require.NoError(t, s.IncrNextTargetMsgSeqNum())
	require.NoError(t, s.IncrNextTargetMsgSeqNum())

	assert.Equal(t, uint64(4), s.NextSenderMsgSeqNum())
	assert.Equal(t, uint64(3), s.NextTargetMsgSeqNum())

	msgs, err := s.GetMessages(1, 4)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, []byte("first"), msgs[0])
	assert.Nil(t, msgs[1], "unsaved sequence numbers are empty placeholders")
	assert.Equal(t, []byte("third"), msgs[2])
	assert.Nil(t, msgs[3])

	_, err = s.GetMessages(5, 4)
	assert.True(t, errors.Is(err, ErrInvalidRange))
	_, err = s.GetMessages(0, 4)
	assert.True(t, errors.Is(err, ErrInvalidRange))

	created := s.CreationTime()
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, s.Reset())
	assert.Equal(t, uint64(1), s.NextSenderMsgSeqNum())
	assert.Equal(t, uint64(1), s.NextTargetMsgSeqNum())
	assert.True(t, s.CreationTime().After(created))

	msgs, err = s.GetMessages(1, 3)
	require.NoError(t, err)
	for _, m := range msgs {
		assert.Nil(t, m)
	}
}

func Test_in_memory_store(t *testing.T) {
	s := NewInMemoryStore(testSessionID, createLogger())
	exerciseStore(t, s)
	assert.NoError(t, s.Refresh())
}

func Test_in_memory_store_copies_saved_buffer(t *testing.T) {
	s := NewInMemoryStore(testSessionID, createLogger())
	buf := []byte("abc")
	require.NoError(t, s.SaveMessage(1, buf))
	buf[0] = 'x'

	msgs, err := s.GetMessages(1, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), msgs[0])
}

func Test_bolt_store(t *testing.T) {
	f, err := OpenBoltStoreFactory(&BoltStoreParams{Path: filepath.Join(t.TempDir(), "fix.db")}, createLogger())
	require.NoError(t, err)
	defer f.Close()

	s, err := f.Create(testSessionID)
	require.NoError(t, err)
	exerciseStore(t, s)
}

func Test_bolt_store_survives_restart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "fix.db")
	logger := createLogger()

	f, err := OpenBoltStoreFactory(&BoltStoreParams{Path: path}, logger)
	require.NoError(t, err)
	s, err := f.Create(testSessionID)
	require.NoError(t, err)

	for seq := uint64(1); seq <= 5; seq += 1 {
		require.Equal(t, seq, s.NextSenderMsgSeqNum())
		require.NoError(t, s.SaveMessage(seq, []byte{byte('a' + seq)}))
		require.NoError(t, s.IncrNextSenderMsgSeqNum())
	}
	require.NoError(t, s.SetNextTargetMsgSeqNum(9))
	created := s.CreationTime()
	require.NoError(t, f.Close())

	f, err = OpenBoltStoreFactory(&BoltStoreParams{Path: path}, logger)
	require.NoError(t, err)
	defer f.Close()
	s, err = f.Create(testSessionID)
	require.NoError(t, err)

	assert.Equal(t, uint64(6), s.NextSenderMsgSeqNum())
	assert.Equal(t, uint64(9), s.NextTargetMsgSeqNum())
	assert.True(t, created.Equal(s.CreationTime()))

	msgs, err := s.GetMessages(2, 4)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{'c'}, {'d'}, {'e'}}, msgs)

	other, err := f.Create(testSessionID.Reverse())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), other.NextSenderMsgSeqNum(), "sessions are isolated by id")
}

func Test_postgres_store(t *testing.T) {
	dsn := os.Getenv("FIX_POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("FIX_POSTGRES_TEST_DSN not set")
	}

	f, err := OpenPostgresStoreFactory(&PostgresStoreParams{DSN: dsn}, createLogger())
	require.NoError(t, err)
	defer f.Close()

	id := testSessionID
	id.Qualifier = "test-" + time.Now().Format("150405.000000")
	s, err := f.Create(id)
	require.NoError(t, err)
	exerciseStore(t, s)

	require.NoError(t, s.SetNextTargetMsgSeqNum(42))
	shared, err := f.Create(id)
	require.NoError(t, err)
	require.NoError(t, shared.SetNextTargetMsgSeqNum(43))
	require.NoError(t, s.Refresh())
	assert.Equal(t, uint64(43), s.NextTargetMsgSeqNum())
}

func Test_new_factory_rejects_unknown_kind(t *testing.T) {
	_, _, err := NewFactory(&FactoryParams{Kind: "tape"}, createLogger())
	assert.Error(t, err)

	f, closer, err := NewFactory(&FactoryParams{}, createLogger())
	require.NoError(t, err)
	defer closer.Close()
	s, err := f.Create(testSessionID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), s.NextSenderMsgSeqNum())
}
