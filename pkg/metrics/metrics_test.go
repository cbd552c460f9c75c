package metrics

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/fr3shw3b/fix-session-engine/pkg/fix"
	"github.com/fr3shw3b/fix-session-engine/pkg/session"
	"github.com/fr3shw3b/fix-session-engine/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSessionID = fix.SessionID{BeginString: "FIX.4.4", SenderCompID: "ACCEPTOR", TargetCompID: "INITIATOR"}

type nopResponder struct{}

func (nopResponder) Send([]byte) bool      { return true }
func (nopResponder) Disconnect()           {}
func (nopResponder) RemoteAddress() string { return "test" }

type staticSource []*session.Session

func (s staticSource) All() []*session.Session { return s }

func createSession(t *testing.T, m *Metrics) *session.Session {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s, err := session.New(session.Params{
		SessionID:     testSessionID,
		Settings:      session.NewSettings(),
		Store:         store.NewInMemoryStore(testSessionID, logger),
		StateListener: m.StateListener(),
		MessageLog:    m.MessageLog(session.NewLogrusMessageLog(logger)),
	}, logger)
	require.NoError(t, err)
	return s
}

func logon(t *testing.T) []byte {
	t.Helper()
	m := fix.NewMessage()
	m.Header.SetString(fix.TagBeginString, testSessionID.BeginString)
	m.Header.SetString(fix.TagMsgType, fix.MsgTypeLogon)
	m.Header.SetString(fix.TagSenderCompID, testSessionID.TargetCompID)
	m.Header.SetString(fix.TagTargetCompID, testSessionID.SenderCompID)
	m.Header.SetSeqNum(fix.TagMsgSeqNum, 1)
	m.Header.SetTime(fix.TagSendingTime, time.Now(), fix.Millis)
	m.Body.SetInt(fix.TagEncryptMethod, 0)
	m.Body.SetInt(fix.TagHeartBtInt, 30)
	raw, err := m.Build()
	require.NoError(t, err)
	return raw
}

func Test_metrics_count_session_activity(t *testing.T) {
	m := New()
	s := createSession(t, m)
	id := testSessionID.String()

	require.NoError(t, s.Connect(nopResponder{}))
	require.NoError(t, s.Receive(logon(t)))
	require.NoError(t, s.Receive([]byte("8=FIX.4.4\x019=5\x0135=0\x0110=000\x01")))
	s.Disconnect("done")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues(id, EventConnect)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues(id, EventLogon)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues(id, EventLogout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues(id, EventDisconnect)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesTotal.WithLabelValues(id, "in")), "garbled input is still counted")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesTotal.WithLabelValues(id, "out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues(id, session.EventGarbledMessage)))
	assert.Greater(t, testutil.ToFloat64(m.BytesTotal.WithLabelValues(id, "out")), 0.0)
}

func Test_state_listener_splits_sequence_resets(t *testing.T) {
	m := New()
	l := m.StateListener()
	l.OnSequenceResetReceived(testSessionID, 5, true)
	l.OnSequenceResetReceived(testSessionID, 5, false)
	l.OnSequenceResetReceived(testSessionID, 9, true)
	l.OnConnectException(testSessionID, errors.New("refused"))

	id := testSessionID.String()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues(id, EventGapFill)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues(id, EventSequenceReset)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues(id, EventConnectException)))
}

func Test_register_rejects_duplicates(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New()
	require.NoError(t, m.Register(reg))
	assert.Error(t, m.Register(reg))
}

func Test_session_collector_reports_sequence_numbers(t *testing.T) {
	m := New()
	s := createSession(t, m)
	require.NoError(t, s.SetNextSenderMsgSeqNum(7))
	require.NoError(t, s.SetNextTargetMsgSeqNum(4))

	collector := NewSessionCollector(staticSource{s})
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(collector))

	assert.Equal(t, 4, testutil.CollectAndCount(collector))
	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			values[family.GetName()] = metric.GetGauge().GetValue()
		}
	}
	assert.Equal(t, 7.0, values["fix_session_next_sender_seq_num"])
	assert.Equal(t, 4.0, values["fix_session_next_target_seq_num"])
	assert.Equal(t, 0.0, values["fix_session_logged_on"])
	assert.Equal(t, 1.0, values["fix_session_state"])
}
