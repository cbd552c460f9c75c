package fix

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHeartbeat(t *testing.T) []byte {
	t.Helper()
	m := NewGenericFactory(BeginStringFIX44).Create(MsgTypeHeartbeat)
	m.Header.SetString(TagSenderCompID, "ISLD")
	m.Header.SetString(TagTargetCompID, "TW")
	m.Header.SetSeqNum(TagMsgSeqNum, 7)
	m.Header.SetTime(TagSendingTime, time.Date(2026, 3, 4, 5, 6, 7, 8_000_000, time.UTC), Millis)
	m.Body.SetString(TagTestReqID, "ping")
	raw, err := m.Build()
	require.NoError(t, err)
	return raw
}

func Test_build_produces_parseable_message(t *testing.T) {
	raw := newHeartbeat(t)
	require.True(t, bytes.HasPrefix(raw, []byte("8=FIX.4.4\x019=")))
	require.True(t, bytes.Contains(raw, []byte("\x0135=0\x01")))

	m, err := ParseMessage(raw)
	require.NoError(t, err)

	msgType, err := m.MsgType()
	require.NoError(t, err)
	assert.Equal(t, MsgTypeHeartbeat, msgType)

	seq, err := m.SeqNum()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), seq)

	sendingTime, err := m.Header.GetTime(TagSendingTime)
	require.NoError(t, err)
	assert.Equal(t, 8*time.Millisecond, time.Duration(sendingTime.Nanosecond()))

	id, err := m.Body.GetString(TagTestReqID)
	require.NoError(t, err)
	assert.Equal(t, "ping", id)
	assert.True(t, m.IsAdmin())
	assert.False(t, m.IsPossDup())
	assert.Equal(t, raw, m.Raw())
}

func Test_parse_rejects_garbled_input(t *testing.T) {
	valid := newHeartbeat(t)

	cases := []struct {
		name string
		raw  []byte
	}{
		{name: "empty", raw: nil},
		{name: "no_begin_string", raw: valid[bytes.IndexByte(valid, 0x01)+1:]},
		{name: "bad_checksum", raw: append(append([]byte(nil), valid[:len(valid)-4]...), []byte("999\x01")...)},
		{name: "truncated", raw: valid[:len(valid)-3]},
		{name: "wrong_body_length", raw: bytes.Replace(valid, []byte("9="), []byte("9=1"), 1)},
		{name: "trailing_bytes", raw: append(append([]byte(nil), valid...), []byte("58=x\x01")...)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseMessage(tc.raw)
			require.Error(t, err)
			var parseErr *ParseError
			assert.True(t, errors.As(err, &parseErr), "expected ParseError, got %v", err)
		})
	}
}

func Test_parse_keeps_embedded_soh_in_data_fields(t *testing.T) {
	m := NewGenericFactory(BeginStringFIX42).Create("B")
	m.Header.SetString(TagSenderCompID, "A")
	m.Header.SetString(TagTargetCompID, "B")
	m.Body.SetInt(TagRawDataLength, 5)
	m.Body.Set(NewDataField(TagRawData, []byte("ab\x01cd")))
	raw, err := m.Build()
	require.NoError(t, err)

	parsed, err := ParseMessage(raw)
	require.NoError(t, err)
	data, err := parsed.Body.GetString(TagRawData)
	require.NoError(t, err)
	assert.Equal(t, "ab\x01cd", data)
}

func Test_missing_field_is_required_tag_missing(t *testing.T) {
	m := NewMessage()
	_, err := m.Header.GetString(TagSenderCompID)
	rej, ok := AsMessageRejectError(err)
	require.True(t, ok)
	assert.Equal(t, RejectReasonRequiredTagMissing, rej.Reason)
	assert.Equal(t, TagSenderCompID, rej.RefTag)

	m.Header.SetString(TagMsgSeqNum, "abc")
	_, err = m.SeqNum()
	rej, ok = AsMessageRejectError(err)
	require.True(t, ok)
	assert.Equal(t, RejectReasonIncorrectDataFormat, rej.Reason)
}

func Test_copy_is_independent(t *testing.T) {
	m, err := ParseMessage(newHeartbeat(t))
	require.NoError(t, err)

	c := m.Copy()
	c.Header.SetBool(TagPossDupFlag, true)
	c.Header.Remove(TagSendingTime)

	assert.False(t, m.IsPossDup())
	assert.True(t, m.Header.Has(TagSendingTime))
	assert.True(t, c.IsPossDup())
	assert.True(t, strings.Contains(m.String(), "|35=0|"))
}

func Test_field_conversions(t *testing.T) {
	b, err := NewBoolField(TagGapFillFlag, true).Bool()
	require.NoError(t, err)
	assert.True(t, b)

	_, err = Field{Tag: TagGapFillFlag, Value: "maybe"}.Bool()
	assert.Error(t, err)

	f, err := NewFloatField(44, 101.25).Float()
	require.NoError(t, err)
	assert.Equal(t, 101.25, f)

	c, err := NewCharField(54, '1').Char()
	require.NoError(t, err)
	assert.Equal(t, byte('1'), c)

	ts := time.Date(2026, 1, 2, 3, 4, 5, 123456789, time.UTC)
	parsed, err := NewTimestampField(TagSendingTime, ts, Nanos).Time()
	require.NoError(t, err)
	assert.True(t, ts.Equal(parsed))

	date, err := NewUTCDateField(75, ts).Time()
	require.NoError(t, err)
	assert.Equal(t, 2, date.Day())

	assert.Equal(t, "20260102-03:04:05", FormatTimestamp(ts, Seconds))
	assert.Equal(t, "20260102-03:04:05.123456", FormatTimestamp(ts, Micros))
}
