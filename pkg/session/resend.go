package session

import (
	"fmt"

	"github.com/fr3shw3b/fix-session-engine/pkg/fix"
)

// resendMessages answers a ResendRequest for [begin, end]. Stored
// application messages go out again flagged PossDup; admin messages,
// messages the application vetoes and numbers missing from the store are
// covered by GapFills. Nothing resent is stored again or consumes a new
// sequence number.
func (s *Session) resendMessages(begin, end uint64) error {
	nextSender := s.store.NextSenderMsgSeqNum()
	lastSent := nextSender - 1
	if end == 0 || end == s.infiniteSeqNum() || end > lastSent {
		end = lastSent
	}
	if begin == 0 || begin > end {
		s.log.OnEvent(s.id, fmt.Sprintf("Nothing to resend FROM: %d TO: %d, last sent is %d", begin, end, lastSent))
		return nil
	}
	s.log.OnEvent(s.id, fmt.Sprintf("Received ResendRequest FROM: %d TO: %d", begin, end))

	if !s.settings.PersistMessages {
		raw, err := s.buildGapFill(begin, nextSender)
		if err != nil {
			return err
		}
		s.transmitBatch([][]byte{raw})
		return nil
	}

	stored, err := s.store.GetMessages(begin, end)
	if err != nil {
		// without the archive the range can only be skipped
		_ = s.ioError(err)
		raw, gapErr := s.buildGapFill(begin, end+1)
		if gapErr != nil {
			return gapErr
		}
		s.transmitBatch([][]byte{raw})
		return nil
	}

	var (
		batch    [][]byte
		gapBegin uint64
	)
	flushGap := func(newSeqNo uint64) error {
		if gapBegin == 0 {
			return nil
		}
		raw, err := s.buildGapFill(gapBegin, newSeqNo)
		if err != nil {
			return err
		}
		batch = append(batch, raw)
		gapBegin = 0
		return nil
	}

	for i, raw := range stored {
		seqNum := begin + uint64(i)
		resent, ok := s.prepareResend(raw)
		if !ok {
			if gapBegin == 0 {
				gapBegin = seqNum
			}
			continue
		}
		if err := flushGap(seqNum); err != nil {
			return err
		}
		batch = append(batch, resent)
	}
	if err := flushGap(end + 1); err != nil {
		return err
	}

	s.transmitBatch(batch)
	return nil
}

// prepareResend rebuilds a stored message for retransmission, or reports
// false when it has to be gap filled.
func (s *Session) prepareResend(raw []byte) ([]byte, bool) {
	if raw == nil {
		return nil, false
	}
	msg, err := s.factory.Parse(raw)
	if err != nil {
		s.logger.Warn("stored message cannot be parsed, gap filling it: ", err)
		return nil, false
	}
	if msg.IsAdmin() {
		return nil, false
	}

	if sendingTime, ok := msg.Header.Get(fix.TagSendingTime); ok {
		msg.Header.Set(fix.Field{Tag: fix.TagOrigSendingTime, Type: sendingTime.Type, Value: sendingTime.Value})
	}
	msg.Header.SetBool(fix.TagPossDupFlag, true)
	msg.Header.SetTime(fix.TagSendingTime, s.now(), s.settings.TimestampPrecision)

	if err := s.app.ToApp(msg, s.id); err != nil {
		s.logger.Debug("resend vetoed by application, gap filling it: ", err)
		return nil, false
	}
	built, err := msg.Build()
	if err != nil {
		s.logger.Warn("failed to rebuild stored message, gap filling it: ", err)
		return nil, false
	}
	return built, true
}

// buildGapFill creates a SequenceReset-GapFill occupying seqNum and moving
// the counterparty on to newSeqNo.
func (s *Session) buildGapFill(seqNum, newSeqNo uint64) ([]byte, error) {
	gapFill := s.newMessage(fix.MsgTypeSequenceReset)
	s.stampHeader(gapFill, seqNum)
	gapFill.Header.SetBool(fix.TagPossDupFlag, true)
	if sendingTime, ok := gapFill.Header.Get(fix.TagSendingTime); ok {
		gapFill.Header.Set(fix.Field{Tag: fix.TagOrigSendingTime, Type: sendingTime.Type, Value: sendingTime.Value})
	}
	gapFill.Body.SetBool(fix.TagGapFillFlag, true)
	gapFill.Body.SetSeqNum(fix.TagNewSeqNo, newSeqNo)
	s.app.ToAdmin(gapFill, s.id)

	raw, err := gapFill.Build()
	if err != nil {
		return nil, err
	}
	s.log.OnEvent(s.id, fmt.Sprintf("Sent SequenceReset GapFill FROM: %d TO: %d", seqNum, newSeqNo))
	return raw, nil
}
