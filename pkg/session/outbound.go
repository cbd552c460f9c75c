package session

import (
	"errors"
	"strconv"

	"github.com/fr3shw3b/fix-session-engine/pkg/fix"
	"github.com/google/uuid"
)

// Send sequences, persists and transmits msg. Application messages are only
// written to the wire while logged on; otherwise they are stored and can be
// recovered by the counterparty through a ResendRequest.
//
// The bool reports whether the transport accepted the bytes. A veto from
// ToApp returns fix.ErrDoNotSend and consumes no sequence number; a store
// failure returns a *store.StoreError and the message counts as not sent.
func (s *Session) Send(msg *fix.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendLocked(msg)
}

func (s *Session) sendLocked(msg *fix.Message) (bool, error) {
	msgType, err := msg.MsgType()
	if err != nil {
		return false, err
	}
	s.stampHeader(msg, s.store.NextSenderMsgSeqNum())

	admin := fix.IsAdminMsgType(msgType)
	if admin {
		s.app.ToAdmin(msg, s.id)
	} else if err := s.app.ToApp(msg, s.id); err != nil {
		if errors.Is(err, fix.ErrDoNotSend) {
			s.logger.Debug("outbound message vetoed by application")
		}
		return false, err
	}

	seqNum, err := msg.SeqNum()
	if err != nil {
		return false, err
	}
	raw, err := msg.Build()
	if err != nil {
		return false, err
	}

	if s.settings.PersistMessages {
		if err := s.store.SaveMessage(seqNum, raw); err != nil {
			return false, s.ioError(err)
		}
	}
	if err := s.store.IncrNextSenderMsgSeqNum(); err != nil {
		return false, s.ioError(err)
	}

	if s.responder == nil || (!admin && s.state != StateEstablished) {
		return false, nil
	}
	return s.transmit(raw), nil
}

func (s *Session) transmit(raw []byte) bool {
	s.log.OnOutgoing(s.id, raw)
	s.lastSent = s.now()
	return s.responder.Send(raw)
}

// transmitBatch writes resend traffic, ahead of queued sends when the
// transport supports it.
func (s *Session) transmitBatch(raws [][]byte) {
	if len(raws) == 0 || s.responder == nil {
		return
	}
	for _, raw := range raws {
		s.log.OnOutgoing(s.id, raw)
	}
	s.lastSent = s.now()
	if p, ok := s.responder.(PrioritySender); ok {
		if n := p.PrioritySend(raws); n < len(raws) {
			s.logger.Warnf("transport accepted %d of %d resent messages", n, len(raws))
		}
		return
	}
	for _, raw := range raws {
		if !s.responder.Send(raw) {
			s.logger.Warn("transport refused resent message")
			return
		}
	}
}

func (s *Session) stampHeader(msg *fix.Message, seqNum uint64) {
	h := &msg.Header
	h.SetString(fix.TagBeginString, s.id.BeginString)
	h.SetString(fix.TagSenderCompID, s.id.SenderCompID)
	setOptional(h, fix.TagSenderSubID, s.id.SenderSubID)
	setOptional(h, fix.TagSenderLocationID, s.id.SenderLocationID)
	h.SetString(fix.TagTargetCompID, s.id.TargetCompID)
	setOptional(h, fix.TagTargetSubID, s.id.TargetSubID)
	setOptional(h, fix.TagTargetLocationID, s.id.TargetLocationID)
	h.SetSeqNum(fix.TagMsgSeqNum, seqNum)
	h.SetTime(fix.TagSendingTime, s.now(), s.settings.TimestampPrecision)
}

func setOptional(m *fix.FieldMap, tag fix.Tag, value string) {
	if value != "" {
		m.SetString(tag, value)
	}
}

func (s *Session) newMessage(msgType string) *fix.Message {
	return s.factory.Create(msgType)
}

func (s *Session) sendAdmin(msg *fix.Message) error {
	_, err := s.sendLocked(msg)
	return err
}

func (s *Session) sendLogon(reset bool) error {
	logon := s.newMessage(fix.MsgTypeLogon)
	logon.Body.SetInt(fix.TagEncryptMethod, 0)
	logon.Body.SetInt(fix.TagHeartBtInt, int(s.heartBtInt.Seconds()))
	if reset {
		logon.Body.SetBool(fix.TagResetSeqNumFlag, true)
	}
	if s.id.BeginString == fix.BeginStringFIXT11 && s.settings.DefaultApplVerID != "" {
		logon.Body.SetString(fix.TagDefaultApplVerID, s.settings.DefaultApplVerID)
	}
	s.resetSent = reset
	return s.sendAdmin(logon)
}

func (s *Session) sendHeartbeat(testReqID string) error {
	heartbeat := s.newMessage(fix.MsgTypeHeartbeat)
	if testReqID != "" {
		heartbeat.Body.SetString(fix.TagTestReqID, testReqID)
	}
	return s.sendAdmin(heartbeat)
}

func (s *Session) sendTestRequest() error {
	testRequest := s.newMessage(fix.MsgTypeTestRequest)
	testRequest.Body.SetString(fix.TagTestReqID, uuid.NewString())
	return s.sendAdmin(testRequest)
}

func (s *Session) generateLogout(text string) {
	logout := s.newMessage(fix.MsgTypeLogout)
	if text != "" {
		logout.Body.SetString(fix.TagText, text)
	}
	if err := s.sendAdmin(logout); err != nil {
		s.logger.Error("failed to send logout: ", err)
	}
}

// infiniteSeqNum is the open ended EndSeqNo of a ResendRequest.
func (s *Session) infiniteSeqNum() uint64 {
	if fix.BeginStringAtLeast(s.id.BeginString, fix.BeginStringFIX42) {
		return 0
	}
	return 999999
}

func (s *Session) sendResendRequest(begin, end uint64) error {
	request := s.newMessage(fix.MsgTypeResendRequest)
	request.Body.SetSeqNum(fix.TagBeginSeqNo, begin)
	request.Body.SetSeqNum(fix.TagEndSeqNo, end)
	if err := s.sendAdmin(request); err != nil {
		return err
	}
	s.log.OnEvent(s.id, "Sent ResendRequest FROM: "+strconv.FormatUint(begin, 10)+" TO: "+strconv.FormatUint(end, 10))
	s.listener.OnResendRequestSent(s.id, begin, end)
	return nil
}

// generateReject answers an inbound message with a session Reject, or a
// BusinessMessageReject when rej asks for one and the version has it. The
// rejected message's sequence number is consumed when it was the expected
// one.
func (s *Session) generateReject(msg *fix.Message, rej *fix.MessageRejectError) error {
	msgType, _ := msg.MsgType()
	seqNum, _ := msg.SeqNum()
	atLeast42 := fix.BeginStringAtLeast(s.id.BeginString, fix.BeginStringFIX42)

	var reply *fix.Message
	if rej.BusinessReject && atLeast42 {
		reply = s.newMessage(fix.MsgTypeBusinessMessageReject)
		reply.Body.SetSeqNum(fix.TagRefSeqNum, seqNum)
		reply.Body.SetString(fix.TagRefMsgType, msgType)
		reply.Body.SetInt(fix.TagBusinessRejectReason, rej.BusinessReason)
	} else {
		reply = s.newMessage(fix.MsgTypeReject)
		reply.Body.SetSeqNum(fix.TagRefSeqNum, seqNum)
		if atLeast42 {
			reply.Body.SetString(fix.TagRefMsgType, msgType)
			reply.Body.SetInt(fix.TagSessionRejectReason, int(rej.Reason))
		}
		if rej.RefTag != 0 && atLeast42 {
			reply.Body.SetInt(fix.TagRefTagID, int(rej.RefTag))
		}
	}
	if rej.Text != "" {
		reply.Body.SetString(fix.TagText, rej.Text)
	}

	if msgType != fix.MsgTypeLogon && msgType != fix.MsgTypeSequenceReset &&
		seqNum == s.store.NextTargetMsgSeqNum() {
		if err := s.store.IncrNextTargetMsgSeqNum(); err != nil {
			return s.ioError(err)
		}
	}

	s.log.OnErrorEvent(s.id, EventInvalidMessage, "Message "+strconv.FormatUint(seqNum, 10)+" rejected: "+rej.Error())
	return s.sendAdmin(reply)
}
