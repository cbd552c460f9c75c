package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/fr3shw3b/fix-session-engine/pkg/fix"
)

// verdict is the outcome of checking an inbound message's header and
// sequence number.
type verdict int

const (
	// MsgSeqNum is the expected one; process the message.
	verdictProcess verdict = iota
	// Ahead of the expected number; buffered until the gap is filled.
	verdictQueued
	// A PossDup retransmission of something already processed.
	verdictDuplicate
	// Rejected or the session is going down; nothing more to do.
	verdictRefused
)

// Receive processes one framed inbound message. Garbled input is logged
// and dropped. The returned error carries store failures and the
// application errors that were turned into rejects.
func (s *Session) Receive(raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.responder == nil {
		return ErrNotConnected
	}

	s.log.OnIncoming(s.id, raw)
	msg, err := s.factory.Parse(raw)
	if err != nil {
		s.log.OnErrorEvent(s.id, EventGarbledMessage, err.Error())
		return nil
	}

	s.lastReceived = s.now()
	s.testRequestCounter = 0

	var errs []error
	if err := s.processMessage(msg, false); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, s.drainQueue()...)
	return errors.Join(errs...)
}

// Garbled records input that could not be framed into a message before it
// reached Receive.
func (s *Session) Garbled(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.OnErrorEvent(s.id, EventGarbledMessage, err.Error())
}

// drainQueue delivers buffered messages for as long as the next expected
// sequence number is present in the queue.
func (s *Session) drainQueue() []error {
	var errs []error
	for s.state == StateEstablished {
		next := s.store.NextTargetMsgSeqNum()
		msg, ok := s.queue.Dequeue(next)
		if !ok {
			return errs
		}
		s.logger.Debugf("processing queued message %d", next)

		msgType, _ := msg.MsgType()
		if msgType == fix.MsgTypeLogon || msgType == fix.MsgTypeResendRequest {
			// already acted upon when it first arrived
			if err := s.store.IncrNextTargetMsgSeqNum(); err != nil {
				return append(errs, s.ioError(err))
			}
			continue
		}
		if err := s.processMessage(msg, true); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (s *Session) processMessage(msg *fix.Message, queued bool) error {
	msgType, _ := msg.MsgType()
	seqNum, err := msg.SeqNum()
	if err != nil {
		text := "Received message without a valid MsgSeqNum(34)"
		s.log.OnErrorEvent(s.id, EventInvalidMessage, text)
		if s.state.awaitingLogon() {
			s.disconnectLocked(text)
			return nil
		}
		s.generateLogout(text)
		s.disconnectLocked(text)
		return nil
	}

	if s.state.awaitingLogon() {
		if msgType != fix.MsgTypeLogon {
			text := fmt.Sprintf("First message received was not a Logon, MsgType=%s", msgType)
			s.log.OnErrorEvent(s.id, EventInvalidMessage, text)
			s.disconnectLocked(text)
			return nil
		}
		return s.handleLogon(msg, seqNum)
	}

	switch msgType {
	case fix.MsgTypeLogon:
		return s.handleLogonWhileLoggedOn(msg, seqNum)
	case fix.MsgTypeSequenceReset:
		return s.handleSequenceReset(msg, seqNum, queued)
	case fix.MsgTypeResendRequest:
		return s.handleResendRequest(msg, seqNum, queued)
	case fix.MsgTypeLogout:
		return s.handleLogout(msg, seqNum, queued)
	}

	if v, err := s.verify(msg, seqNum, true, true, queued); v != verdictProcess {
		return err
	}

	switch msgType {
	case fix.MsgTypeHeartbeat, fix.MsgTypeReject:
		err = s.app.FromAdmin(msg, s.id)
	case fix.MsgTypeTestRequest:
		if err = s.app.FromAdmin(msg, s.id); err == nil {
			testReqID, _ := msg.Body.GetString(fix.TagTestReqID)
			if sendErr := s.sendHeartbeat(testReqID); sendErr != nil {
				return sendErr
			}
		}
	default:
		err = s.app.FromApp(msg, s.id)
	}

	if err != nil {
		return s.rejectFromHook(msg, err)
	}
	return s.ioError(s.store.IncrNextTargetMsgSeqNum())
}

// rejectFromHook turns an application error into the matching reject and
// hands the error back to the caller.
func (s *Session) rejectFromHook(msg *fix.Message, err error) error {
	rej, ok := fix.AsMessageRejectError(err)
	if !ok {
		rej = &fix.MessageRejectError{Reason: fix.RejectReasonOther, Text: err.Error()}
	}
	if rejErr := s.generateReject(msg, rej); rejErr != nil {
		return errors.Join(err, rejErr)
	}
	if s.settings.DisconnectOnReject {
		s.initiateLogout(rej.Text)
	}
	return err
}

// verify runs the header checks every message goes through and classifies
// its sequence number.
func (s *Session) verify(msg *fix.Message, seqNum uint64, checkTooHigh, checkTooLow, queued bool) (verdict, error) {
	if s.settings.CheckCompID && !s.isCorrectCompID(msg) {
		rej := &fix.MessageRejectError{Reason: fix.RejectReasonCompIDProblem, Text: fix.RejectReasonCompIDProblem.String()}
		err := s.generateReject(msg, rej)
		s.initiateLogout(rej.Text)
		return verdictRefused, err
	}

	if s.settings.CheckLatency && !queued {
		sendingTime, err := msg.Header.GetTime(fix.TagSendingTime)
		if err != nil {
			rej, _ := fix.AsMessageRejectError(err)
			return verdictRefused, s.generateReject(msg, rej)
		}
		if !s.isGoodTime(sendingTime) {
			rej := &fix.MessageRejectError{
				Reason: fix.RejectReasonSendingTimeAccuracyProblem,
				RefTag: fix.TagSendingTime,
				Text:   fix.RejectReasonSendingTimeAccuracyProblem.String(),
			}
			err := s.generateReject(msg, rej)
			s.initiateLogout(rej.Text)
			return verdictRefused, err
		}
	}

	expected := s.store.NextTargetMsgSeqNum()
	if checkTooHigh && seqNum > expected {
		return verdictQueued, s.doTargetTooHigh(msg, seqNum)
	}
	if checkTooLow && seqNum < expected {
		return s.doTargetTooLow(msg, seqNum)
	}

	s.checkResendSatisfied(seqNum)
	return verdictProcess, nil
}

func (s *Session) isCorrectCompID(msg *fix.Message) bool {
	sender, _ := msg.Header.GetString(fix.TagSenderCompID)
	target, _ := msg.Header.GetString(fix.TagTargetCompID)
	return sender == s.id.TargetCompID && target == s.id.SenderCompID
}

func (s *Session) isGoodTime(sendingTime time.Time) bool {
	latency := s.now().Sub(sendingTime)
	if latency < 0 {
		latency = -latency
	}
	return latency <= s.settings.MaxLatency
}

func (s *Session) doTargetTooHigh(msg *fix.Message, seqNum uint64) error {
	expected := s.store.NextTargetMsgSeqNum()
	s.log.OnEvent(s.id, fmt.Sprintf("MsgSeqNum too high, expecting %d but received %d", expected, seqNum))

	if !s.queue.Enqueue(seqNum, msg) {
		s.logger.Warnf("message queue full, dropped message %d", seqNum)
	}

	if s.resend.active() && !s.settings.SendRedundantResendRequests && seqNum >= s.resend.begin {
		s.log.OnEvent(s.id, fmt.Sprintf("Already sent ResendRequest FROM: %d TO: %d, not sending another",
			s.resend.begin, s.resend.end))
		return nil
	}
	return s.requestResend(expected, seqNum-1)
}

// requestResend asks for [begin, end], in chunks when configured to.
func (s *Session) requestResend(begin, end uint64) error {
	sentEnd := end
	chunk := s.settings.ResendRequestChunkSize
	switch {
	case chunk > 0 && end-begin+1 > chunk:
		sentEnd = begin + chunk - 1
	case !s.settings.ClosedResendInterval:
		sentEnd = s.infiniteSeqNum()
	}
	s.resend = resendRange{begin: begin, end: end}
	if sentEnd != 0 && sentEnd < end {
		s.resend.currentEnd = sentEnd
	}
	return s.sendResendRequest(begin, sentEnd)
}

// checkResendSatisfied clears the outstanding ResendRequest once
// lastSeqNum reaches its end, or asks for the next chunk.
func (s *Session) checkResendSatisfied(lastSeqNum uint64) {
	if !s.resend.active() {
		return
	}
	if s.resend.chunked() && lastSeqNum >= s.resend.currentEnd && lastSeqNum < s.resend.end {
		if err := s.requestResend(lastSeqNum+1, s.resend.end); err != nil {
			s.logger.Error("failed to send next resend request chunk: ", err)
		}
		return
	}
	if lastSeqNum >= s.resend.end {
		s.log.OnEvent(s.id, fmt.Sprintf("ResendRequest for messages FROM: %d TO: %d has been satisfied",
			s.resend.begin, s.resend.end))
		s.resend = resendRange{}
	}
}

func (s *Session) doTargetTooLow(msg *fix.Message, seqNum uint64) (verdict, error) {
	expected := s.store.NextTargetMsgSeqNum()
	if !msg.IsPossDup() {
		text := fmt.Sprintf("MsgSeqNum too low, expecting %d but received %d", expected, seqNum)
		s.log.OnErrorEvent(s.id, EventInvalidMessage, text)
		if s.settings.SequenceTooLow == SequenceTooLowDisconnect {
			s.generateLogout(text)
			s.disconnectLocked(text)
		}
		return verdictRefused, nil
	}

	origSendingTime, err := msg.Header.GetTime(fix.TagOrigSendingTime)
	if err != nil {
		if !s.settings.RequiresOrigSendingTime {
			return verdictDuplicate, nil
		}
		rej, _ := fix.AsMessageRejectError(err)
		return verdictRefused, s.generateReject(msg, rej)
	}
	sendingTime, err := msg.Header.GetTime(fix.TagSendingTime)
	if err == nil && origSendingTime.After(sendingTime) {
		rej := &fix.MessageRejectError{
			Reason: fix.RejectReasonSendingTimeAccuracyProblem,
			RefTag: fix.TagOrigSendingTime,
			Text:   fix.RejectReasonSendingTimeAccuracyProblem.String(),
		}
		err := s.generateReject(msg, rej)
		s.initiateLogout(rej.Text)
		return verdictRefused, err
	}

	s.logger.Debugf("ignoring duplicate message %d", seqNum)
	return verdictDuplicate, nil
}

func (s *Session) handleLogon(msg *fix.Message, seqNum uint64) error {
	now := s.now()
	initiator := s.state == StateLogonSent

	if s.settings.CheckCompID && !s.isCorrectCompID(msg) {
		return s.refuseLogon("CompID problem")
	}

	resetReceived, _ := msg.Body.GetBool(fix.TagResetSeqNumFlag)
	if !initiator {
		if !s.enabled {
			return s.refuseLogon("Session is disabled")
		}
		if !s.schedule.IsSessionTime(now) {
			return s.refuseLogon("Logon received outside of session time")
		}
		if err := s.prepareLogon(now); err != nil {
			s.disconnectLocked(err.Error())
			return err
		}
		if s.settings.ResetOnLogon && !resetReceived {
			if err := s.resetLocked("reset on logon"); err != nil {
				s.disconnectLocked(err.Error())
				return err
			}
		}
	}

	if resetReceived {
		s.resetReceived = true
		s.log.OnEvent(s.id, "Logon contains ResetSeqNumFlag=Y, resetting sequence numbers to 1")
		s.listener.OnResetReceived(s.id)
		if !s.resetSent {
			var err error
			if initiator {
				// our own Logon already went out under the old numbering
				err = s.ioError(s.store.SetNextTargetMsgSeqNum(1))
			} else {
				err = s.resetLocked("ResetSeqNumFlag received")
			}
			if err != nil {
				s.disconnectLocked(err.Error())
				return err
			}
		}
	}

	expected := s.store.NextTargetMsgSeqNum()
	if seqNum < expected && !msg.IsPossDup() {
		text := fmt.Sprintf("MsgSeqNum too low, expecting %d but received %d", expected, seqNum)
		s.log.OnErrorEvent(s.id, EventInvalidMessage, text)
		s.generateLogout(text)
		s.disconnectLocked(text)
		return nil
	}

	heartBtInt, err := msg.Body.GetInt(fix.TagHeartBtInt)
	if err != nil || heartBtInt < 0 {
		return s.refuseLogon("Logon without a valid HeartBtInt(108)")
	}

	if !s.app.CanLogon(s.id) {
		return s.refuseLogon("Logon rejected by application")
	}
	if err := s.app.FromAdmin(msg, s.id); err != nil {
		text := err.Error()
		if rej, ok := fix.AsMessageRejectError(err); ok {
			text = rej.Text
		}
		if refuseErr := s.refuseLogon(text); refuseErr != nil {
			return errors.Join(err, refuseErr)
		}
		return err
	}

	if !initiator {
		s.heartBtInt = time.Duration(heartBtInt) * time.Second
		if err := s.sendLogon(resetReceived || s.settings.ResetOnLogon); err != nil {
			s.disconnectLocked(err.Error())
			return err
		}
	}

	s.setState(StateEstablished)
	s.log.OnEvent(s.id, "Logon complete")
	s.app.OnLogon(s.id)
	s.listener.OnLogon(s.id)

	switch next := s.store.NextTargetMsgSeqNum(); {
	case seqNum > next && !resetReceived:
		return s.doTargetTooHigh(msg, seqNum)
	case seqNum < next && !resetReceived:
		return nil
	}
	return s.ioError(s.store.IncrNextTargetMsgSeqNum())
}

// refuseLogon answers a Logon with a Logout and drops the connection.
func (s *Session) refuseLogon(text string) error {
	s.log.OnErrorEvent(s.id, EventSessionError, text)
	s.generateLogout(text)
	s.disconnectLocked(text)
	return nil
}

// handleLogonWhileLoggedOn accepts an in-session sequence reset through
// ResetSeqNumFlag; any other Logon is rejected.
func (s *Session) handleLogonWhileLoggedOn(msg *fix.Message, seqNum uint64) error {
	resetReceived, _ := msg.Body.GetBool(fix.TagResetSeqNumFlag)
	if !resetReceived {
		if v, err := s.verify(msg, seqNum, true, true, false); v != verdictProcess {
			return err
		}
		return s.generateReject(msg, &fix.MessageRejectError{
			Reason: fix.RejectReasonValueIsIncorrect,
			RefTag: fix.TagMsgType,
			Text:   "Logon received while already logged on",
		})
	}

	s.log.OnEvent(s.id, "Logon with ResetSeqNumFlag=Y received while logged on")
	s.listener.OnResetReceived(s.id)
	if err := s.resetLocked("ResetSeqNumFlag received"); err != nil {
		s.disconnectLocked(err.Error())
		return err
	}
	if err := s.sendLogon(true); err != nil {
		return err
	}
	s.resetReceived = true

	switch {
	case seqNum > 1:
		return s.doTargetTooHigh(msg, seqNum)
	case seqNum < 1:
		_, err := s.doTargetTooLow(msg, seqNum)
		return err
	}
	return s.ioError(s.store.IncrNextTargetMsgSeqNum())
}

func (s *Session) handleSequenceReset(msg *fix.Message, seqNum uint64, queued bool) error {
	gapFill, _ := msg.Body.GetBool(fix.TagGapFillFlag)
	if v, err := s.verify(msg, seqNum, gapFill, gapFill, queued); v != verdictProcess {
		return err
	}

	newSeqNo, err := msg.Body.GetUint(fix.TagNewSeqNo)
	if err != nil {
		rej, _ := fix.AsMessageRejectError(err)
		return s.generateReject(msg, rej)
	}
	if err := s.app.FromAdmin(msg, s.id); err != nil {
		return s.rejectFromHook(msg, err)
	}

	expected := s.store.NextTargetMsgSeqNum()
	kind := "SequenceReset"
	if gapFill {
		kind = "GapFill"
	}
	s.log.OnEvent(s.id, fmt.Sprintf("Received %s FROM: %d TO: %d", kind, expected, newSeqNo))

	switch {
	case newSeqNo > expected:
	case newSeqNo < expected && !gapFill && newSeqNo > 0:
		s.logger.Warnf("SequenceReset lowers next target MsgSeqNum from %d to %d", expected, newSeqNo)
	case newSeqNo == expected:
		return nil
	default:
		return s.generateReject(msg, &fix.MessageRejectError{
			Reason: fix.RejectReasonValueIsIncorrect,
			RefTag: fix.TagNewSeqNo,
			Text:   fmt.Sprintf("NewSeqNo %d must be greater than the expected MsgSeqNum %d", newSeqNo, expected),
		})
	}

	if err := s.ioError(s.store.SetNextTargetMsgSeqNum(newSeqNo)); err != nil {
		return err
	}
	s.queue.DequeueUpTo(newSeqNo)
	s.listener.OnSequenceResetReceived(s.id, newSeqNo, gapFill)
	s.checkResendSatisfied(newSeqNo - 1)
	return nil
}

func (s *Session) handleResendRequest(msg *fix.Message, seqNum uint64, queued bool) error {
	if v, err := s.verify(msg, seqNum, false, true, queued); v != verdictProcess {
		return err
	}

	begin, err := msg.Body.GetUint(fix.TagBeginSeqNo)
	if err != nil {
		rej, _ := fix.AsMessageRejectError(err)
		return s.generateReject(msg, rej)
	}
	end, err := msg.Body.GetUint(fix.TagEndSeqNo)
	if err != nil {
		rej, _ := fix.AsMessageRejectError(err)
		return s.generateReject(msg, rej)
	}
	if err := s.app.FromAdmin(msg, s.id); err != nil {
		return s.rejectFromHook(msg, err)
	}

	if err := s.resendMessages(begin, end); err != nil {
		return err
	}

	if seqNum > s.store.NextTargetMsgSeqNum() {
		return s.doTargetTooHigh(msg, seqNum)
	}
	return s.ioError(s.store.IncrNextTargetMsgSeqNum())
}

func (s *Session) handleLogout(msg *fix.Message, seqNum uint64, queued bool) error {
	if v, err := s.verify(msg, seqNum, false, false, queued); v != verdictProcess {
		return err
	}
	if err := s.app.FromAdmin(msg, s.id); err != nil {
		s.logger.Warn("logout rejected by application: ", err)
	}

	if s.state == StateLogoutSent {
		s.log.OnEvent(s.id, "Received logout response")
	} else {
		s.log.OnEvent(s.id, "Received logout request")
		s.generateLogout("")
	}

	var err error
	if seqNum == s.store.NextTargetMsgSeqNum() {
		err = s.ioError(s.store.IncrNextTargetMsgSeqNum())
	}
	s.disconnectLocked("logout")
	if s.settings.ResetOnLogout {
		if resetErr := s.resetLocked("reset on logout"); resetErr != nil {
			err = errors.Join(err, resetErr)
		}
	}
	return err
}
