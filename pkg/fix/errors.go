package fix

import (
	"errors"
	"fmt"
)

// ErrDoNotSend is returned by an outbound application hook to veto a message.
var ErrDoNotSend = errors.New("fix: message vetoed by application")

// RejectReason is the SessionRejectReason(373) code.
type RejectReason int

const (
	RejectReasonInvalidTagNumber           RejectReason = 0
	RejectReasonRequiredTagMissing         RejectReason = 1
	RejectReasonTagNotDefinedForMsgType    RejectReason = 2
	RejectReasonUndefinedTag               RejectReason = 3
	RejectReasonTagSpecifiedWithoutValue   RejectReason = 4
	RejectReasonValueIsIncorrect           RejectReason = 5
	RejectReasonIncorrectDataFormat        RejectReason = 6
	RejectReasonCompIDProblem              RejectReason = 9
	RejectReasonSendingTimeAccuracyProblem RejectReason = 10
	RejectReasonInvalidMsgType             RejectReason = 11
	RejectReasonOther                      RejectReason = 99
)

// BusinessRejectReason(380) values used by the session layer.
const (
	BusinessRejectReasonOther                  = 0
	BusinessRejectReasonUnsupportedMessageType = 3
)

var rejectReasonText = map[RejectReason]string{
	RejectReasonInvalidTagNumber:           "Invalid tag number",
	RejectReasonRequiredTagMissing:         "Required tag missing",
	RejectReasonTagNotDefinedForMsgType:    "Tag not defined for this message type",
	RejectReasonUndefinedTag:               "Undefined tag",
	RejectReasonTagSpecifiedWithoutValue:   "Tag specified without a value",
	RejectReasonValueIsIncorrect:           "Value is incorrect (out of range) for this tag",
	RejectReasonIncorrectDataFormat:        "Incorrect data format for value",
	RejectReasonCompIDProblem:              "CompID problem",
	RejectReasonSendingTimeAccuracyProblem: "SendingTime accuracy problem",
	RejectReasonInvalidMsgType:             "Invalid MsgType",
	RejectReasonOther:                      "Other",
}

func (r RejectReason) String() string {
	if text, ok := rejectReasonText[r]; ok {
		return text
	}
	return fmt.Sprintf("RejectReason(%d)", int(r))
}

// MessageRejectError describes why an inbound message was refused. The
// session converts it into a Reject, BusinessMessageReject or Logout.
type MessageRejectError struct {
	Reason         RejectReason
	RefTag         Tag
	Text           string
	BusinessReject bool
	BusinessReason int
	rejectLogon    bool
}

func (e *MessageRejectError) Error() string {
	if e.rejectLogon {
		return fmt.Sprintf("logon rejected: %s", e.Text)
	}
	if e.RefTag != 0 {
		return fmt.Sprintf("%s, field=%d", e.Text, e.RefTag)
	}
	return e.Text
}

// IsRejectLogon reports whether the error refuses a Logon.
func (e *MessageRejectError) IsRejectLogon() bool {
	return e.rejectLogon
}

func FieldNotFound(tag Tag) error {
	return &MessageRejectError{
		Reason: RejectReasonRequiredTagMissing,
		RefTag: tag,
		Text:   RejectReasonRequiredTagMissing.String(),
	}
}

func IncorrectDataFormat(tag Tag) error {
	return &MessageRejectError{
		Reason: RejectReasonIncorrectDataFormat,
		RefTag: tag,
		Text:   RejectReasonIncorrectDataFormat.String(),
	}
}

func IncorrectTagValue(tag Tag) error {
	return &MessageRejectError{
		Reason: RejectReasonValueIsIncorrect,
		RefTag: tag,
		Text:   RejectReasonValueIsIncorrect.String(),
	}
}

func UnsupportedMessageType() error {
	return &MessageRejectError{
		Reason:         RejectReasonInvalidMsgType,
		RefTag:         TagMsgType,
		Text:           "Unsupported Message Type",
		BusinessReject: true,
		BusinessReason: BusinessRejectReasonUnsupportedMessageType,
	}
}

func RejectLogon(text string) error {
	return &MessageRejectError{Reason: RejectReasonOther, Text: text, rejectLogon: true}
}

// AsMessageRejectError unwraps err into a *MessageRejectError when possible.
func AsMessageRejectError(err error) (*MessageRejectError, bool) {
	var rej *MessageRejectError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// ParseError marks inbound bytes that could not be decoded.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "fix: garbled message: " + e.Reason
}

func garbled(format string, args ...interface{}) error {
	return &ParseError{Reason: fmt.Sprintf(format, args...)}
}
