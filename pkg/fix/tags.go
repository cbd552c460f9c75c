package fix

// Tag is a FIX field tag number.
type Tag int

// Session level tags.
const (
	TagBeginSeqNo             Tag = 7
	TagBeginString            Tag = 8
	TagBodyLength             Tag = 9
	TagCheckSum               Tag = 10
	TagEndSeqNo               Tag = 16
	TagMsgSeqNum              Tag = 34
	TagMsgType                Tag = 35
	TagNewSeqNo               Tag = 36
	TagPossDupFlag            Tag = 43
	TagRefSeqNum              Tag = 45
	TagSenderCompID           Tag = 49
	TagSenderSubID            Tag = 50
	TagSendingTime            Tag = 52
	TagTargetCompID           Tag = 56
	TagTargetSubID            Tag = 57
	TagText                   Tag = 58
	TagSignature              Tag = 89
	TagSecureDataLen          Tag = 90
	TagSecureData             Tag = 91
	TagSignatureLength        Tag = 93
	TagRawDataLength          Tag = 95
	TagRawData                Tag = 96
	TagPossResend             Tag = 97
	TagEncryptMethod          Tag = 98
	TagHeartBtInt             Tag = 108
	TagTestReqID              Tag = 112
	TagOnBehalfOfCompID       Tag = 115
	TagDeliverToCompID        Tag = 128
	TagOrigSendingTime        Tag = 122
	TagGapFillFlag            Tag = 123
	TagResetSeqNumFlag        Tag = 141
	TagSenderLocationID       Tag = 142
	TagTargetLocationID       Tag = 143
	TagXMLDataLen             Tag = 212
	TagXMLData                Tag = 213
	TagRefTagID               Tag = 371
	TagRefMsgType             Tag = 372
	TagSessionRejectReason    Tag = 373
	TagBusinessRejectRefID    Tag = 379
	TagBusinessRejectReason   Tag = 380
	TagLastMsgSeqNumProcessed Tag = 369
	TagDefaultApplVerID       Tag = 1137
)

// Message types of the session layer.
const (
	MsgTypeHeartbeat             = "0"
	MsgTypeTestRequest           = "1"
	MsgTypeResendRequest         = "2"
	MsgTypeReject                = "3"
	MsgTypeSequenceReset         = "4"
	MsgTypeLogout                = "5"
	MsgTypeLogon                 = "A"
	MsgTypeBusinessMessageReject = "j"
)

// Supported BeginString values.
const (
	BeginStringFIX40  = "FIX.4.0"
	BeginStringFIX41  = "FIX.4.1"
	BeginStringFIX42  = "FIX.4.2"
	BeginStringFIX43  = "FIX.4.3"
	BeginStringFIX44  = "FIX.4.4"
	BeginStringFIXT11 = "FIXT.1.1"
)

const soh = byte(0x01)

var headerTags = map[Tag]bool{
	TagBeginString:            true,
	TagBodyLength:             true,
	TagMsgType:                true,
	TagSenderCompID:           true,
	TagTargetCompID:           true,
	TagOnBehalfOfCompID:       true,
	TagDeliverToCompID:        true,
	TagSecureDataLen:          true,
	TagSecureData:             true,
	TagMsgSeqNum:              true,
	TagSenderSubID:            true,
	TagSenderLocationID:       true,
	TagTargetSubID:            true,
	TagTargetLocationID:       true,
	TagPossDupFlag:            true,
	TagPossResend:             true,
	TagSendingTime:            true,
	TagOrigSendingTime:        true,
	TagXMLDataLen:             true,
	TagXMLData:                true,
	TagLastMsgSeqNumProcessed: true,
}

var trailerTags = map[Tag]bool{
	TagSignatureLength: true,
	TagSignature:       true,
	TagCheckSum:        true,
}

// dataLengthTags maps a length tag to the data tag whose value may embed SOH.
var dataLengthTags = map[Tag]Tag{
	TagSecureDataLen:   TagSecureData,
	TagRawDataLength:   TagRawData,
	TagSignatureLength: TagSignature,
	TagXMLDataLen:      TagXMLData,
}

// IsHeaderTag reports whether tag belongs to the standard header.
func IsHeaderTag(tag Tag) bool { return headerTags[tag] }

// IsTrailerTag reports whether tag belongs to the standard trailer.
func IsTrailerTag(tag Tag) bool { return trailerTags[tag] }

// IsAdminMsgType reports whether msgType is a session level message.
func IsAdminMsgType(msgType string) bool {
	switch msgType {
	case MsgTypeHeartbeat, MsgTypeTestRequest, MsgTypeResendRequest, MsgTypeReject,
		MsgTypeSequenceReset, MsgTypeLogout, MsgTypeLogon:
		return true
	}
	return false
}

// BeginStringAtLeast compares two BeginStrings by protocol generation,
// FIXT.1.1 ranks above every FIX.4.x version.
func BeginStringAtLeast(beginString, minimum string) bool {
	return beginStringRank(beginString) >= beginStringRank(minimum)
}

func beginStringRank(beginString string) int {
	switch beginString {
	case BeginStringFIX40:
		return 40
	case BeginStringFIX41:
		return 41
	case BeginStringFIX42:
		return 42
	case BeginStringFIX43:
		return 43
	case BeginStringFIX44:
		return 44
	case BeginStringFIXT11:
		return 50
	}
	return 0
}
