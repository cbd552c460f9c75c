package fix

import (
	"bytes"
	"strconv"

	"github.com/fr3shw3b/fix-session-engine/pkg/utils"
)

// Message is a FIX message split into standard header, body and trailer.
type Message struct {
	Header  FieldMap
	Body    FieldMap
	Trailer FieldMap

	raw []byte
}

func NewMessage() *Message {
	return &Message{}
}

func (m *Message) MsgType() (string, error) {
	return m.Header.GetString(TagMsgType)
}

func (m *Message) SeqNum() (uint64, error) {
	return m.Header.GetUint(TagMsgSeqNum)
}

// IsPossDup reports PossDupFlag(43)=Y.
func (m *Message) IsPossDup() bool {
	return m.Header.boolFlag(TagPossDupFlag)
}

func (m *Message) IsAdmin() bool {
	msgType, err := m.MsgType()
	return err == nil && IsAdminMsgType(msgType)
}

// Raw returns the bytes the message was parsed from or last built into.
func (m *Message) Raw() []byte {
	return m.raw
}

// Copy returns a deep copy that can be mutated independently.
func (m *Message) Copy() *Message {
	c := &Message{
		Header:  FieldMap{fields: m.Header.Fields()},
		Body:    FieldMap{fields: m.Body.Fields()},
		Trailer: FieldMap{fields: m.Trailer.Fields()},
	}
	if m.raw != nil {
		c.raw = append([]byte(nil), m.raw...)
	}
	return c
}

// String renders the wire form with SOH shown as '|'.
func (m *Message) String() string {
	raw := m.raw
	if raw == nil {
		built, err := m.Copy().Build()
		if err != nil {
			return ""
		}
		raw = built
	}
	return string(bytes.ReplaceAll(raw, []byte{soh}, []byte{'|'}))
}

// Build serializes the message, computing BodyLength(9) and CheckSum(10).
// BeginString and MsgType must already be set on the header.
func (m *Message) Build() ([]byte, error) {
	beginString, err := m.Header.GetString(TagBeginString)
	if err != nil {
		return nil, err
	}
	msgType, err := m.Header.GetString(TagMsgType)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	writeField(&body, TagMsgType, msgType)
	for _, f := range m.Header.fields {
		if f.Tag == TagBeginString || f.Tag == TagBodyLength || f.Tag == TagMsgType {
			continue
		}
		writeField(&body, f.Tag, f.Value)
	}
	for _, f := range m.Body.fields {
		writeField(&body, f.Tag, f.Value)
	}
	for _, f := range m.Trailer.fields {
		if f.Tag == TagCheckSum {
			continue
		}
		writeField(&body, f.Tag, f.Value)
	}

	var out bytes.Buffer
	out.Grow(body.Len() + 32)
	writeField(&out, TagBeginString, beginString)
	writeField(&out, TagBodyLength, strconv.Itoa(body.Len()))
	out.Write(body.Bytes())
	checksum := utils.CreateChecksum(out.Bytes())
	writeField(&out, TagCheckSum, checksum)

	m.Header.Set(Field{Tag: TagBodyLength, Type: TypeInt, Value: strconv.Itoa(body.Len())})
	m.Trailer.SetString(TagCheckSum, checksum)
	m.raw = out.Bytes()
	return m.raw, nil
}

func writeField(buf *bytes.Buffer, tag Tag, value string) {
	buf.WriteString(strconv.Itoa(int(tag)))
	buf.WriteByte('=')
	buf.WriteString(value)
	buf.WriteByte(soh)
}

var knownTypes = map[Tag]FieldType{
	TagBodyLength:      TypeInt,
	TagMsgSeqNum:       TypeInt,
	TagBeginSeqNo:      TypeInt,
	TagEndSeqNo:        TypeInt,
	TagNewSeqNo:        TypeInt,
	TagRefSeqNum:       TypeInt,
	TagHeartBtInt:      TypeInt,
	TagRefTagID:        TypeInt,
	TagPossDupFlag:     TypeBool,
	TagPossResend:      TypeBool,
	TagGapFillFlag:     TypeBool,
	TagResetSeqNumFlag: TypeBool,
	TagSendingTime:     TypeUTCTimestamp,
	TagOrigSendingTime: TypeUTCTimestamp,
	TagSecureData:      TypeData,
	TagRawData:         TypeData,
	TagSignature:       TypeData,
	TagXMLData:         TypeData,
}

// ParseMessage decodes one complete tag=value message. BodyLength and
// CheckSum are verified; any structural problem yields a *ParseError.
func ParseMessage(raw []byte) (*Message, error) {
	m := NewMessage()

	var (
		pos            int
		index          int
		bodyStart      = -1
		checksumStart  = -1
		declaredLength = -1
		dataTag        Tag
		dataLength     = -1
	)

	for pos < len(raw) {
		eq := bytes.IndexByte(raw[pos:], '=')
		if eq <= 0 {
			return nil, garbled("missing tag at offset %d", pos)
		}
		tagNum, err := strconv.Atoi(string(raw[pos : pos+eq]))
		if err != nil || tagNum <= 0 {
			return nil, garbled("invalid tag %q", raw[pos:pos+eq])
		}
		tag := Tag(tagNum)

		valueStart := pos + eq + 1
		var valueEnd int
		if tag == dataTag && dataLength >= 0 {
			valueEnd = valueStart + dataLength
			if valueEnd >= len(raw) || raw[valueEnd] != soh {
				return nil, garbled("data field %d shorter than declared length", tag)
			}
			dataTag, dataLength = 0, -1
		} else {
			sep := bytes.IndexByte(raw[valueStart:], soh)
			if sep < 0 {
				return nil, garbled("field %d not terminated", tag)
			}
			valueEnd = valueStart + sep
		}
		value := string(raw[valueStart:valueEnd])

		switch index {
		case 0:
			if tag != TagBeginString {
				return nil, garbled("first field must be BeginString, got %d", tag)
			}
		case 1:
			if tag != TagBodyLength {
				return nil, garbled("second field must be BodyLength, got %d", tag)
			}
			declaredLength, err = strconv.Atoi(value)
			if err != nil {
				return nil, garbled("invalid BodyLength %q", value)
			}
			bodyStart = valueEnd + 1
		case 2:
			if tag != TagMsgType {
				return nil, garbled("third field must be MsgType, got %d", tag)
			}
		}
		if tag == TagCheckSum {
			checksumStart = pos
		}
		if data, ok := dataLengthTags[tag]; ok {
			if n, err := strconv.Atoi(value); err == nil && n >= 0 {
				dataTag, dataLength = data, n
			}
		}

		f := Field{Tag: tag, Type: knownTypes[tag], Value: value}
		switch {
		case IsHeaderTag(tag):
			m.Header.Add(f)
		case IsTrailerTag(tag):
			m.Trailer.Add(f)
		default:
			m.Body.Add(f)
		}

		pos = valueEnd + 1
		index++
		if tag == TagCheckSum {
			break
		}
	}

	if checksumStart < 0 {
		return nil, garbled("missing CheckSum")
	}
	if pos != len(raw) {
		return nil, garbled("%d trailing bytes after CheckSum", len(raw)-pos)
	}
	if actual := checksumStart - bodyStart; actual != declaredLength {
		return nil, garbled("BodyLength %d does not match actual %d", declaredLength, actual)
	}
	declared, _ := m.Trailer.GetString(TagCheckSum)
	if computed := utils.CreateChecksum(raw[:checksumStart]); computed != declared {
		return nil, garbled("CheckSum %s does not match computed %s", declared, computed)
	}

	m.raw = append([]byte(nil), raw...)
	return m, nil
}
