package fix

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
)

// MaxMessageSize bounds the BodyLength accepted from a stream.
const MaxMessageSize = 1 << 20

// Reader frames complete FIX messages out of a byte stream. Bytes that do
// not start a message are skipped so the reader resynchronizes on the next
// BeginString.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 8192)}
}

// ReadMessage returns the raw bytes of the next message. A *ParseError means
// a frame was malformed and dropped; the stream is still usable. Any other
// error comes from the underlying reader.
func (r *Reader) ReadMessage() ([]byte, error) {
	var begin []byte
	for {
		field, err := r.readField()
		if err != nil {
			return nil, err
		}
		if bytes.HasPrefix(field, []byte("8=")) {
			begin = field
			break
		}
	}

	lengthField, err := r.readField()
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(lengthField, []byte("9=")) {
		return nil, garbled("BodyLength must follow BeginString")
	}
	bodyLength, err := strconv.Atoi(string(lengthField[2 : len(lengthField)-1]))
	if err != nil || bodyLength < 0 || bodyLength > MaxMessageSize {
		return nil, garbled("invalid BodyLength %q", lengthField)
	}

	msg := make([]byte, 0, len(begin)+len(lengthField)+bodyLength+7)
	msg = append(msg, begin...)
	msg = append(msg, lengthField...)

	body := make([]byte, bodyLength)
	if _, err := io.ReadFull(r.r, body); err != nil {
		return nil, err
	}
	msg = append(msg, body...)

	checksum, err := r.readField()
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(checksum, []byte("10=")) {
		return nil, garbled("CheckSum expected after %d body bytes", bodyLength)
	}
	return append(msg, checksum...), nil
}

func (r *Reader) readField() ([]byte, error) {
	field, err := r.r.ReadSlice(soh)
	if err == bufio.ErrBufferFull {
		return nil, garbled("field exceeds buffer size")
	}
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), field...), nil
}
