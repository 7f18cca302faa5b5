package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Frame layout (big-endian throughout), grounded on the length-prefixed
// binary packet header bilibili_dm_lib uses for its own custom protocol:
//
//	[4 bytes total length][1 byte kind][1 byte flags][8 bytes sender id][arg field][content field]
//
// total length counts every byte after itself. Each present optional field
// is [4 bytes length][UTF-8 bytes]; flags bit 0 = arg present, bit 1 =
// content present.
const (
	flagArg     = 1 << 0
	flagContent = 1 << 1

	headerSize    = 1 + 1 + 8 // kind + flags + sender id, not counting the length prefix
	lengthPrefix  = 4
	maxFrameBytes = 16 * 1024 * 1024
)

// Encode serializes m into a self-delimiting frame.
func Encode(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var flags byte
	var argBytes, contentBytes []byte
	if m.Arg != nil {
		flags |= flagArg
		argBytes = []byte(*m.Arg)
	}
	if m.Content != nil {
		flags |= flagContent
		contentBytes = []byte(*m.Content)
	}

	bodySize := headerSize
	if m.Arg != nil {
		bodySize += lengthPrefix + len(argBytes)
	}
	if m.Content != nil {
		bodySize += lengthPrefix + len(contentBytes)
	}

	buf := make([]byte, lengthPrefix+bodySize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(bodySize))
	buf[4] = byte(m.Kind)
	buf[5] = flags
	binary.BigEndian.PutUint64(buf[6:14], m.SenderID)

	off := lengthPrefix + headerSize
	if m.Arg != nil {
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(argBytes)))
		off += 4
		copy(buf[off:], argBytes)
		off += len(argBytes)
	}
	if m.Content != nil {
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(contentBytes)))
		off += 4
		copy(buf[off:], contentBytes)
		off += len(contentBytes)
	}

	return buf, nil
}

// Decode parses a single frame's body (the bytes after the 4-byte length
// prefix, as delivered by ReadFrame) into a Message.
func Decode(body []byte) (Message, error) {
	if len(body) < headerSize {
		return Message{}, &MalformedFrameError{Reason: fmt.Sprintf("body too short: %d bytes", len(body))}
	}

	kind := Kind(body[0])
	flags := body[1]
	senderID := binary.BigEndian.Uint64(body[2:10])

	off := headerSize
	var arg, content *string

	if flags&flagArg != 0 {
		s, next, err := readField(body, off)
		if err != nil {
			return Message{}, err
		}
		arg = &s
		off = next
	}
	if flags&flagContent != 0 {
		s, next, err := readField(body, off)
		if err != nil {
			return Message{}, err
		}
		content = &s
		off = next
	}

	if off != len(body) {
		return Message{}, &MalformedFrameError{Reason: "trailing bytes after decoded fields"}
	}

	if _, ok := kindNames[kind]; !ok {
		return Message{}, &UnknownKindError{Kind: kind}
	}

	m := Message{Kind: kind, SenderID: senderID, Arg: arg, Content: content}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

func readField(body []byte, off int) (string, int, error) {
	if off+lengthPrefix > len(body) {
		return "", 0, &MalformedFrameError{Reason: "truncated field length"}
	}
	n := binary.BigEndian.Uint32(body[off : off+lengthPrefix])
	off += lengthPrefix
	if off+int(n) > len(body) {
		return "", 0, &MalformedFrameError{Reason: "truncated field body"}
	}
	return string(body[off : off+int(n)]), off + int(n), nil
}

// ReadFrame reads exactly one length-prefixed frame body from r, blocking
// until the full frame has arrived. Because the length is read first and
// exactly that many subsequent bytes are consumed, consecutive frames can
// never merge or truncate into each other on the receive side.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [lengthPrefix]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameBytes {
		return nil, &MalformedFrameError{Reason: fmt.Sprintf("frame of %d bytes exceeds max %d", n, maxFrameBytes)}
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// WriteFrame encodes m and writes the full length-prefixed frame to w.
func WriteFrame(w io.Writer, m Message) error {
	frame, err := Encode(m)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// DecodeFrame is a convenience that reads one frame from r and decodes it.
func DecodeFrame(r io.Reader) (Message, error) {
	body, err := ReadFrame(r)
	if err != nil {
		return Message{}, err
	}
	return Decode(body)
}

// roundTrip is used only by tests in this package to assert the codec
// property decode(encode(m)) == m without re-deriving Encode/Decode.
func roundTrip(m Message) (Message, error) {
	frame, err := Encode(m)
	if err != nil {
		return Message{}, err
	}
	return DecodeFrame(bytes.NewReader(frame))
}
