package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrFrameTooLarge is returned when a frame exceeds MaxFrameSize.
var ErrFrameTooLarge = errors.New("protocol: frame too large")

// headerSize is the stream frame header: payload length u32 LE + opcode u8.
const headerSize = 5

// WriteFrame writes one stream frame: [len u32 LE][opcode u8][payload].
func WriteFrame(w io.Writer, op Opcode, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("write %s: %w (%d bytes)", op, ErrFrameTooLarge, len(payload))
	}
	buf := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(payload)))
	buf[4] = byte(op)
	copy(buf[headerSize:], payload)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one stream frame written by WriteFrame.
func ReadFrame(r io.Reader) (Command, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Command{}, err
	}
	n := binary.LittleEndian.Uint32(hdr[0:4])
	if n > MaxFrameSize {
		return Command{}, fmt.Errorf("read: %w (%d bytes)", ErrFrameTooLarge, n)
	}
	cmd := Command{Op: Opcode(hdr[4])}
	if n > 0 {
		cmd.Payload = make([]byte, n)
		if _, err := io.ReadFull(r, cmd.Payload); err != nil {
			return Command{}, err
		}
	}
	return cmd, nil
}

// EncodeMessage packs a command into a single message-oriented frame
// ([opcode u8][payload]); the length is carried by the message boundary.
func EncodeMessage(op Opcode, payload []byte) ([]byte, error) {
	if len(payload) > MaxFrameSize {
		return nil, fmt.Errorf("encode %s: %w (%d bytes)", op, ErrFrameTooLarge, len(payload))
	}
	b := make([]byte, 1+len(payload))
	b[0] = byte(op)
	copy(b[1:], payload)
	return b, nil
}

// DecodeMessage unpacks a message produced by EncodeMessage.
func DecodeMessage(b []byte) (Command, error) {
	if len(b) == 0 {
		return Command{}, errors.New("protocol: empty message")
	}
	if len(b)-1 > MaxFrameSize {
		return Command{}, fmt.Errorf("decode: %w (%d bytes)", ErrFrameTooLarge, len(b)-1)
	}
	cmd := Command{Op: Opcode(b[0])}
	if len(b) > 1 {
		cmd.Payload = append([]byte(nil), b[1:]...)
	}
	return cmd, nil
}
