package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

var (
	ErrStringTooLong  = errors.New("string exceeds maximum wire length")
	ErrUnterminated   = errors.New("NUL-terminated string runs past end of payload")
	ErrTrailingBytes  = errors.New("payload has trailing bytes after expected fields")
	ErrPayloadTooShort = errors.New("payload shorter than the fixed header for this message type")
)

// WriteUint8 writes a single byte.
func WriteUint8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

// ReadUint8 reads a single byte.
func ReadUint8(r io.Reader) (uint8, error) {
	buf := make([]byte, 1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// WriteUint16 writes a 16-bit unsigned integer in network byte order.
func WriteUint16(w io.Writer, v uint16) error {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, v)
	_, err := w.Write(buf)
	return err
}

// ReadUint16 reads a 16-bit unsigned integer in network byte order.
func ReadUint16(r io.Reader) (uint16, error) {
	buf := make([]byte, 2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf), nil
}

// WriteNulString writes s followed by a single 0x00 sentinel byte.
// s must not itself contain a NUL byte; callers validate field content
// before reaching the wire codec (see client.InputHandler).
func WriteNulString(w io.Writer, s string) error {
	if _, err := io.WriteString(w, s); err != nil {
		return err
	}
	return WriteUint8(w, 0x00)
}

// ReadNulString reads bytes up to and including the next 0x00 byte from buf,
// starting at offset, and returns the string (without the sentinel) and the
// offset of the byte following the sentinel.
func ReadNulString(buf []byte, offset int) (string, int, error) {
	idx := bytes.IndexByte(buf[offset:], 0x00)
	if idx < 0 {
		return "", 0, ErrUnterminated
	}
	return string(buf[offset : offset+idx]), offset + idx + 1, nil
}
