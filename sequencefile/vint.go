package sequencefile

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// ByteStream is the minimal stream contract the format readers need.
// Both bytes.Reader and bufio.Reader satisfy it.
type ByteStream interface {
	io.Reader
	io.ByteReader
}

// maxTextLength caps Text and buffer lengths read from untrusted input so a
// corrupt length prefix cannot trigger an enormous allocation.
const maxTextLength = 64 << 20

// ReadVLong reads a Hadoop WritableUtils variable-length long.
//
// The first byte encodes either the value itself (-112..127) or the sign and
// byte count of a big-endian tail.
func ReadVLong(r io.ByteReader) (int64, error) {
	first, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	f := int8(first)
	size := decodeVIntSize(f)
	if size == 1 {
		return int64(f), nil
	}

	var v int64
	for i := 0; i < size-1; i++ {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, errors.Wrap(err, "read vlong tail")
		}
		v = v<<8 | int64(b)
	}
	if isNegativeVInt(f) {
		return ^v, nil
	}
	return v, nil
}

// ReadVInt reads a variable-length integer and checks int32 bounds.
func ReadVInt(r io.ByteReader) (int, error) {
	v, err := ReadVLong(r)
	if err != nil {
		return 0, err
	}
	if v < -(1<<31) || v >= 1<<31 {
		return 0, errors.Errorf("vint out of int32 range: %d", v)
	}
	return int(v), nil
}

func decodeVIntSize(b int8) int {
	if b >= -112 {
		return 1
	}
	if b < -120 {
		return int(-119) - int(b)
	}
	return int(-111) - int(b)
}

func isNegativeVInt(b int8) bool {
	return b < -120 || (b >= -112 && b < 0)
}

// WriteVLong writes a value in Hadoop WritableUtils encoding. Used by the
// fixture writer and snapshot round-trip tests; kept here so the encoding
// lives next to its decoder.
func WriteVLong(buf *bytes.Buffer, v int64) {
	if v >= -112 && v <= 127 {
		buf.WriteByte(byte(v))
		return
	}

	length := int8(-112)
	if v < 0 {
		v = ^v
		length = -120
	}
	for tmp := v; tmp != 0; tmp >>= 8 {
		length--
	}
	buf.WriteByte(byte(length))

	var size int
	if length < -120 {
		size = -int(length + 120)
	} else {
		size = -int(length + 112)
	}
	for i := size; i > 0; i-- {
		buf.WriteByte(byte(v >> uint((i-1)*8)))
	}
}

// ReadTextBytes reads a Hadoop Text field (vint length + UTF-8 payload) and
// returns the raw payload.
func ReadTextBytes(r ByteStream) ([]byte, error) {
	n, err := ReadVInt(r)
	if err != nil {
		return nil, err
	}
	if n < 0 || n > maxTextLength {
		return nil, errors.Errorf("invalid text length %d", n)
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, errors.Wrap(err, "read text payload")
	}
	return b, nil
}

// ReadText reads a Hadoop Text field as a string. Invalid UTF-8 is passed
// through unmodified, matching Hadoop's tolerance for stored byte garbage.
func ReadText(r ByteStream) (string, error) {
	b, err := ReadTextBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WriteText writes a Hadoop Text field.
func WriteText(buf *bytes.Buffer, s string) {
	WriteVLong(buf, int64(len(s)))
	buf.WriteString(s)
}
