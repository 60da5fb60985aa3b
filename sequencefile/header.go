package sequencefile

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// SyncSize is the width of the sync marker written after the header and at
// block boundaries.
const SyncSize = 16

// Version is the only container version this reader accepts. It is the
// metadata-bearing format every Hadoop release since 0.x writes.
const Version = 6

var magic = [3]byte{'S', 'E', 'Q'}

// syncEscape precedes every sync marker in the record stream.
const syncEscape = int32(-1)

// FormatError reports a malformed or unsupported container. It is fatal to
// the partition being opened but never to the whole load.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "sequencefile: " + e.Reason
}

func formatErrorf(format string, args ...interface{}) error {
	return &FormatError{Reason: fmt.Sprintf(format, args...)}
}

// Header describes one container file: key/value type names, compression
// layout, free-form metadata and the sync marker all later blocks must match.
type Header struct {
	Version         byte
	KeyClass        string
	ValueClass      string
	Compressed      bool
	BlockCompressed bool
	CodecClass      string
	Metadata        map[string]string
	Sync            [SyncSize]byte
}

// ReadHeader parses and validates a container header. The stream is left
// positioned at the first record or block.
func ReadHeader(r ByteStream) (*Header, error) {
	var start [4]byte
	if _, err := io.ReadFull(r, start[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, formatErrorf("file too short for header")
		}
		return nil, errors.Wrap(err, "read magic")
	}
	if start[0] != magic[0] || start[1] != magic[1] || start[2] != magic[2] {
		return nil, formatErrorf("bad magic %q", start[:3])
	}

	h := &Header{Version: start[3], Metadata: map[string]string{}}
	if h.Version != Version {
		return nil, formatErrorf("unsupported version %d", h.Version)
	}

	var err error
	if h.KeyClass, err = ReadText(r); err != nil {
		return nil, formatErrorf("read key class: %v", err)
	}
	if h.ValueClass, err = ReadText(r); err != nil {
		return nil, formatErrorf("read value class: %v", err)
	}

	if h.Compressed, err = readBool(r); err != nil {
		return nil, formatErrorf("read compression flag: %v", err)
	}
	if h.BlockCompressed, err = readBool(r); err != nil {
		return nil, formatErrorf("read block compression flag: %v", err)
	}
	if h.BlockCompressed && !h.Compressed {
		return nil, formatErrorf("block compression set without compression")
	}
	if h.Compressed {
		if h.CodecClass, err = ReadText(r); err != nil {
			return nil, formatErrorf("read codec class: %v", err)
		}
	}

	var count int32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, formatErrorf("read metadata count: %v", err)
	}
	if count < 0 || count > 1<<16 {
		return nil, formatErrorf("implausible metadata count %d", count)
	}
	for i := int32(0); i < count; i++ {
		k, err := ReadText(r)
		if err != nil {
			return nil, formatErrorf("read metadata key: %v", err)
		}
		v, err := ReadText(r)
		if err != nil {
			return nil, formatErrorf("read metadata value: %v", err)
		}
		h.Metadata[k] = v
	}

	if _, err := io.ReadFull(r, h.Sync[:]); err != nil {
		return nil, formatErrorf("read sync marker: %v", err)
	}
	return h, nil
}

func readBool(r io.ByteReader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}
