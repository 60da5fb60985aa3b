// Package sequencefile reads the Hadoop SequenceFile container format that
// Apache Nutch uses for its crawl, link and host databases. It exposes a
// lazy, forward-only record stream; semantic decoding of the key/value bytes
// is left to the nutch package.
package sequencefile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// maxRecordLength rejects record and block lengths a real partition would
// never contain, so corrupted length prefixes fail fast instead of allocating.
const maxRecordLength = 256 << 20

// Reader iterates over the raw key/value pairs of one container file in the
// bufio.Scanner style:
//
//	for r.Next() {
//	    use(r.Key(), r.Value())
//	}
//	if err := r.Err(); err != nil { ... }
//
// The sequence is finite and not restartable; reopen the stream to rescan.
type Reader struct {
	br         *bufio.Reader
	header     *Header
	decompress DecompressFunc

	key, value []byte
	err        error
	done       bool

	// block-compressed state: pairs of the current block not yet served
	blockKeys   [][]byte
	blockValues [][]byte
	blockPos    int
}

// NewReader parses the container header and resolves its codec. An unknown
// codec fails here, before any record is read.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReaderSize(r, 1<<20)
	h, err := ReadHeader(br)
	if err != nil {
		return nil, err
	}

	sr := &Reader{br: br, header: h}
	if h.Compressed {
		fn, err := LookupCodec(h.CodecClass)
		if err != nil {
			return nil, err
		}
		sr.decompress = fn
	}
	return sr, nil
}

// Header returns the parsed container header.
func (r *Reader) Header() *Header {
	return r.header
}

// Key returns the raw key bytes of the current record, valid until the next
// call to Next.
func (r *Reader) Key() []byte {
	return r.key
}

// Value returns the raw (decompressed) value bytes of the current record,
// valid until the next call to Next.
func (r *Reader) Value() []byte {
	return r.value
}

// Err returns the first error hit while reading. It is nil after a clean end
// of stream.
func (r *Reader) Err() error {
	return r.err
}

// Next advances to the next record. It returns false at end of stream or on
// error; the two are told apart through Err.
func (r *Reader) Next() bool {
	if r.done || r.err != nil {
		return false
	}
	var ok bool
	if r.header.BlockCompressed {
		ok = r.nextBlockRecord()
	} else {
		ok = r.nextRecord()
	}
	if !ok {
		r.done = true
	}
	return ok
}

// nextRecord handles the uncompressed and record-compressed layouts:
// [record length][key length][key][value], with an occasional escaped sync
// marker between records.
func (r *Reader) nextRecord() bool {
	for {
		length, eof, err := r.readInt32()
		if eof {
			return false
		}
		if err != nil {
			r.err = errors.Wrap(err, "read record length")
			return false
		}

		if length == syncEscape {
			if !r.verifySync() {
				return false
			}
			continue
		}

		if length < 0 || length > maxRecordLength {
			r.err = formatErrorf("implausible record length %d", length)
			return false
		}

		keyLen, _, err := r.readInt32()
		if err != nil {
			r.err = errors.Wrap(err, "read key length")
			return false
		}
		if keyLen < 0 || keyLen > length {
			r.err = formatErrorf("key length %d exceeds record length %d", keyLen, length)
			return false
		}

		r.key = make([]byte, keyLen)
		if _, err := io.ReadFull(r.br, r.key); err != nil {
			r.err = errors.Wrap(err, "read record key")
			return false
		}

		r.value = make([]byte, length-keyLen)
		if _, err := io.ReadFull(r.br, r.value); err != nil {
			r.err = errors.Wrap(err, "read record value")
			return false
		}

		if r.decompress != nil {
			v, err := r.decompress(r.value)
			if err != nil {
				r.err = errors.Wrap(err, "decompress record value")
				return false
			}
			r.value = v
		}
		return true
	}
}

// nextBlockRecord serves records out of the current decompressed block,
// reading and unpacking the next block when the current one is exhausted.
func (r *Reader) nextBlockRecord() bool {
	if r.blockPos < len(r.blockKeys) {
		r.key = r.blockKeys[r.blockPos]
		r.value = r.blockValues[r.blockPos]
		r.blockPos++
		return true
	}
	if !r.readBlock() {
		return false
	}
	return r.nextBlockRecord()
}

// readBlock reads one compressed block: an escaped sync marker, a vint record
// count, then four independently compressed buffers holding key lengths,
// keys, value lengths and values.
func (r *Reader) readBlock() bool {
	escape, eof, err := r.readInt32()
	if eof {
		return false
	}
	if err != nil {
		r.err = errors.Wrap(err, "read block sync escape")
		return false
	}
	if escape != syncEscape {
		r.err = formatErrorf("expected sync escape before block, got %d", escape)
		return false
	}
	if !r.verifySync() {
		return false
	}

	count, err := ReadVInt(r.br)
	if err != nil {
		r.err = errors.Wrap(err, "read block record count")
		return false
	}
	if count <= 0 || count > maxRecordLength {
		r.err = formatErrorf("implausible block record count %d", count)
		return false
	}

	keyLengths, err := r.readBuffer("key lengths")
	if err != nil {
		r.err = err
		return false
	}
	keys, err := r.readBuffer("keys")
	if err != nil {
		r.err = err
		return false
	}
	valueLengths, err := r.readBuffer("value lengths")
	if err != nil {
		r.err = err
		return false
	}
	values, err := r.readBuffer("values")
	if err != nil {
		r.err = err
		return false
	}

	blockKeys, err := splitBuffer(keys, keyLengths, count)
	if err != nil {
		r.err = errors.Wrap(err, "split block keys")
		return false
	}
	blockValues, err := splitBuffer(values, valueLengths, count)
	if err != nil {
		r.err = errors.Wrap(err, "split block values")
		return false
	}

	r.blockKeys = blockKeys
	r.blockValues = blockValues
	r.blockPos = 0
	return true
}

// readBuffer reads one vint-prefixed compressed buffer and inflates it.
func (r *Reader) readBuffer(what string) ([]byte, error) {
	n, err := ReadVInt(r.br)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s buffer length", what)
	}
	if n < 0 || n > maxRecordLength {
		return nil, formatErrorf("implausible %s buffer length %d", what, n)
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(r.br, raw); err != nil {
		return nil, errors.Wrapf(err, "read %s buffer", what)
	}
	out, err := r.decompress(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "decompress %s buffer", what)
	}
	return out, nil
}

// splitBuffer zips a payload buffer back into count slices using the vint
// lengths buffer, preserving original record order. Length totals that
// disagree with the available bytes mark the block as truncated.
func splitBuffer(payload, lengths []byte, count int) ([][]byte, error) {
	lr := bytes.NewReader(lengths)
	out := make([][]byte, 0, count)
	off := 0
	for i := 0; i < count; i++ {
		n, err := ReadVInt(lr)
		if err != nil {
			return nil, errors.Wrapf(err, "read length %d of %d", i+1, count)
		}
		if n < 0 || off+n > len(payload) {
			return nil, formatErrorf("truncated block: entry %d wants %d bytes, %d available",
				i, n, len(payload)-off)
		}
		out = append(out, payload[off:off+n])
		off += n
	}
	if off != len(payload) {
		return nil, formatErrorf("truncated block: %d trailing bytes", len(payload)-off)
	}
	return out, nil
}

// verifySync reads a sync marker and compares it to the header's. A mismatch
// means the partition is corrupt past this point and aborts the stream.
func (r *Reader) verifySync() bool {
	var sync [SyncSize]byte
	if _, err := io.ReadFull(r.br, sync[:]); err != nil {
		r.err = errors.Wrap(err, "read sync marker")
		return false
	}
	if sync != r.header.Sync {
		r.err = formatErrorf("sync marker mismatch")
		return false
	}
	return true
}

// readInt32 reads a big-endian int32, reporting clean EOF separately so the
// caller can tell end-of-stream from a truncated prefix.
func (r *Reader) readInt32() (v int32, eof bool, err error) {
	var b [4]byte
	n, err := io.ReadFull(r.br, b[:])
	if err == io.EOF && n == 0 {
		return 0, true, nil
	}
	if err != nil {
		return 0, false, err
	}
	return int32(binary.BigEndian.Uint32(b[:])), false, nil
}
