// Package sequencefiletest builds SequenceFile fixtures for tests. It writes
// the same container layout the sequencefile package reads, with knobs for
// compression mode, sync frequency and deliberate corruption.
package sequencefiletest

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/alvmarrod/reperio/sequencefile"
)

// Compression selects the container layout of a fixture.
type Compression int

const (
	// None writes plain records.
	None Compression = iota
	// Record compresses each record value individually.
	Record
	// Block groups records into compressed blocks.
	Block
)

// Pair is one key/value record to write.
type Pair struct {
	Key   []byte
	Value []byte
}

// Options control fixture layout.
type Options struct {
	Compression Compression
	// CodecClass names the codec written to the header when compressing.
	// Defaults to the Hadoop DefaultCodec (zlib).
	CodecClass string
	// KeyClass/ValueClass default to the Hadoop Text / Nutch CrawlDatum names.
	KeyClass   string
	ValueClass string
	// Metadata is copied into the header metadata map.
	Metadata map[string]string
	// Sync is the 16-byte marker; zero value picks a fixed test marker.
	Sync [sequencefile.SyncSize]byte
	// SyncEvery inserts a sync marker before every Nth record (record mode)
	// or starts a new block every N records (block mode). 0 disables extra
	// record-mode syncs and puts everything in one block.
	SyncEvery int
	// CorruptSync flips a byte in the first emitted body sync marker.
	CorruptSync bool
	// TruncateBlockLengths drops the last entry of each block's value-lengths
	// buffer so counts disagree with available bytes.
	TruncateBlockLengths bool
}

var defaultSync = [sequencefile.SyncSize]byte{
	0xde, 0xad, 0xbe, 0xef, 0x01, 0x23, 0x45, 0x67,
	0x89, 0xab, 0xcd, 0xef, 0xfe, 0xdc, 0xba, 0x98,
}

// Build renders a complete container file.
func Build(pairs []Pair, opts Options) []byte {
	if opts.Sync == ([sequencefile.SyncSize]byte{}) {
		opts.Sync = defaultSync
	}
	if opts.KeyClass == "" {
		opts.KeyClass = "org.apache.hadoop.io.Text"
	}
	if opts.ValueClass == "" {
		opts.ValueClass = "org.apache.nutch.crawl.CrawlDatum"
	}
	if opts.CodecClass == "" {
		opts.CodecClass = sequencefile.CodecDefault
	}

	var buf bytes.Buffer
	writeHeader(&buf, opts)

	switch opts.Compression {
	case Block:
		writeBlocks(&buf, pairs, opts)
	default:
		writeRecords(&buf, pairs, opts)
	}
	return buf.Bytes()
}

// WriteFile renders a container and writes it to path.
func WriteFile(path string, pairs []Pair, opts Options) error {
	return os.WriteFile(path, Build(pairs, opts), 0o644)
}

func writeHeader(buf *bytes.Buffer, opts Options) {
	buf.WriteString("SEQ")
	buf.WriteByte(sequencefile.Version)
	sequencefile.WriteText(buf, opts.KeyClass)
	sequencefile.WriteText(buf, opts.ValueClass)

	compressed := opts.Compression != None
	writeBool(buf, compressed)
	writeBool(buf, opts.Compression == Block)
	if compressed {
		sequencefile.WriteText(buf, opts.CodecClass)
	}

	writeInt32(buf, int32(len(opts.Metadata)))
	for k, v := range opts.Metadata {
		sequencefile.WriteText(buf, k)
		sequencefile.WriteText(buf, v)
	}
	buf.Write(opts.Sync[:])
}

func writeRecords(buf *bytes.Buffer, pairs []Pair, opts Options) {
	syncWritten := false
	for i, p := range pairs {
		if opts.SyncEvery > 0 && i > 0 && i%opts.SyncEvery == 0 {
			writeSync(buf, opts, &syncWritten)
		}
		value := p.Value
		if opts.Compression == Record {
			value = compress(value, opts.CodecClass)
		}
		writeInt32(buf, int32(len(p.Key)+len(value)))
		writeInt32(buf, int32(len(p.Key)))
		buf.Write(p.Key)
		buf.Write(value)
	}
}

func writeBlocks(buf *bytes.Buffer, pairs []Pair, opts Options) {
	per := opts.SyncEvery
	if per <= 0 {
		per = len(pairs)
	}
	syncWritten := false
	for start := 0; start < len(pairs); start += per {
		end := start + per
		if end > len(pairs) {
			end = len(pairs)
		}
		writeOneBlock(buf, pairs[start:end], opts, &syncWritten)
	}
}

func writeOneBlock(buf *bytes.Buffer, pairs []Pair, opts Options, syncWritten *bool) {
	writeSync(buf, opts, syncWritten)
	sequencefile.WriteVLong(buf, int64(len(pairs)))

	var keyLens, keys, valLens, vals bytes.Buffer
	for _, p := range pairs {
		sequencefile.WriteVLong(&keyLens, int64(len(p.Key)))
		keys.Write(p.Key)
		sequencefile.WriteVLong(&valLens, int64(len(p.Value)))
		vals.Write(p.Value)
	}

	valLenBytes := valLens.Bytes()
	if opts.TruncateBlockLengths && len(valLenBytes) > 0 {
		valLenBytes = valLenBytes[:len(valLenBytes)-1]
	}

	for _, segment := range [][]byte{keyLens.Bytes(), keys.Bytes(), valLenBytes, vals.Bytes()} {
		packed := compress(segment, opts.CodecClass)
		sequencefile.WriteVLong(buf, int64(len(packed)))
		buf.Write(packed)
	}
}

// writeSync emits the escape int plus the marker, corrupting the first body
// marker when requested.
func writeSync(buf *bytes.Buffer, opts Options, syncWritten *bool) {
	writeInt32(buf, -1)
	marker := opts.Sync
	if opts.CorruptSync && !*syncWritten {
		marker[0] ^= 0xff
	}
	*syncWritten = true
	buf.Write(marker[:])
}

func compress(raw []byte, codecClass string) []byte {
	var buf bytes.Buffer
	switch codecClass {
	case sequencefile.CodecGzip:
		zw := gzip.NewWriter(&buf)
		_, _ = zw.Write(raw)
		_ = zw.Close()
	default:
		zw := zlib.NewWriter(&buf)
		_, _ = zw.Write(raw)
		_ = zw.Close()
	}
	return buf.Bytes()
}

func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func writeInt32(buf *bytes.Buffer, v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	buf.Write(b[:])
}
