package sequencefile

import (
	"bytes"
	"compress/bzip2"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
)

// Hadoop codec class names as they appear in container headers.
const (
	CodecDefault = "org.apache.hadoop.io.compress.DefaultCodec"
	CodecGzip    = "org.apache.hadoop.io.compress.GzipCodec"
	CodecBZip2   = "org.apache.hadoop.io.compress.BZip2Codec"
	CodecDeflate = "org.apache.hadoop.io.compress.DeflateCodec"
)

// DecompressFunc inflates one compressed segment (a record value or one of
// the four buffers of a compressed block).
type DecompressFunc func(compressed []byte) ([]byte, error)

// UnsupportedCodecError is returned at container-open time when the header
// names a codec nobody registered. The codec is fixed in the header, so this
// can never surface mid-stream.
type UnsupportedCodecError struct {
	Codec string
}

func (e *UnsupportedCodecError) Error() string {
	return "sequencefile: unsupported codec " + e.Codec
}

var (
	codecMu sync.RWMutex
	codecs  = map[string]DecompressFunc{
		CodecDefault: decompressZlib,
		CodecDeflate: decompressZlib,
		CodecGzip:    decompressGzip,
		CodecBZip2:   decompressBZip2,
	}
)

// RegisterCodec makes a decompression strategy available under a codec class
// name. Registering an existing name replaces the previous strategy.
func RegisterCodec(className string, fn DecompressFunc) {
	codecMu.Lock()
	defer codecMu.Unlock()
	codecs[className] = fn
}

// LookupCodec resolves a codec class name from a container header. The bare
// class name (e.g. "GzipCodec") is accepted alongside the fully-qualified
// form.
func LookupCodec(className string) (DecompressFunc, error) {
	codecMu.RLock()
	defer codecMu.RUnlock()

	if fn, ok := codecs[className]; ok {
		return fn, nil
	}
	for name, fn := range codecs {
		if strings.HasSuffix(name, "."+className) {
			return fn, nil
		}
	}
	return nil, &UnsupportedCodecError{Codec: className}
}

func decompressZlib(compressed []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, errors.Wrap(err, "open zlib stream")
	}
	defer zr.Close()
	return readAllSegment(zr)
}

func decompressGzip(compressed []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, errors.Wrap(err, "open gzip stream")
	}
	defer zr.Close()
	return readAllSegment(zr)
}

func decompressBZip2(compressed []byte) ([]byte, error) {
	return readAllSegment(bzip2.NewReader(bytes.NewReader(compressed)))
}

func readAllSegment(r io.Reader) ([]byte, error) {
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "decompress segment")
	}
	return out, nil
}
