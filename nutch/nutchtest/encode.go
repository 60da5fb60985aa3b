// Package nutchtest serializes Nutch record values for test fixtures,
// mirroring the layouts the nutch package decodes.
package nutchtest

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"

	"github.com/alvmarrod/reperio/nutch"
	"github.com/alvmarrod/reperio/sequencefile"
)

// TextKey serializes a Hadoop Text record key.
func TextKey(s string) []byte {
	var buf bytes.Buffer
	sequencefile.WriteText(&buf, s)
	return buf.Bytes()
}

// Datum describes a CrawlDatum to serialize. Zero values pick sensible
// defaults (current version, unfetched status).
type Datum struct {
	Version       byte
	Status        nutch.CrawlStatus
	FetchTime     time.Time
	ModifiedTime  time.Time
	Retries       byte
	FetchInterval time.Duration
	Score         float32
	Signature     []byte
	Metadata      map[string]string
}

// CrawlDatumValue serializes a CrawlDatum record value.
func CrawlDatumValue(d Datum) []byte {
	if d.Version == 0 {
		d.Version = 7
	}
	if d.Status == 0 {
		d.Status = nutch.StatusUnfetched
	}

	var buf bytes.Buffer
	buf.WriteByte(d.Version)
	buf.WriteByte(byte(d.Status))
	writeInt64(&buf, unixMillis(d.FetchTime))
	buf.WriteByte(d.Retries)
	if d.Version > 5 {
		writeInt32(&buf, int32(d.FetchInterval/time.Second))
	} else {
		writeFloat32(&buf, float32(d.FetchInterval/time.Second))
	}
	writeFloat32(&buf, d.Score)
	if d.Version > 2 {
		writeInt64(&buf, unixMillis(d.ModifiedTime))
		buf.WriteByte(byte(len(d.Signature)))
		buf.Write(d.Signature)
	}
	if d.Version > 3 && len(d.Metadata) > 0 {
		writeTextMap(&buf, d.Metadata)
	}
	return buf.Bytes()
}

// InlinksValue serializes an Inlinks record value, including any duplicate
// sources handed in.
func InlinksValue(links []nutch.Inlink) []byte {
	var buf bytes.Buffer
	writeInt32(&buf, int32(len(links)))
	for _, l := range links {
		sequencefile.WriteText(&buf, l.From)
		sequencefile.WriteText(&buf, l.Anchor)
	}
	return buf.Bytes()
}

// HostDatumValue serializes a HostDatum record value.
func HostDatumValue(meta map[string]string) []byte {
	var buf bytes.Buffer
	writeTextMap(&buf, meta)
	return buf.Bytes()
}

func writeTextMap(buf *bytes.Buffer, m map[string]string) {
	sequencefile.WriteVLong(buf, int64(len(m)))
	for k, v := range m {
		sequencefile.WriteText(buf, k)
		sequencefile.WriteText(buf, v)
	}
}

func unixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func writeInt32(buf *bytes.Buffer, v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	buf.Write(b[:])
}

func writeFloat32(buf *bytes.Buffer, v float32) {
	writeInt32(buf, int32(math.Float32bits(v)))
}
