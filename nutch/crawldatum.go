package nutch

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/alvmarrod/reperio/sequencefile"
)

// maxCrawlDatumVersion is the newest CrawlDatum serialization this decoder
// understands (Nutch CUR_VERSION).
const maxCrawlDatumVersion = 7

// CrawlDatum is one crawldb record: the fetch state of a single URL.
// Immutable once decoded.
type CrawlDatum struct {
	URL           string
	Version       byte
	Status        CrawlStatus
	FetchTime     time.Time
	ModifiedTime  time.Time
	Retries       int
	FetchInterval time.Duration
	Score         float32
	// Signature is the content signature, nil when the page was never
	// fetched.
	Signature []byte
	Metadata  map[string]string
}

// EntityKey returns the record's URL.
func (d *CrawlDatum) EntityKey() string { return d.URL }

// EntityKind returns KindCrawlDB.
func (d *CrawlDatum) EntityKind() Kind { return KindCrawlDB }

type crawlDecoder struct{}

func (crawlDecoder) Kind() Kind { return KindCrawlDB }

// Decode parses a Text key and CrawlDatum value.
//
// Layout: version byte, status byte, fetch time (int64 epoch millis), retry
// count byte, fetch interval (int32 seconds; float32 before version 6),
// float32 score, then for version > 2 a modified time and a byte-length
// prefixed signature, then for version > 3 optional metadata.
func (crawlDecoder) Decode(key, value []byte) (Entity, error) {
	url, err := decodeTextKey(key)
	if err != nil {
		return nil, &DecodeError{Kind: KindCrawlDB, Err: err}
	}

	fail := func(err error) (Entity, error) {
		return nil, &DecodeError{Kind: KindCrawlDB, Key: url, Err: err}
	}

	r := bytes.NewReader(value)
	d := &CrawlDatum{URL: url}

	if d.Version, err = r.ReadByte(); err != nil {
		return fail(errors.Wrap(err, "read version"))
	}
	if d.Version > maxCrawlDatumVersion {
		return fail(errors.Errorf("unsupported CrawlDatum version %d", d.Version))
	}

	status, err := r.ReadByte()
	if err != nil {
		return fail(errors.Wrap(err, "read status"))
	}
	d.Status = CrawlStatus(status)
	if !d.Status.Known() {
		return fail(errors.Errorf("unknown status value %d", status))
	}

	fetchMillis, err := readInt64(r)
	if err != nil {
		return fail(errors.Wrap(err, "read fetch time"))
	}
	if fetchMillis > 0 {
		d.FetchTime = time.UnixMilli(fetchMillis).UTC()
	}

	retries, err := r.ReadByte()
	if err != nil {
		return fail(errors.Wrap(err, "read retries"))
	}
	d.Retries = int(retries)

	if d.Version > 5 {
		secs, err := readInt32(r)
		if err != nil {
			return fail(errors.Wrap(err, "read fetch interval"))
		}
		d.FetchInterval = time.Duration(secs) * time.Second
	} else {
		secs, err := readFloat32(r)
		if err != nil {
			return fail(errors.Wrap(err, "read fetch interval"))
		}
		d.FetchInterval = time.Duration(math.Round(float64(secs))) * time.Second
	}

	if d.Score, err = readFloat32(r); err != nil {
		return fail(errors.Wrap(err, "read score"))
	}

	if d.Version > 2 {
		modMillis, err := readInt64(r)
		if err != nil {
			return fail(errors.Wrap(err, "read modified time"))
		}
		if modMillis > 0 {
			d.ModifiedTime = time.UnixMilli(modMillis).UTC()
		}

		sigLen, err := r.ReadByte()
		if err != nil {
			return fail(errors.Wrap(err, "read signature length"))
		}
		if sigLen > 0 {
			d.Signature = make([]byte, sigLen)
			if _, err := io.ReadFull(r, d.Signature); err != nil {
				return fail(errors.New("truncated signature"))
			}
		}
	}

	if d.Version > 3 && r.Len() > 0 {
		// Full Nutch metadata carries MapWritable class tables; parse the
		// simple Text-pair form and fall back to an empty map on anything
		// else rather than failing the record.
		d.Metadata = readMetadata(r)
	}
	if d.Metadata == nil {
		d.Metadata = map[string]string{}
	}
	return d, nil
}

// readMetadata parses a vint-counted sequence of Text key/value pairs,
// returning nil on any inconsistency.
func readMetadata(r *bytes.Reader) map[string]string {
	count, err := sequencefile.ReadVInt(r)
	if err != nil || count < 0 || count > 1<<16 {
		return nil
	}
	meta := make(map[string]string, count)
	for i := 0; i < count; i++ {
		k, err := sequencefile.ReadText(r)
		if err != nil {
			return nil
		}
		v, err := sequencefile.ReadText(r)
		if err != nil {
			return nil
		}
		meta[k] = v
	}
	return meta
}

func decodeTextKey(key []byte) (string, error) {
	s, err := sequencefile.ReadText(bytes.NewReader(key))
	if err != nil {
		return "", errors.Wrap(err, "decode record key")
	}
	return s, nil
}

func readInt64(r *bytes.Reader) (int64, error) {
	var v int64
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

func readInt32(r *bytes.Reader) (int32, error) {
	var v int32
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

func readFloat32(r *bytes.Reader) (float32, error) {
	var v uint32
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}
