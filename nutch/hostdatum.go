package nutch

import (
	"bytes"
	"strconv"

	"github.com/pkg/errors"

	"github.com/alvmarrod/reperio/sequencefile"
)

// HostDatum is one hostdb record: counters aggregated per host plus the
// discovered homepage, projected out of the record's metadata map.
type HostDatum struct {
	Host               string
	Homepage           string
	Fetched            int64
	Unfetched          int64
	NotModified        int64
	RedirectsTemp      int64
	RedirectsPerm      int64
	DNSFailures        int64
	ConnectionFailures int64
	Errors404          int64
	ErrorsOther        int64
	AvgResponseTime    float64
	// Metadata keeps the full map, including keys not projected above.
	Metadata map[string]string
}

// EntityKey returns the hostname.
func (h *HostDatum) EntityKey() string { return h.Host }

// EntityKind returns KindHostDB.
func (h *HostDatum) EntityKind() Kind { return KindHostDB }

type hostDecoder struct{}

func (hostDecoder) Kind() Kind { return KindHostDB }

// Decode parses a Text key and HostDatum value: a vint-counted sequence of
// Text key/value metadata pairs.
func (hostDecoder) Decode(key, value []byte) (Entity, error) {
	host, err := decodeTextKey(key)
	if err != nil {
		return nil, &DecodeError{Kind: KindHostDB, Err: err}
	}

	fail := func(err error) (Entity, error) {
		return nil, &DecodeError{Kind: KindHostDB, Key: host, Err: err}
	}

	r := bytes.NewReader(value)
	count, err := sequencefile.ReadVInt(r)
	if err != nil {
		return fail(errors.Wrap(err, "read metadata count"))
	}
	if count < 0 || count > len(value) {
		return fail(errors.Errorf("implausible metadata count %d", count))
	}

	meta := make(map[string]string, count)
	for i := 0; i < count; i++ {
		k, err := sequencefile.ReadText(r)
		if err != nil {
			return fail(errors.Wrapf(err, "read metadata key %d", i))
		}
		v, err := sequencefile.ReadText(r)
		if err != nil {
			return fail(errors.Wrapf(err, "read metadata value %d", i))
		}
		meta[k] = v
	}

	return &HostDatum{
		Host:               host,
		Homepage:           meta["homepage"],
		Fetched:            metaInt(meta, "fetched"),
		Unfetched:          metaInt(meta, "unfetched"),
		NotModified:        metaInt(meta, "notModified"),
		RedirectsTemp:      metaInt(meta, "redirectsTemp"),
		RedirectsPerm:      metaInt(meta, "redirectsPerm"),
		DNSFailures:        metaInt(meta, "dnsFailures"),
		ConnectionFailures: metaInt(meta, "connectionFailures"),
		Errors404:          metaInt(meta, "errors404"),
		ErrorsOther:        metaInt(meta, "errorsOther"),
		AvgResponseTime:    metaFloat(meta, "avgResponseTime"),
		Metadata:           meta,
	}, nil
}

// metaInt parses an integer counter, returning 0 for missing or malformed
// values rather than failing the record.
func metaInt(meta map[string]string, key string) int64 {
	v, err := strconv.ParseInt(meta[key], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func metaFloat(meta map[string]string, key string) float64 {
	v, err := strconv.ParseFloat(meta[key], 64)
	if err != nil {
		return 0
	}
	return v
}
