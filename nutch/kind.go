// Package nutch decodes the record schemas of the Apache Nutch databases:
// CrawlDatum (crawldb), Inlinks (linkdb) and HostDatum (hostdb). Decoders are
// stateless pure functions over the raw key/value bytes produced by the
// sequencefile reader and are safe to share across partitions and loads.
package nutch

import (
	"fmt"
)

// Kind names one of the three supported database schemas.
type Kind string

const (
	// KindCrawlDB holds per-URL fetch state.
	KindCrawlDB Kind = "crawldb"
	// KindLinkDB holds inbound links per target URL.
	KindLinkDB Kind = "linkdb"
	// KindHostDB holds per-host aggregate counters.
	KindHostDB Kind = "hostdb"
)

// ParseKind validates a user-supplied database kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindCrawlDB, KindLinkDB, KindHostDB:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown database kind %q (want crawldb, linkdb or hostdb)", s)
}

// Entity is one decoded record. The concrete set is closed: *CrawlDatum,
// *Inlinks and *HostDatum.
type Entity interface {
	// EntityKey is the URL (crawldb, linkdb) or hostname (hostdb) the record
	// is keyed by.
	EntityKey() string
	// EntityKind names the schema the entity was decoded from.
	EntityKind() Kind
}

// DecodeError reports one undecodable record. The surrounding partition is
// unaffected; aggregation counts and skips these.
type DecodeError struct {
	Kind Kind
	// Key is the record key if it was recovered before the failure.
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("decode %s record %q: %v", e.Kind, e.Key, e.Err)
	}
	return fmt.Sprintf("decode %s record: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decoder turns one raw key/value pair into an entity.
type Decoder interface {
	Kind() Kind
	Decode(key, value []byte) (Entity, error)
}

// DecoderFor returns the decoder for a schema kind. The set is exhaustive
// over the three supported kinds.
func DecoderFor(k Kind) (Decoder, error) {
	switch k {
	case KindCrawlDB:
		return crawlDecoder{}, nil
	case KindLinkDB:
		return linkDecoder{}, nil
	case KindHostDB:
		return hostDecoder{}, nil
	}
	return nil, fmt.Errorf("no decoder for database kind %q", k)
}
