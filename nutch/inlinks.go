package nutch

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/alvmarrod/reperio/sequencefile"
)

// Inlink is one inbound link: the linking page and its anchor text. Anchor
// may be empty.
type Inlink struct {
	From   string
	Anchor string
}

// Inlinks is one linkdb record: the set of inbound links of a target URL.
// Sources are unique; when the serialized record repeats a source URL the
// last-seen anchor wins.
type Inlinks struct {
	URL   string
	Links []Inlink
}

// EntityKey returns the target URL.
func (l *Inlinks) EntityKey() string { return l.URL }

// EntityKind returns KindLinkDB.
func (l *Inlinks) EntityKind() Kind { return KindLinkDB }

type linkDecoder struct{}

func (linkDecoder) Kind() Kind { return KindLinkDB }

// Decode parses a Text key and Inlinks value: a 4-byte big-endian count
// followed by (Text from-URL, Text anchor) pairs.
func (linkDecoder) Decode(key, value []byte) (Entity, error) {
	target, err := decodeTextKey(key)
	if err != nil {
		return nil, &DecodeError{Kind: KindLinkDB, Err: err}
	}

	fail := func(err error) (Entity, error) {
		return nil, &DecodeError{Kind: KindLinkDB, Key: target, Err: err}
	}

	r := bytes.NewReader(value)
	count, err := readInt32(r)
	if err != nil {
		return fail(errors.Wrap(err, "read inlink count"))
	}
	if count < 0 || int(count) > len(value) {
		return fail(errors.Errorf("implausible inlink count %d", count))
	}

	l := &Inlinks{URL: target, Links: make([]Inlink, 0, count)}
	seen := make(map[string]int, count)
	for i := int32(0); i < count; i++ {
		from, err := sequencefile.ReadText(r)
		if err != nil {
			return fail(errors.Wrapf(err, "read inlink %d source", i))
		}
		anchor, err := sequencefile.ReadText(r)
		if err != nil {
			return fail(errors.Wrapf(err, "read inlink %d anchor", i))
		}
		if idx, dup := seen[from]; dup {
			l.Links[idx].Anchor = anchor
			continue
		}
		seen[from] = len(l.Links)
		l.Links = append(l.Links, Inlink{From: from, Anchor: anchor})
	}
	return l, nil
}
