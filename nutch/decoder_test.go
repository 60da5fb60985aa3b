package nutch_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvmarrod/reperio/nutch"
	"github.com/alvmarrod/reperio/nutch/nutchtest"
)

func TestParseKind(t *testing.T) {
	for _, s := range []string{"crawldb", "linkdb", "hostdb"} {
		k, err := nutch.ParseKind(s)
		require.NoError(t, err)
		assert.EqualValues(t, s, k)
	}

	_, err := nutch.ParseKind("pagedb")
	assert.Error(t, err)
}

func TestDecoderForClosedSet(t *testing.T) {
	for _, k := range []nutch.Kind{nutch.KindCrawlDB, nutch.KindLinkDB, nutch.KindHostDB} {
		d, err := nutch.DecoderFor(k)
		require.NoError(t, err)
		assert.Equal(t, k, d.Kind())
	}

	_, err := nutch.DecoderFor(nutch.Kind("segmentdb"))
	assert.Error(t, err)
}

func TestCrawlDatumDecode(t *testing.T) {
	fetched := time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC)
	modified := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

	value := nutchtest.CrawlDatumValue(nutchtest.Datum{
		Status:        nutch.StatusFetched,
		FetchTime:     fetched,
		ModifiedTime:  modified,
		Retries:       2,
		FetchInterval: 30 * 24 * time.Hour,
		Score:         1.25,
		Signature:     []byte{0xca, 0xfe, 0xba, 0xbe},
		Metadata:      map[string]string{"_pst_": "success(1)"},
	})

	d, err := nutch.DecoderFor(nutch.KindCrawlDB)
	require.NoError(t, err)

	e, err := d.Decode(nutchtest.TextKey("http://example.org/"), value)
	require.NoError(t, err)

	cd, ok := e.(*nutch.CrawlDatum)
	require.True(t, ok)
	assert.Equal(t, "http://example.org/", cd.URL)
	assert.Equal(t, "http://example.org/", cd.EntityKey())
	assert.Equal(t, nutch.KindCrawlDB, cd.EntityKind())
	assert.Equal(t, nutch.StatusFetched, cd.Status)
	assert.Equal(t, "fetched", cd.Status.String())
	assert.True(t, fetched.Equal(cd.FetchTime))
	assert.True(t, modified.Equal(cd.ModifiedTime))
	assert.Equal(t, 2, cd.Retries)
	assert.Equal(t, 30*24*time.Hour, cd.FetchInterval)
	assert.InDelta(t, 1.25, cd.Score, 1e-6)
	assert.Equal(t, []byte{0xca, 0xfe, 0xba, 0xbe}, cd.Signature)
	assert.Equal(t, map[string]string{"_pst_": "success(1)"}, cd.Metadata)
}

func TestCrawlDatumLegacyFloatInterval(t *testing.T) {
	value := nutchtest.CrawlDatumValue(nutchtest.Datum{
		Version:       5,
		Status:        nutch.StatusUnfetched,
		FetchInterval: 3600 * time.Second,
	})

	d, _ := nutch.DecoderFor(nutch.KindCrawlDB)
	e, err := d.Decode(nutchtest.TextKey("http://old.example/"), value)
	require.NoError(t, err)

	cd := e.(*nutch.CrawlDatum)
	assert.EqualValues(t, 5, cd.Version)
	assert.Equal(t, time.Hour, cd.FetchInterval)
}

func TestCrawlDatumUnknownStatus(t *testing.T) {
	value := nutchtest.CrawlDatumValue(nutchtest.Datum{Status: nutch.CrawlStatus(99)})

	d, _ := nutch.DecoderFor(nutch.KindCrawlDB)
	_, err := d.Decode(nutchtest.TextKey("http://example.org/"), value)
	require.Error(t, err)

	var de *nutch.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, nutch.KindCrawlDB, de.Kind)
	assert.Equal(t, "http://example.org/", de.Key)
}

func TestCrawlDatumTruncatedValue(t *testing.T) {
	value := nutchtest.CrawlDatumValue(nutchtest.Datum{Status: nutch.StatusFetched})

	d, _ := nutch.DecoderFor(nutch.KindCrawlDB)
	_, err := d.Decode(nutchtest.TextKey("http://example.org/"), value[:6])

	var de *nutch.DecodeError
	require.ErrorAs(t, err, &de)
}

func TestCrawlDatumUnsupportedVersion(t *testing.T) {
	value := nutchtest.CrawlDatumValue(nutchtest.Datum{Version: 9})

	d, _ := nutch.DecoderFor(nutch.KindCrawlDB)
	_, err := d.Decode(nutchtest.TextKey("http://example.org/"), value)
	assert.Error(t, err)
}

func TestCrawlDatumGarbageMetadataIgnored(t *testing.T) {
	value := nutchtest.CrawlDatumValue(nutchtest.Datum{Status: nutch.StatusFetched})
	value = append(value, 0x7f, 0x01, 0x02) // trailing bytes that are not a text map

	d, _ := nutch.DecoderFor(nutch.KindCrawlDB)
	e, err := d.Decode(nutchtest.TextKey("http://example.org/"), value)
	require.NoError(t, err)
	assert.Empty(t, e.(*nutch.CrawlDatum).Metadata)
}

func TestInlinksDecode(t *testing.T) {
	value := nutchtest.InlinksValue([]nutch.Inlink{
		{From: "http://a.example/", Anchor: "first"},
		{From: "http://b.example/", Anchor: ""},
		{From: "http://c.example/", Anchor: "third"},
	})

	d, _ := nutch.DecoderFor(nutch.KindLinkDB)
	e, err := d.Decode(nutchtest.TextKey("http://target.example/"), value)
	require.NoError(t, err)

	l := e.(*nutch.Inlinks)
	assert.Equal(t, "http://target.example/", l.URL)
	assert.Equal(t, []nutch.Inlink{
		{From: "http://a.example/", Anchor: "first"},
		{From: "http://b.example/", Anchor: ""},
		{From: "http://c.example/", Anchor: "third"},
	}, l.Links)
}

func TestInlinksDuplicateSourceLastAnchorWins(t *testing.T) {
	value := nutchtest.InlinksValue([]nutch.Inlink{
		{From: "http://a.example/", Anchor: "old anchor"},
		{From: "http://b.example/", Anchor: "other"},
		{From: "http://a.example/", Anchor: "new anchor"},
	})

	d, _ := nutch.DecoderFor(nutch.KindLinkDB)
	e, err := d.Decode(nutchtest.TextKey("http://target.example/"), value)
	require.NoError(t, err)

	l := e.(*nutch.Inlinks)
	require.Len(t, l.Links, 2)
	assert.Equal(t, nutch.Inlink{From: "http://a.example/", Anchor: "new anchor"}, l.Links[0])
	assert.Equal(t, nutch.Inlink{From: "http://b.example/", Anchor: "other"}, l.Links[1])
}

func TestInlinksTruncated(t *testing.T) {
	value := nutchtest.InlinksValue([]nutch.Inlink{{From: "http://a.example/", Anchor: "x"}})

	d, _ := nutch.DecoderFor(nutch.KindLinkDB)
	_, err := d.Decode(nutchtest.TextKey("http://target.example/"), value[:8])

	var de *nutch.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, nutch.KindLinkDB, de.Kind)
}

func TestHostDatumDecode(t *testing.T) {
	value := nutchtest.HostDatumValue(map[string]string{
		"homepage":        "http://example.org/",
		"fetched":         "120",
		"unfetched":       "45",
		"dnsFailures":     "3",
		"errors404":       "7",
		"avgResponseTime": "0.35",
		"custom":          "kept",
	})

	d, _ := nutch.DecoderFor(nutch.KindHostDB)
	e, err := d.Decode(nutchtest.TextKey("example.org"), value)
	require.NoError(t, err)

	h := e.(*nutch.HostDatum)
	assert.Equal(t, "example.org", h.Host)
	assert.Equal(t, "http://example.org/", h.Homepage)
	assert.EqualValues(t, 120, h.Fetched)
	assert.EqualValues(t, 45, h.Unfetched)
	assert.EqualValues(t, 3, h.DNSFailures)
	assert.EqualValues(t, 7, h.Errors404)
	assert.InDelta(t, 0.35, h.AvgResponseTime, 1e-9)
	assert.Equal(t, "kept", h.Metadata["custom"])
}

func TestHostDatumMalformedCounters(t *testing.T) {
	value := nutchtest.HostDatumValue(map[string]string{"fetched": "many"})

	d, _ := nutch.DecoderFor(nutch.KindHostDB)
	e, err := d.Decode(nutchtest.TextKey("example.org"), value)
	require.NoError(t, err)
	assert.EqualValues(t, 0, e.(*nutch.HostDatum).Fetched)
}
