package nutch

// CrawlStatus is the CrawlDatum db status byte.
type CrawlStatus byte

// Nutch CrawlDatum database status codes.
const (
	StatusUnfetched    CrawlStatus = 1
	StatusFetched      CrawlStatus = 2
	StatusGone         CrawlStatus = 3
	StatusRedirTemp    CrawlStatus = 4
	StatusRedirPerm    CrawlStatus = 5
	StatusNotModified  CrawlStatus = 6
	StatusDuplicate    CrawlStatus = 7
	StatusOrphan       CrawlStatus = 8
)

var statusNames = map[CrawlStatus]string{
	StatusUnfetched:   "unfetched",
	StatusFetched:     "fetched",
	StatusGone:        "gone",
	StatusRedirTemp:   "redirect_temp",
	StatusRedirPerm:   "redirect_perm",
	StatusNotModified: "not_modified",
	StatusDuplicate:   "duplicate",
	StatusOrphan:      "orphan",
}

// Known reports whether the status byte is part of the schema's enum.
func (s CrawlStatus) Known() bool {
	_, ok := statusNames[s]
	return ok
}

func (s CrawlStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}
