package database

import (
	"context"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/alvmarrod/reperio/hadoopfs"
	"github.com/alvmarrod/reperio/metrics"
	"github.com/alvmarrod/reperio/nutch"
	"github.com/alvmarrod/reperio/sequencefile"
)

// Progress is called after each fully processed partition with the number of
// partitions completed so far, the total resolved, and the running record
// count.
type Progress func(completed, total int, records int64)

// Options tune one load.
type Options struct {
	// MaxRecords caps the number of entities yielded across all partitions.
	// Once reached, remaining partitions are not opened and the report is
	// marked truncated. 0 means unlimited.
	MaxRecords int64
	// OpenRetries is how often a failed partition open is retried (with
	// exponential backoff) before the partition is skipped.
	OpenRetries uint64
	Progress    Progress
	Metrics     *metrics.Metrics
}

// Loader opens Nutch databases through a storage backend.
type Loader struct {
	fs   hadoopfs.FileSystem
	opts Options
}

// NewLoader builds a loader over fs.
func NewLoader(fs hadoopfs.FileSystem, opts Options) *Loader {
	return &Loader{fs: fs, opts: opts}
}

// Open resolves the partitions of the database at dbPath and returns a scan
// over its decoded entities. It fails only when the path resolves to no
// partitions or the kind is unknown; partition-level trouble surfaces later,
// on the scan's report.
func (l *Loader) Open(ctx context.Context, dbPath string, kind nutch.Kind) (*Scan, error) {
	dec, err := nutch.DecoderFor(kind)
	if err != nil {
		return nil, err
	}

	parts, err := DiscoverPartitions(ctx, l.fs, dbPath)
	if err != nil {
		return nil, err
	}
	log.Infof("Loading %s database from %s (%d partitions)", kind, dbPath, len(parts))

	return &Scan{
		ctx:     ctx,
		fs:      l.fs,
		opts:    l.opts,
		decoder: dec,
		parts:   parts,
		started: time.Now(),
		report: &Report{
			Kind:       kind,
			Path:       dbPath,
			Partitions: len(parts),
		},
	}, nil
}

// Scan is a lazy, forward-only stream of decoded entities across all
// partitions of one database, in shard order:
//
//	for s.Next() {
//	    use(s.Entity())
//	}
//	if err := s.Err(); err != nil { ... }
//	report := s.Report()
//
// Records that fail to decode and partitions that fail to open or read are
// counted on the report and skipped; Err is non-nil only for fatal failures.
type Scan struct {
	ctx     context.Context
	fs      hadoopfs.FileSystem
	opts    Options
	decoder nutch.Decoder
	parts   []Partition
	started time.Time
	report  *Report

	cur    int
	rc     io.ReadCloser
	sr     *sequencefile.Reader
	entity nutch.Entity
	err    error
	done   bool
}

// Next advances to the next decodable entity, crossing partition boundaries
// as needed. It returns false when the stream is exhausted, truncated by the
// record cap, or fatally failed.
func (s *Scan) Next() bool {
	if s.done {
		return false
	}

	for {
		if err := s.ctx.Err(); err != nil {
			s.stopOnDeadContext(err)
			return false
		}

		if s.opts.MaxRecords > 0 && s.report.Records >= s.opts.MaxRecords {
			s.report.Truncated = s.inputRemains()
			s.finish()
			return false
		}

		if s.sr == nil {
			if s.cur >= len(s.parts) {
				s.finish()
				return false
			}
			if !s.openCurrent() {
				return false
			}
			continue
		}

		if !s.sr.Next() {
			s.closeCurrent()
			continue
		}

		e, err := s.decoder.Decode(s.sr.Key(), s.sr.Value())
		if err != nil {
			s.report.DecodeErrors++
			s.opts.Metrics.DecodeFailed(string(s.report.Kind))
			log.Debugf("Skipping record in partition %d: %v", s.parts[s.cur].Index, err)
			continue
		}

		s.entity = e
		s.report.Records++
		s.report.observe(e)
		s.opts.Metrics.RecordDecoded(string(s.report.Kind))
		return true
	}
}

// Entity returns the current entity, valid until the next call to Next.
func (s *Scan) Entity() nutch.Entity {
	return s.entity
}

// Err returns the fatal error that stopped the scan, if any.
func (s *Scan) Err() error {
	return s.err
}

// Report returns the load report. Counters are final once Next has returned
// false.
func (s *Scan) Report() *Report {
	return s.report
}

// Close releases the currently open partition. It is safe to call at any
// point; an exhausted scan has nothing left to close.
func (s *Scan) Close() error {
	if s.rc != nil {
		err := s.rc.Close()
		s.rc, s.sr = nil, nil
		return err
	}
	return nil
}

// inputRemains reports whether undelivered records exist past the record
// cap. A partition whose last record landed exactly on the cap is closed out
// normally, so its read count and progress event are not lost.
func (s *Scan) inputRemains() bool {
	if s.sr != nil {
		if s.sr.Next() {
			return true
		}
		s.closeCurrent()
	}
	return s.cur < len(s.parts)
}

// stopOnDeadContext ends the scan when the caller's context is done: fatal
// if the first partition produced nothing yet, otherwise the in-flight
// partition is recorded as failed and the partial data stands.
func (s *Scan) stopOnDeadContext(err error) {
	if s.cur == 0 && s.report.Records == 0 {
		s.err = err
	} else if s.sr != nil {
		p := s.parts[s.cur]
		_ = s.Close()
		s.skipCurrent(p, err)
	}
	s.finish()
}

// openCurrent opens the partition at s.cur, retrying transient failures.
// On failure the partition is skipped and counted, except when the very
// first partition fails before any record was produced on a dead context,
// which fails the whole scan.
func (s *Scan) openCurrent() bool {
	p := s.parts[s.cur]

	var rc io.ReadCloser
	var sr *sequencefile.Reader
	open := func() error {
		f, err := s.fs.Open(s.ctx, p.Path)
		if err != nil {
			return err
		}
		r, err := sequencefile.NewReader(f)
		if err != nil {
			f.Close()
			// Header and codec failures do not heal on retry.
			return backoff.Permanent(err)
		}
		rc, sr = f, r
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	err := backoff.Retry(open, backoff.WithContext(
		backoff.WithMaxRetries(bo, s.opts.OpenRetries), s.ctx))
	if err == nil {
		s.rc, s.sr = rc, sr
		return true
	}

	if s.ctx.Err() != nil && s.cur == 0 && s.report.Records == 0 {
		s.err = &PartitionError{Partition: p, Err: err}
		s.finish()
		return false
	}

	s.skipCurrent(p, err)
	return true
}

// closeCurrent finishes the open partition: a clean end counts it as read,
// a mid-stream error records the partition as failed. Either way the scan
// moves on and progress is reported.
func (s *Scan) closeCurrent() {
	p := s.parts[s.cur]
	readErr := s.sr.Err()
	_ = s.Close()

	if readErr != nil {
		s.skipCurrent(p, readErr)
		return
	}

	s.report.PartitionsRead++
	s.opts.Metrics.PartitionRead(string(s.report.Kind))
	s.advance()
}

func (s *Scan) skipCurrent(p Partition, err error) {
	pe := &PartitionError{Partition: p, Err: err}
	s.report.PartitionErrors = append(s.report.PartitionErrors, pe)
	s.opts.Metrics.PartitionFailed(string(s.report.Kind))
	log.Warnf("Skipping %s", pe)
	s.advance()
}

func (s *Scan) advance() {
	s.cur++
	if s.opts.Progress != nil {
		s.opts.Progress(s.cur, len(s.parts), s.report.Records)
	}
}

func (s *Scan) finish() {
	_ = s.Close()
	s.done = true
	s.report.Duration = time.Since(s.started)
	s.report.finalize()
	s.opts.Metrics.ObserveLoad(string(s.report.Kind), s.report.Duration.Seconds())
}
