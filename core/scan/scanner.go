// Package scan implements offline verification of PostgreSQL data-page
// checksums. It walks a data directory's relation tree the way the server
// lays it out on disk (one directory per database, segment files named by
// numeric suffix inside), recomputes every page's checksum at its absolute
// block address, and aggregates a corruption tally. It never takes locks
// and never interprets page contents beyond the fixed header.
package scan

import (
	"fmt"
	"os"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Scanner performs checksum verification scans. It is cheap to construct
// and carries no state between scans other than its configuration, logger,
// metric instruments and the shared read throttle.
//
// A Scanner is not safe for concurrent use: it reuses a single page buffer
// across reads. Construct one Scanner per goroutine if scans ever need to
// run in parallel; tallies are plain sums and combine trivially.
type Scanner struct {
	cfg              Config
	blocksPerSegment uint32
	logger           *zap.Logger
	limiter          *rate.Limiter
	metrics          *scanMetrics
	page             []byte
}

// New builds a Scanner from the given configuration. A nil logger falls
// back to a no-op logger and a nil meter to no-op instruments, so callers
// embedding the scanner in tests do not need either stack wired up.
func New(cfg Config, logger *zap.Logger, meter metric.Meter) (*Scanner, error) {
	cfg = cfg.withDefaults()
	if cfg.PageSize <= 0 || cfg.PageSize%128 != 0 {
		return nil, fmt.Errorf("page size %d is not a positive multiple of 128", cfg.PageSize)
	}
	if cfg.SegmentSize%int64(cfg.PageSize) != 0 {
		return nil, fmt.Errorf("segment size %d is not a multiple of page size %d", cfg.SegmentSize, cfg.PageSize)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m, err := newScanMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("create scan metrics: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.ReadBytesPerSec > 0 {
		// Burst of one page so a single WaitN can always be satisfied.
		limiter = rate.NewLimiter(rate.Limit(cfg.ReadBytesPerSec), cfg.PageSize)
	}

	return &Scanner{
		cfg:              cfg,
		blocksPerSegment: uint32(cfg.SegmentSize / int64(cfg.PageSize)),
		logger:           logger,
		limiter:          limiter,
		metrics:          m,
		page:             make([]byte, cfg.PageSize),
	}, nil
}

// BlocksPerSegment reports how many pages fit in one segment file before
// the relation rolls over to the next numeric suffix.
func (s *Scanner) BlocksPerSegment() uint32 {
	return s.blocksPerSegment
}

// AbsoluteBlockNumber maps a segment ordinal and a 0-based in-file page
// index to the page's position in the full, unsegmented relation. Checksums
// are computed against this address, never the in-file index, so a page
// moved between segments would be detected.
func (s *Scanner) AbsoluteBlockNumber(ordinal, inFileIndex uint32) uint32 {
	return ordinal*s.blocksPerSegment + inFileIndex
}

// checkRoot is the only fatal gate in a scan: everything below it degrades
// to per-file or per-directory counting instead of aborting.
func checkRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("stat root %q: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root %q is not a directory", root)
	}
	return nil
}
