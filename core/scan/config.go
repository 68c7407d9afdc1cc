package scan

const (
	// DefaultPageSize is the stock PostgreSQL block size (BLCKSZ).
	DefaultPageSize = 8192

	// DefaultSegmentSize is the stock relation segment capacity: segment
	// files roll over at 1 GiB (RELSEG_SIZE blocks of BLCKSZ bytes).
	DefaultSegmentSize = 1 << 30

	// DefaultSkipFileName is the relation-cache file the server rebuilds on
	// startup. Its content carries no page checksums, so verifying it only
	// produces false positives.
	DefaultSkipFileName = "pg_internal.init"
)

// Config holds all settings for a verification scan. The zero value is not
// usable directly; New applies the defaults below for any zero field. Both
// sizes must match the values the target cluster was built with, or every
// page will be reported corrupted.
type Config struct {
	// PageSize is the size in bytes of one data page.
	PageSize int `yaml:"page_size"`
	// SegmentSize is the byte capacity of one segment file before the
	// relation rolls over to the next numeric suffix. Must be a multiple
	// of PageSize.
	SegmentSize int64 `yaml:"segment_size"`
	// SkipFileName marks server-internal cache files to exclude; any
	// regular file whose name contains it contributes nothing to the tally.
	SkipFileName string `yaml:"skip_file_name"`

	// Verbose enables per-page debug output mirroring the page header
	// fields, in addition to the always-on corruption reports.
	Verbose bool `yaml:"verbose"`
	// DumpCorrupted hex-dumps the raw bytes of each corrupted page to the
	// log. Diagnostics only; never changes the tally.
	DumpCorrupted bool `yaml:"dump_corrupted"`

	// ReadBytesPerSec caps aggregate read throughput across the whole
	// scan so backup-window verification does not starve a live cluster's
	// disks. Zero means unlimited.
	ReadBytesPerSec int64 `yaml:"read_bytes_per_sec"`
}

func (c Config) withDefaults() Config {
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.SegmentSize == 0 {
		c.SegmentSize = DefaultSegmentSize
	}
	if c.SkipFileName == "" {
		c.SkipFileName = DefaultSkipFileName
	}
	return c
}
