package scan

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sushant-115/pgverify/core/checksum"
)

// --- Test Helpers ---

// newTestScanner builds a Scanner with a no-op logger and meter. The zero
// Config gives the stock 8 KiB pages and 1 GiB segments.
func newTestScanner(t *testing.T, cfg Config) *Scanner {
	t.Helper()
	s, err := New(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	return s
}

// newPage returns a page filled with a deterministic pattern and a
// plausible fixed header. The stored checksum field is left at the unset
// sentinel; callers stamp it as needed.
func newPage(pageSize int, seed byte) []byte {
	page := make([]byte, pageSize)
	for i := range page {
		page[i] = byte(i)*7 + seed
	}
	binary.LittleEndian.PutUint16(page[8:10], 0)                    // pd_checksum unset
	binary.LittleEndian.PutUint16(page[12:14], 28)                  // pd_lower
	binary.LittleEndian.PutUint16(page[14:16], uint16(pageSize-64)) // pd_upper
	binary.LittleEndian.PutUint16(page[16:18], uint16(pageSize))    // pd_special
	binary.LittleEndian.PutUint16(page[18:20], uint16(pageSize)|4)  // pd_pagesize_version
	return page
}

// stampChecksum stores the correct checksum for the page's absolute block
// number, turning it into a page that must classify as OK.
func stampChecksum(page []byte, blkno uint32) {
	binary.LittleEndian.PutUint16(page[8:10], checksum.Page(page, blkno))
}

// writeFile writes a segment file from the concatenation of the given
// byte slices.
func writeFile(t *testing.T, path string, chunks ...[]byte) {
	t.Helper()
	var data []byte
	for _, c := range chunks {
		data = append(data, c...)
	}
	require.NoError(t, os.WriteFile(path, data, 0644))
}

// requireNotRoot skips tests that rely on permission denials; root
// bypasses file modes entirely.
func requireNotRoot(t *testing.T) {
	t.Helper()
	if os.Geteuid() == 0 {
		t.Skip("permission-denial tests cannot run as root")
	}
}

// --- Test Cases ---

func TestParseSegmentOrdinal(t *testing.T) {
	cases := []struct {
		name string
		want uint32
	}{
		{"0", 0},
		{"1", 1},
		{"5", 5},
		{"12345", 12345},
		{"16384.3", 3},
		{"pg_internal.init", 0},
		{"base", 0},
		{"", 0},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ParseSegmentOrdinal(tc.name), "name %q", tc.name)
	}
}

func TestScanSegmentAllValid(t *testing.T) {
	s := newTestScanner(t, Config{})
	dir := t.TempDir()

	p0 := newPage(s.cfg.PageSize, 1)
	stampChecksum(p0, 0)
	p1 := newPage(s.cfg.PageSize, 2)
	stampChecksum(p1, 1)
	path := filepath.Join(dir, "0")
	writeFile(t, path, p0, p1)

	require.Equal(t, uint64(0), s.scanSegment(context.Background(), path))
}

// TestScanSegmentSentinelPagesExempt: pages whose stored checksum is the
// unset sentinel are never corrupted, whatever their content holds.
func TestScanSegmentSentinelPagesExempt(t *testing.T) {
	s := newTestScanner(t, Config{})
	dir := t.TempDir()

	p0 := newPage(s.cfg.PageSize, 0x55)
	p1 := newPage(s.cfg.PageSize, 0xAA)
	path := filepath.Join(dir, "0")
	writeFile(t, path, p0, p1)

	require.Equal(t, uint64(0), s.scanSegment(context.Background(), path))
}

func TestScanSegmentChecksumMismatch(t *testing.T) {
	s := newTestScanner(t, Config{})
	dir := t.TempDir()

	p0 := newPage(s.cfg.PageSize, 1)
	stampChecksum(p0, 0)
	p1 := newPage(s.cfg.PageSize, 2)
	stampChecksum(p1, 1)
	p1[8] ^= 0xFF // stored checksum now wrong and non-zero
	path := filepath.Join(dir, "0")
	writeFile(t, path, p0, p1)

	require.Equal(t, uint64(1), s.scanSegment(context.Background(), path))
}

// TestScanSegmentShortRead: a truncated trailing page counts as exactly one
// corrupted page and ends the file's scan.
func TestScanSegmentShortRead(t *testing.T) {
	s := newTestScanner(t, Config{})
	dir := t.TempDir()

	p0 := newPage(s.cfg.PageSize, 1)
	stampChecksum(p0, 0)
	tail := newPage(s.cfg.PageSize, 2)[:s.cfg.PageSize-1]
	path := filepath.Join(dir, "0")
	writeFile(t, path, p0, tail)

	require.Equal(t, uint64(1), s.scanSegment(context.Background(), path))
}

func TestScanSegmentEmptyFile(t *testing.T) {
	s := newTestScanner(t, Config{})
	path := filepath.Join(t.TempDir(), "0")
	writeFile(t, path)

	require.Equal(t, uint64(0), s.scanSegment(context.Background(), path))
}

// TestScanSegmentSkipsInternalCache: the server-internal cache file is
// excluded wholesale, even when filled with garbage.
func TestScanSegmentSkipsInternalCache(t *testing.T) {
	s := newTestScanner(t, Config{})
	path := filepath.Join(t.TempDir(), "pg_internal.init")
	garbage := make([]byte, s.cfg.PageSize+17)
	for i := range garbage {
		garbage[i] = 0xDB
	}
	writeFile(t, path, garbage)

	require.Equal(t, uint64(0), s.scanSegment(context.Background(), path))
}

// TestScanSegmentOpenFailure: an unopenable file counts as one corrupted
// unit instead of aborting.
func TestScanSegmentOpenFailure(t *testing.T) {
	requireNotRoot(t)
	s := newTestScanner(t, Config{})
	path := filepath.Join(t.TempDir(), "0")
	p := newPage(s.cfg.PageSize, 1)
	stampChecksum(p, 0)
	writeFile(t, path, p)
	require.NoError(t, os.Chmod(path, 0o000))

	require.Equal(t, uint64(1), s.scanSegment(context.Background(), path))
}

// TestAbsoluteBlockNumberAcrossSegments: scanning segment "5" in isolation
// must address its pages exactly as if one unsegmented relation file had
// been read through to that point.
func TestAbsoluteBlockNumberAcrossSegments(t *testing.T) {
	s := newTestScanner(t, Config{})
	require.Equal(t, uint32(131072), s.BlocksPerSegment())
	require.Equal(t, uint32(655363), s.AbsoluteBlockNumber(5, 3))

	dir := t.TempDir()
	path := filepath.Join(dir, "5")
	var pages [][]byte
	for i := uint32(0); i < 4; i++ {
		p := newPage(s.cfg.PageSize, byte(i))
		stampChecksum(p, s.AbsoluteBlockNumber(5, i))
		pages = append(pages, p)
	}
	writeFile(t, path, pages...)
	require.Equal(t, uint64(0), s.scanSegment(context.Background(), path))

	// The same pages checksummed at their in-file index must all fail:
	// segment context is mandatory input to the checksum.
	relative := filepath.Join(dir, "relative5")
	for i := range pages {
		stampChecksum(pages[i], uint32(i))
	}
	writeFile(t, relative, pages...)
	require.Equal(t, uint64(4), s.scanSegment(context.Background(), relative))
}

// TestScanSegmentThrottled: the read limiter must not change
// classification results.
func TestScanSegmentThrottled(t *testing.T) {
	s := newTestScanner(t, Config{ReadBytesPerSec: 64 << 20})
	dir := t.TempDir()

	p0 := newPage(s.cfg.PageSize, 1)
	stampChecksum(p0, 0)
	p1 := newPage(s.cfg.PageSize, 2)
	stampChecksum(p1, 1)
	p1[9] ^= 0x01
	path := filepath.Join(dir, "0")
	writeFile(t, path, p0, p1)

	require.Equal(t, uint64(1), s.scanSegment(context.Background(), path))
}
