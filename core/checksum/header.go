package checksum

import "encoding/binary"

// HeaderSize is the fixed size of the PostgreSQL page header
// (PageHeaderData up to but not including the line-pointer array).
const HeaderSize = 24

// SentinelChecksum is the reserved stored-checksum value meaning "no
// checksum computed for this page". New or never-written pages carry it and
// are exempt from verification; Page never returns it.
const SentinelChecksum uint16 = 0

// PageHeader is the decoded fixed page header. The verifier only acts on
// Checksum; the remaining fields are carried for diagnostics so corruption
// reports can show the same layout metadata the server would log.
type PageHeader struct {
	LSN             uint64 // WAL position of last change (xlogid<<32 | xrecoff)
	Checksum        uint16
	Flags           uint16
	Lower           uint16 // start of free space
	Upper           uint16 // end of free space
	Special         uint16 // start of special space
	PageSizeVersion uint16 // page size | layout version
	PruneXID        uint32 // oldest prunable transaction id, or 0
}

// StoredChecksum reads the pd_checksum field without decoding the rest of
// the header. The page must be at least HeaderSize bytes.
func StoredChecksum(page []byte) uint16 {
	return binary.LittleEndian.Uint16(page[8:10])
}

// ParseHeader decodes the fixed page header from the start of a page. The
// page must be at least HeaderSize bytes.
func ParseHeader(page []byte) PageHeader {
	return PageHeader{
		LSN: uint64(binary.LittleEndian.Uint32(page[0:4]))<<32 |
			uint64(binary.LittleEndian.Uint32(page[4:8])),
		Checksum:        binary.LittleEndian.Uint16(page[8:10]),
		Flags:           binary.LittleEndian.Uint16(page[10:12]),
		Lower:           binary.LittleEndian.Uint16(page[12:14]),
		Upper:           binary.LittleEndian.Uint16(page[14:16]),
		Special:         binary.LittleEndian.Uint16(page[16:18]),
		PageSizeVersion: binary.LittleEndian.Uint16(page[18:20]),
		PruneXID:        binary.LittleEndian.Uint32(page[20:24]),
	}
}
