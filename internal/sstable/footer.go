package sstable

import (
	"io"

	"citrine/internal/common"
	"citrine/internal/status"
)

const (
	// FooterSize is the fixed size of the footer in bytes.
	// footerOffset = len(sstable) - FooterSize
	FooterSize = 8 + 8 + 8 + 8

	footerMagic = uint64(0xC17A_B1E5_57AB_1E00)
)

// Footer is the last 32 bytes of the SSTable file.
type Footer struct {
	FilterOffset uint64 // Offset where the filter block starts
	IndexOffset  uint64 // Offset where the index block starts
	EntryCount   uint64 // Total number of entries in the SSTable
}

// WriteFooter writes the footer to the given writer.
// Returns the number of bytes written.
func WriteFooter(w io.Writer, f *Footer) (int, error) {
	total := 0

	for _, v := range []uint64{f.FilterOffset, f.IndexOffset, f.EntryCount, footerMagic} {
		n, err := common.WriteUint64(w, v)
		total += n
		if err != nil {
			return total, err
		}
	}

	return total, nil
}

// ReadFooter reads and validates a footer.
func ReadFooter(r io.Reader) (*Footer, error) {
	filterOffset, err := common.ReadUint64(r)
	if err != nil {
		return nil, status.Corruptionf(err, "short footer")
	}
	indexOffset, err := common.ReadUint64(r)
	if err != nil {
		return nil, status.Corruptionf(err, "short footer")
	}
	entryCount, err := common.ReadUint64(r)
	if err != nil {
		return nil, status.Corruptionf(err, "short footer")
	}
	magic, err := common.ReadUint64(r)
	if err != nil {
		return nil, status.Corruptionf(err, "short footer")
	}
	if magic != footerMagic {
		return nil, status.Corruptionf(nil, "bad footer magic %#x", magic)
	}
	return &Footer{
		FilterOffset: filterOffset,
		IndexOffset:  indexOffset,
		EntryCount:   entryCount,
	}, nil
}
