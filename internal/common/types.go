package common

import (
	"encoding/binary"
	"io"
)

// FileNo identifies a file (SSTable or WAL).
type FileNo uint64

// BlockNo identifies a block within an SSTable.
type BlockNo int

// EntryType enumerates logical operations flowing through WAL, memtable,
// and SSTable components.
type EntryType uint8

const (
	EntryTypePut EntryType = iota
	EntryTypeDelete
)

// Entry captures a single mutation in sequence order. Entries for the same
// user key are stored newest-first (descending Seq) everywhere, so the first
// entry at or below a reader's visibility bound is the one that wins.
type Entry struct {
	Type  EntryType
	Seq   uint64
	Key   []byte
	Value []byte
}

// EntryIterator produces a stream of entries. Next returns nil when the stream
// is exhausted. Implementations should close underlying resources separately.
type EntryIterator interface {
	Next() (*Entry, error)
}

// WriteEntry writes an entry to the given writer.
// Format: type(1) + seq(8) + keyLen(varint) + valueLen(varint) + key + value
// Returns the number of bytes written.
func WriteEntry(w io.Writer, e *Entry) (int, error) {
	var hdr [1 + 8]byte
	var varintBuf [binary.MaxVarintLen64]byte
	total := 0

	hdr[0] = byte(e.Type)
	binary.LittleEndian.PutUint64(hdr[1:], e.Seq)
	n, err := w.Write(hdr[:])
	total += n
	if err != nil {
		return total, err
	}

	vn := binary.PutUvarint(varintBuf[:], uint64(len(e.Key)))
	n, err = w.Write(varintBuf[:vn])
	total += n
	if err != nil {
		return total, err
	}

	vn = binary.PutUvarint(varintBuf[:], uint64(len(e.Value)))
	n, err = w.Write(varintBuf[:vn])
	total += n
	if err != nil {
		return total, err
	}

	if len(e.Key) > 0 {
		n, err = w.Write(e.Key)
		total += n
		if err != nil {
			return total, err
		}
	}

	if len(e.Value) > 0 {
		n, err = w.Write(e.Value)
		total += n
		if err != nil {
			return total, err
		}
	}

	return total, nil
}

// ReadEntry reads a single entry from the reader.
// Returns (nil, nil) on a clean EOF. Returns an error on malformed data.
func ReadEntry(r io.Reader) (*Entry, error) {
	var typeByte [1]byte
	if _, err := io.ReadFull(r, typeByte[:]); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}

	var seqBuf [8]byte
	if _, err := io.ReadFull(r, seqBuf[:]); err != nil {
		return nil, err
	}

	keyLen, err := binary.ReadUvarint(byteReader{r})
	if err != nil {
		return nil, err
	}

	valueLen, err := binary.ReadUvarint(byteReader{r})
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		Type: EntryType(typeByte[0]),
		Seq:  binary.LittleEndian.Uint64(seqBuf[:]),
	}

	if keyLen > 0 {
		entry.Key = make([]byte, keyLen)
		if _, err := io.ReadFull(r, entry.Key); err != nil {
			return nil, err
		}
	}

	if valueLen > 0 {
		entry.Value = make([]byte, valueLen)
		if _, err := io.ReadFull(r, entry.Value); err != nil {
			return nil, err
		}
	}

	return entry, nil
}

// byteReader adapts io.Reader to io.ByteReader for binary.ReadUvarint
type byteReader struct {
	io.Reader
}

func (br byteReader) ReadByte() (byte, error) {
	var b [1]byte
	_, err := br.Reader.Read(b[:])
	return b[0], err
}

// CloneBytes returns a copy of src, preserving nil.
func CloneBytes(src []byte) []byte {
	if src == nil {
		return nil
	}
	out := make([]byte, len(src))
	copy(out, src)
	return out
}
