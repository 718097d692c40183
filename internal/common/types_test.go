package common

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEntryWriteRead(t *testing.T) {
	tests := []struct {
		name  string
		entry *Entry
	}{
		{
			name: "Put entry with value",
			entry: &Entry{
				Type:  EntryTypePut,
				Seq:   42,
				Key:   []byte("test-key"),
				Value: []byte("test-value"),
			},
		},
		{
			name: "Delete entry (tombstone)",
			entry: &Entry{
				Type:  EntryTypeDelete,
				Seq:   100,
				Key:   []byte("deleted-key"),
				Value: nil,
			},
		},
		{
			name: "Nil key and value",
			entry: &Entry{
				Type:  EntryTypePut,
				Seq:   1,
				Key:   nil,
				Value: nil,
			},
		},
		{
			name: "Large value",
			entry: &Entry{
				Type:  EntryTypePut,
				Seq:   999,
				Key:   []byte("key"),
				Value: bytes.Repeat([]byte("x"), 1000),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			n, err := WriteEntry(&buf, tt.entry)
			require.NoError(t, err)
			require.Equal(t, buf.Len(), n)

			decoded, err := ReadEntry(&buf)
			require.NoError(t, err)
			require.NotNil(t, decoded)

			require.Equal(t, tt.entry.Type, decoded.Type)
			require.Equal(t, tt.entry.Seq, decoded.Seq)
			require.Equal(t, tt.entry.Key, decoded.Key)
			require.Equal(t, tt.entry.Value, decoded.Value)
		})
	}
}

func TestReadEntryCleanEOF(t *testing.T) {
	// An empty stream is a clean end, not an error.
	var buf bytes.Buffer
	entry, err := ReadEntry(&buf)
	require.NoError(t, err)
	require.Nil(t, entry)
}

func TestReadEntryTruncated(t *testing.T) {
	// Write a full entry, then truncate mid-record.
	var buf bytes.Buffer
	_, err := WriteEntry(&buf, &Entry{
		Type:  EntryTypePut,
		Seq:   7,
		Key:   []byte("abcdef"),
		Value: []byte("ghijkl"),
	})
	require.NoError(t, err)

	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-3])
	entry, err := ReadEntry(truncated)
	require.Error(t, err)
	require.Nil(t, entry)
}

func TestCloneBytes(t *testing.T) {
	require.Nil(t, CloneBytes(nil))

	src := []byte("mutate-me")
	dst := CloneBytes(src)
	require.Equal(t, src, dst)
	src[0] = 'X'
	require.Equal(t, byte('m'), dst[0])
}
