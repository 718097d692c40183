package filter

import (
	"encoding/binary"
	"hash/fnv"
	"math"

	"citrine/internal/bitmap"
)

// Summary layout: [k: uint32][numBits: uint64][bitmap bytes]
const bloomHeaderSize = 4 + 8

// bloomPolicy implements Policy with a standard bloom filter using double
// FNV-1a hashing.
type bloomPolicy struct {
	bitsPerKey int
}

var _ Policy = (*bloomPolicy)(nil)

// NewBloomPolicy returns a bloom filter policy sized at bitsPerKey bits per
// build-set key. 10 bits per key gives roughly a 1% false positive rate.
func NewBloomPolicy(bitsPerKey int) Policy {
	if bitsPerKey < 1 {
		bitsPerKey = 1
	}
	return &bloomPolicy{bitsPerKey: bitsPerKey}
}

func (p *bloomPolicy) Name() string {
	return "citrine.BuiltinBloomFilter"
}

func (p *bloomPolicy) CreateFilter(keys [][]byte) []byte {
	// k = bitsPerKey * ln(2) rounded, clamped to a sane range.
	k := uint32(math.Round(float64(p.bitsPerKey) * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}

	numBits := uint64(len(keys) * p.bitsPerKey)
	if numBits < 64 {
		numBits = 64
	}

	bits := bitmap.New(numBits)
	for _, key := range keys {
		h1, h2 := bloomHash(key)
		for i := uint32(0); i < k; i++ {
			bits.Add((h1 + uint64(i)*h2) % numBits)
		}
	}

	summary := make([]byte, bloomHeaderSize, bloomHeaderSize+len(bits.Bytes()))
	binary.LittleEndian.PutUint32(summary[0:], k)
	binary.LittleEndian.PutUint64(summary[4:], numBits)
	return append(summary, bits.Bytes()...)
}

func (p *bloomPolicy) KeyMayMatch(key, summary []byte) bool {
	if len(summary) < bloomHeaderSize {
		// Malformed or empty summary: claim a match so the full lookup
		// decides. Correctness over cost.
		return true
	}

	k := binary.LittleEndian.Uint32(summary[0:])
	numBits := binary.LittleEndian.Uint64(summary[4:])
	if numBits == 0 || uint64(len(summary)-bloomHeaderSize) < (numBits+7)/8 {
		return true
	}

	bits := bitmap.FromBytes(numBits, summary[bloomHeaderSize:])
	h1, h2 := bloomHash(key)
	for i := uint32(0); i < k; i++ {
		if !bits.Contains((h1 + uint64(i)*h2) % numBits) {
			return false
		}
	}
	return true
}

// bloomHash computes two hash values using FNV-1a for double hashing.
func bloomHash(key []byte) (uint64, uint64) {
	f1 := fnv.New64a()
	f1.Write(key)
	h1 := f1.Sum64()

	f2 := fnv.New64a()
	f2.Write(key)
	f2.Write([]byte{0x01})
	h2 := f2.Sum64()
	if h2 == 0 {
		h2 = 1
	}

	return h1, h2
}
