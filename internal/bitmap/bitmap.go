// Package bitmap provides the fixed-size bit set backing the bloom filter.
package bitmap

import "fmt"

// Bitmap is a set of integers in [0, NumBits) backed by a byte array.
type Bitmap struct {
	data    []byte
	numBits uint64
}

// New creates a bitmap with the specified number of bits, all zero.
func New(numBits uint64) *Bitmap {
	numBytes := (numBits + 7) / 8
	return &Bitmap{
		data:    make([]byte, numBytes),
		numBits: numBits,
	}
}

// FromBytes wraps serialized bitmap data without copying it.
func FromBytes(numBits uint64, data []byte) *Bitmap {
	return &Bitmap{
		data:    data,
		numBits: numBits,
	}
}

// Add sets the bit at position i.
func (b *Bitmap) Add(i uint64) {
	if i >= b.numBits {
		panic(fmt.Sprintf("bitmap: index %d out of range [0, %d)", i, b.numBits))
	}
	b.data[i/8] |= 1 << (i % 8)
}

// Remove clears the bit at position i.
func (b *Bitmap) Remove(i uint64) {
	if i >= b.numBits {
		panic(fmt.Sprintf("bitmap: index %d out of range [0, %d)", i, b.numBits))
	}
	b.data[i/8] &^= 1 << (i % 8)
}

// Contains reports whether the bit at position i is set.
func (b *Bitmap) Contains(i uint64) bool {
	if i >= b.numBits {
		panic(fmt.Sprintf("bitmap: index %d out of range [0, %d)", i, b.numBits))
	}
	return b.data[i/8]&(1<<(i%8)) != 0
}

// NumBits returns the capacity of the bitmap in bits.
func (b *Bitmap) NumBits() uint64 {
	return b.numBits
}

// Bytes returns the underlying byte array.
func (b *Bitmap) Bytes() []byte {
	return b.data
}
