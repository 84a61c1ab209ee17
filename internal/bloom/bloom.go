// Package bloom implements the fixed-size Bloom filter used by each SSTable
// to answer membership queries without touching disk.
package bloom

import (
	"encoding/binary"
	"hash/fnv"
)

// numHashes is the number of independent hash functions (k) used per key.
const numHashes = 3

// DefaultSize is the recommended bit-array size for a new filter.
const DefaultSize = 1000

// Filter is a fixed-size bit array parameterized only by its size. It has no
// false negatives: any key passed to Insert will always test positive in
// MightContain afterward. It is never persisted — callers rebuild it from an
// SSTable's keys whenever the table is created or loaded.
type Filter struct {
	bits []bool
	size uint64
}

// New creates an empty filter with the given number of bits.
func New(size uint64) *Filter {
	if size == 0 {
		size = DefaultSize
	}
	return &Filter{
		bits: make([]bool, size),
		size: size,
	}
}

// Insert sets the k bits derived from key.
func (f *Filter) Insert(key string) {
	for seed := uint64(0); seed < numHashes; seed++ {
		f.bits[f.index(key, seed)] = true
	}
}

// MightContain reports whether key may have been inserted. A false result is
// a definite negative; a true result may be a false positive.
func (f *Filter) MightContain(key string) bool {
	for seed := uint64(0); seed < numHashes; seed++ {
		if !f.bits[f.index(key, seed)] {
			return false
		}
	}
	return true
}

// Size returns the number of bits backing the filter.
func (f *Filter) Size() uint64 {
	return f.size
}

// index derives a single bit index from key and seed using a 64-bit FNV-1a
// hash of the key bytes followed by the seed, reduced modulo the array size.
// Any stable 64-bit hash works here; FNV-1a is used because it is
// deterministic within and across processes without extra state.
func (f *Filter) index(key string, seed uint64) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	var seedBytes [8]byte
	binary.LittleEndian.PutUint64(seedBytes[:], seed)
	_, _ = h.Write(seedBytes[:])
	return h.Sum64() % f.size
}
