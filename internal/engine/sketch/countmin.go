// Package sketch counts keys of an unbounded stream in fixed memory.
package sketch

import (
	"bytes"
	"cmp"
	"slices"

	"github.com/cespare/xxhash/v2"
)

const (
	defaultWidth     = 1 << 10
	defaultDepth     = 3
	defaultThreshold = 1
)

// HeavyRecord is a key and its estimated count.
type HeavyRecord struct {
	Key   []byte
	Count uint32
}

type bucket struct {
	key   []byte
	count uint32
}

// CountMin is a count-min sketch whose buckets remember the key that owns
// them. A colliding key decrements the owner's count and takes the bucket
// over once it reaches zero, so frequent keys keep their buckets.
type CountMin struct {
	w, d, threshold uint32
	table           [][]bucket
}

// NewCountMin creates a sketch of depth rows of width buckets. HeavyHitters
// reports keys counted at least threshold times. Zero selects a default.
func NewCountMin(width, depth, threshold uint32) *CountMin {
	if width == 0 {
		width = defaultWidth
	}
	if depth == 0 {
		depth = defaultDepth
	}
	if threshold == 0 {
		threshold = defaultThreshold
	}
	table := make([][]bucket, depth)
	for i := range table {
		table[i] = make([]bucket, width)
	}
	return &CountMin{w: width, d: depth, threshold: threshold, table: table}
}

// index derives the bucket of key in row from one 64-bit hash.
func (t *CountMin) index(h uint64, row uint32) uint32 {
	h1, h2 := uint32(h), uint32(h>>32)|1
	return (h1 + row*h2) % t.w
}

// Insert counts one occurrence of key.
func (t *CountMin) Insert(key []byte) {
	h := xxhash.Sum64(key)
	for i := uint32(0); i < t.d; i++ {
		b := &t.table[i][t.index(h, i)]
		switch {
		case b.count == 0:
			b.key = append(b.key[:0], key...)
			b.count = 1
		case bytes.Equal(b.key, key):
			b.count++
		default:
			b.count--
			if b.count == 0 {
				b.key = append(b.key[:0], key...)
				b.count = 1
			}
		}
	}
}

// Query returns the estimated count of key.
func (t *CountMin) Query(key []byte) uint32 {
	h := xxhash.Sum64(key)
	var n uint32
	for i := uint32(0); i < t.d; i++ {
		b := t.table[i][t.index(h, i)]
		if b.count > 0 && bytes.Equal(b.key, key) {
			n = max(n, b.count)
		}
	}
	return n
}

// HeavyHitters returns the keys counted at least threshold times, most
// frequent first.
func (t *CountMin) HeavyHitters() []HeavyRecord {
	hh := make(map[string]uint32)
	for _, row := range t.table {
		for _, b := range row {
			if b.count == 0 {
				continue
			}
			k := string(b.key)
			hh[k] = max(hh[k], b.count)
		}
	}

	records := make([]HeavyRecord, 0, len(hh))
	for k, v := range hh {
		if v < t.threshold {
			continue
		}
		records = append(records, HeavyRecord{Key: []byte(k), Count: v})
	}
	slices.SortFunc(records, func(a, b HeavyRecord) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return bytes.Compare(a.Key, b.Key)
	})
	return records
}

// Reset forgets every key.
func (t *CountMin) Reset() {
	for _, row := range t.table {
		for j := range row {
			row[j].count = 0
			row[j].key = row[j].key[:0]
		}
	}
}
