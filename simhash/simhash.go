// Package simhash finds near-duplicate text with 64-bit SimHash fingerprints.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"
)

// Fingerprint computes a 64-bit SimHash of text. Features are lower-cased
// word bigrams, or the single word of a one-word text, hashed with FNV-64a.
func Fingerprint(text string) uint64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return 0
	}

	features := shingles(words, 2)
	if len(features) == 0 {
		features = words
	}

	var vector [64]int
	for _, f := range features {
		h := fnv.New64a()
		h.Write([]byte(f))
		hash := h.Sum64()

		for i := 0; i < 64; i++ {
			if hash&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fp uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// shingles joins every run of n consecutive tokens.
func shingles(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}
	out := make([]string, 0, len(tokens)-n+1)
	for i := 0; i <= len(tokens)-n; i++ {
		out = append(out, strings.Join(tokens[i:i+n], " "))
	}
	return out
}

// Index remembers fingerprints and rejects near-duplicates of them.
// It is not safe for concurrent use.
type Index struct {
	threshold int
	seen      []uint64
}

// NewIndex returns an Index treating fingerprints within threshold bits of
// each other as duplicates.
func NewIndex(threshold int) *Index {
	return &Index{threshold: threshold}
}

// Add records fp and returns true, or returns false without recording it
// when a near-duplicate is already present.
func (ix *Index) Add(fp uint64) bool {
	for _, s := range ix.seen {
		if Distance(s, fp) <= ix.threshold {
			return false
		}
	}
	ix.seen = append(ix.seen, fp)
	return true
}

// Insert records fp unconditionally and returns its position.
func (ix *Index) Insert(fp uint64) int {
	ix.seen = append(ix.seen, fp)
	return len(ix.seen) - 1
}

// Near returns the positions of recorded fingerprints within the threshold
// of fp, in insertion order.
func (ix *Index) Near(fp uint64) []int {
	var out []int
	for i, s := range ix.seen {
		if Distance(s, fp) <= ix.threshold {
			out = append(out, i)
		}
	}
	return out
}

// Len returns the number of recorded fingerprints.
func (ix *Index) Len() int { return len(ix.seen) }
