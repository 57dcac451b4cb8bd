// Package embed turns text into fixed-width vectors for knowledge retrieval.
package embed

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

type Embedder interface {
	Embed(text string) []float32
	Dims() int
}

// Hashing is a feature-hashing bag of words: each token lands in one of Dims
// buckets with a hash-derived sign, and the vector is L2-normalized.
type Hashing struct {
	dims int
}

func NewHashing(dims int) *Hashing {
	if dims <= 0 {
		dims = 256
	}
	return &Hashing{dims: dims}
}

func (h *Hashing) Dims() int { return h.dims }

func (h *Hashing) Embed(text string) []float32 {
	v := make([]float32, h.dims)
	for _, tok := range Tokens(text) {
		f := fnv.New64a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dims))
		if sum&(1<<63) != 0 {
			v[idx]--
		} else {
			v[idx]++
		}
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= inv
	}
	return v
}

// IsZero reports whether the vector carries no signal (empty text).
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Tokens lowercases and splits on anything that is not a letter or digit,
// dropping tokens shorter than three runes.
func Tokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 3 {
			out = append(out, f)
		}
	}
	return out
}
