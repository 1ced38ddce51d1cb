package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashEmbedder is a deterministic, offline embedder. Each lowercase word is
// hashed into a pseudo-random direction and the directions are summed, so
// texts sharing words end up close together. It needs no model and no
// network, which makes it the default for local runs and tests.
type HashEmbedder struct {
	dimensions int
}

func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(text)
	}
	return out, nil
}

func (h *HashEmbedder) Dimensions() int { return h.dimensions }

func (h *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, h.dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(words) == 0 {
		// Punctuation-only or empty text still needs a non-zero vector.
		words = []string{text}
	}
	for _, w := range words {
		h.accumulate(vec, w)
	}
	return Normalize(vec)
}

func (h *HashEmbedder) accumulate(vec []float32, word string) {
	f := fnv.New64a()
	f.Write([]byte(word))
	seed := f.Sum64()
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] += float32(int64(seed)) / float32(math.MaxInt64)
	}
}
