// Package ingest turns uploaded text files into long-term memory chunks.
package ingest

import (
	"strings"
	"unicode/utf8"

	"github.com/awaybot/awaybot/internal/tokens"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 100

	// A chunk is cut back to its last sentence end only when that end lies
	// past this fraction of the chunk.
	sentenceCutRatio = 0.7

	// runesPerToken matches tokens.EstimateCounter.
	runesPerToken = 4
)

// Tokenizer encodes text to token ids and back.
type Tokenizer interface {
	Encode(text string) []int
	Decode(ids []int) string
}

// runeTokenizer treats every rune as one token. It is used when no BPE is
// available.
type runeTokenizer struct{}

func (runeTokenizer) Encode(text string) []int {
	runes := []rune(text)
	ids := make([]int, len(runes))
	for i, r := range runes {
		ids[i] = int(r)
	}
	return ids
}

func (runeTokenizer) Decode(ids []int) string {
	runes := make([]rune, len(ids))
	for i, id := range ids {
		runes[i] = rune(id)
	}
	return string(runes)
}

// Chunker splits text into token windows of Size tokens, each overlapping
// the previous one by Overlap tokens.
type Chunker struct {
	Size    int
	Overlap int
	tok     Tokenizer
}

// NewChunker builds a chunker on counter's tokenizer. Counters that cannot
// encode (the estimate counter) fall back to rune windows scaled to the
// same estimated token size. A zero size and overlap select the defaults.
func NewChunker(counter tokens.Counter, size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
		if overlap == 0 {
			overlap = DefaultOverlap
		}
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 10
	}
	if tok, ok := counter.(Tokenizer); ok {
		return &Chunker{Size: size, Overlap: overlap, tok: tok}
	}
	return &Chunker{Size: size * runesPerToken, Overlap: overlap * runesPerToken, tok: runeTokenizer{}}
}

// Chunk splits text. Windows that end before the text does are cut back to
// the last ". " when it lies past 70% of the window. Blank text yields no
// chunks.
func (c *Chunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	ids := c.tok.Encode(text)
	var chunks []string
	start := 0
	for start < len(ids) {
		end := min(start+c.Size, len(ids))
		if end < len(ids) {
			window := c.tok.Decode(ids[start:end])
			if cut := strings.LastIndex(window, ". "); cut > 0 && float64(cut) > float64(len(window))*sentenceCutRatio {
				if n := len(c.tok.Encode(window[:cut+1])); n > 0 && n < end-start {
					end = start + n
				}
			}
			end = c.alignEnd(ids, start, end)
		}

		chunk := strings.TrimSpace(strings.ToValidUTF8(c.tok.Decode(ids[start:end]), ""))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(ids) {
			break
		}

		next := end - c.Overlap
		if next <= start {
			next = end
		}
		start = c.alignStart(ids, next, end)
	}
	return chunks
}

// Byte-level BPEs split multi-byte characters across tokens. alignEnd moves
// end to the nearest token that closes a character, preferring a shorter
// window.
func (c *Chunker) alignEnd(ids []int, start, end int) int {
	if utf8.ValidString(c.tok.Decode(ids[start:end])) {
		return end
	}
	for e := end - 1; e > start && e >= end-utf8.UTFMax; e-- {
		if utf8.ValidString(c.tok.Decode(ids[start:e])) {
			return e
		}
	}
	for e := end + 1; e <= len(ids) && e <= end+utf8.UTFMax; e++ {
		if utf8.ValidString(c.tok.Decode(ids[start:e])) {
			return e
		}
	}
	return end
}

// alignStart moves an overlap start forward past continuation bytes.
func (c *Chunker) alignStart(ids []int, start, end int) int {
	for s := start; s < end && s <= start+utf8.UTFMax; s++ {
		if utf8.ValidString(c.tok.Decode(ids[s:end])) {
			return s
		}
	}
	return start
}
