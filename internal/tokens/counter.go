// Package tokens counts text tokens for prompt budget accounting.
package tokens

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE used by current OpenAI chat models.
const DefaultEncoding = "cl100k_base"

// Counter returns the number of tokens in a text. Implementations must be
// deterministic within a process so that budget comparisons are stable.
type Counter interface {
	Count(text string) int
}

// TiktokenCounter counts tokens with a tiktoken BPE.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the named encoding. Loading may download the BPE file
// on first use.
func NewTiktoken(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// Encode returns the token ids of text.
func (c *TiktokenCounter) Encode(text string) []int {
	return c.enc.Encode(text, nil, nil)
}

// Decode turns token ids back into text.
func (c *TiktokenCounter) Decode(ids []int) string {
	return c.enc.Decode(ids)
}

// EstimateCounter approximates tokens as one per four characters.
type EstimateCounter struct{}

func (EstimateCounter) Count(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	n := utf8.RuneCountInString(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// New returns a tiktoken counter for encoding, or the estimate counter when
// the encoding cannot be loaded.
func New(encoding string) Counter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	c, err := NewTiktoken(encoding)
	if err != nil {
		slog.Warn("tokens: falling back to estimated counts", "encoding", encoding, "error", err)
		return EstimateCounter{}
	}
	return c
}
