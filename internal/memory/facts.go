package memory

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/awaybot/awaybot/internal/metrics"
)

// FactRule inspects a message and proposes zero or more facts. Rules are
// pure and independent of each other.
type FactRule struct {
	Name  string
	Apply func(text string) ([]Candidate, error)
}

const (
	confidenceName       = 0.9
	confidenceLanguage   = 0.8
	confidencePreference = 0.7
	confidenceGoal       = 0.6
	confidenceTopic      = 0.5
)

var (
	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:my name is|i'm|i am|call me)\s+([a-z]+(?:\s+[a-z]+)*)`),
		regexp.MustCompile(`(?i)\b(?:this is|hi,? i'm|hello,? i'm)\s+([a-z]+(?:\s+[a-z]+)*)`),
	}
	languagePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:speak|talk|chat|reply)\s+(?:in|using)\s+([a-z]+)`),
		regexp.MustCompile(`(?i)\b(?:my language is|i prefer)\s+([a-z]+)`),
	}
	preferencePattern = regexp.MustCompile(`(?i)\b(?:i like|i prefer|i enjoy)\s+([^.]+)`)
	dislikePattern    = regexp.MustCompile(`(?i)\b(?:i don't like|i do not like|i hate|i dislike)\s+([^.]+)`)
	favoritePattern   = regexp.MustCompile(`(?i)\b(?:my favorite|my favourite|my fav)\s+([^.]+)`)
	goalPatterns      = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:i want to|i need to|my goal is to|i'm trying to)\s+([^.]+)`),
		regexp.MustCompile(`(?i)\b(?:help me|assist me with)\s+([^.]+)`),
	}
)

var allowedLanguages = map[string]bool{
	"english": true,
	"bengali": true,
	"bangla":  true,
	"spanish": true,
	"french":  true,
	"german":  true,
}

var topicVocabulary = []string{
	"programming", "python", "javascript", "ai", "machine learning",
	"data science", "web development", "mobile development", "design",
	"photography", "music", "travel", "cooking", "fitness", "health",
	"finance", "investing", "education",
}

// DefaultRules returns the built-in extraction rules in evaluation order.
// When two rules propose the same key, the later one wins in the store.
func DefaultRules() []FactRule {
	return []FactRule{
		{Name: "name", Apply: extractName},
		{Name: "language", Apply: extractLanguage},
		{Name: "preference", Apply: captureRule("preference", confidencePreference, preferencePattern)},
		{Name: "dislike", Apply: captureRule("dislike", confidencePreference, dislikePattern)},
		{Name: "favorite", Apply: captureRule("favorite", confidencePreference, favoritePattern)},
		{Name: "goal", Apply: captureRule("goal", confidenceGoal, goalPatterns...)},
		{Name: "topic", Apply: extractTopics},
	}
}

func extractName(text string) ([]Candidate, error) {
	var out []Candidate
	for _, p := range namePatterns {
		for _, m := range p.FindAllStringSubmatch(text, -1) {
			if v := cleanValue(m[1]); v != "" {
				out = append(out, Candidate{Key: "name", Value: v, Confidence: confidenceName})
			}
		}
	}
	return out, nil
}

func extractLanguage(text string) ([]Candidate, error) {
	var out []Candidate
	for _, p := range languagePatterns {
		for _, m := range p.FindAllStringSubmatch(text, -1) {
			lang := strings.ToLower(cleanValue(m[1]))
			if allowedLanguages[lang] {
				out = append(out, Candidate{Key: "language", Value: lang, Confidence: confidenceLanguage})
			}
		}
	}
	return out, nil
}

func captureRule(key string, confidence float64, patterns ...*regexp.Regexp) func(string) ([]Candidate, error) {
	return func(text string) ([]Candidate, error) {
		var out []Candidate
		for _, p := range patterns {
			for _, m := range p.FindAllStringSubmatch(text, -1) {
				if v := cleanValue(m[1]); v != "" {
					out = append(out, Candidate{Key: key, Value: v, Confidence: confidence})
				}
			}
		}
		return out, nil
	}
}

// extractTopics reports every vocabulary entry that occurs anywhere in the
// lowercased text, so "pythonic" counts as python.
func extractTopics(text string) ([]Candidate, error) {
	lower := strings.ToLower(text)
	var out []Candidate
	for _, topic := range topicVocabulary {
		if strings.Contains(lower, topic) {
			out = append(out, Candidate{Key: "topic", Value: topic, Confidence: confidenceTopic})
		}
	}
	return out, nil
}

// cleanValue trims whitespace and trailing punctuation from a capture.
func cleanValue(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "!?,;:")
}

// FactExtractor runs extraction rules over user messages and persists every
// proposed fact.
type FactExtractor struct {
	store FactStore
	rules []FactRule
	now   func() time.Time
}

// NewFactExtractor creates an extractor with the given rules, or
// DefaultRules when none are passed.
func NewFactExtractor(store FactStore, rules ...FactRule) *FactExtractor {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &FactExtractor{store: store, rules: rules, now: time.Now}
}

// ExtractCandidates runs every rule over text. A rule that fails or panics
// is logged and skipped; the other rules still run.
func (e *FactExtractor) ExtractCandidates(text string) []Candidate {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var out []Candidate
	for _, rule := range e.rules {
		found, err := applyRule(rule, text)
		if err != nil {
			slog.Warn("memory: fact rule failed", "rule", rule.Name, "error", err)
			continue
		}
		out = append(out, found...)
	}
	return out
}

// Extract derives facts from text and upserts them for userID in rule
// order. It returns the facts that were stored.
func (e *FactExtractor) Extract(ctx context.Context, userID, text string) ([]Fact, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	candidates := e.ExtractCandidates(text)
	stored := make([]Fact, 0, len(candidates))
	for _, c := range candidates {
		f := Fact{
			UserID:     userID,
			Key:        c.Key,
			Value:      c.Value,
			Confidence: c.Confidence,
			UpdatedAt:  e.now().UTC(),
		}
		if err := e.store.Upsert(ctx, f); err != nil {
			return stored, fmt.Errorf("storing fact %q: %w", c.Key, err)
		}
		metrics.FactsExtractedTotal.WithLabelValues(c.Key).Inc()
		stored = append(stored, f)
	}
	return stored, nil
}

func applyRule(rule FactRule, text string) (found []Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return rule.Apply(text)
}
