package memory

import (
	"slices"

	"github.com/awaybot/awaybot/internal/config"
)

// ReplyModeKey is the fact key that selects the system prompt.
const ReplyModeKey = "reply_mode"

// ReplyModes lists the accepted reply modes.
var ReplyModes = []string{"concise", "friendly", "expert", "bengali-first"}

// ValidMode reports whether mode is one of ReplyModes.
func ValidMode(mode string) bool {
	return slices.Contains(ReplyModes, mode)
}

// Prompts holds the system instruction for each reply mode.
type Prompts struct {
	Default      string
	Concise      string
	Friendly     string
	Expert       string
	BengaliFirst string
}

// PromptsFrom converts the loaded prompt settings.
func PromptsFrom(c config.PromptsConfig) Prompts {
	return Prompts{
		Default:      c.Default,
		Concise:      c.Concise,
		Friendly:     c.Friendly,
		Expert:       c.Expert,
		BengaliFirst: c.BengaliFirst,
	}
}

// For returns the prompt for mode, falling back to Default for unknown or
// unset modes.
func (p Prompts) For(mode string) string {
	var prompt string
	switch mode {
	case "concise":
		prompt = p.Concise
	case "friendly":
		prompt = p.Friendly
	case "expert":
		prompt = p.Expert
	case "bengali-first":
		prompt = p.BengaliFirst
	}
	if prompt == "" {
		return p.Default
	}
	return prompt
}
