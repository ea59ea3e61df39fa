package prompt

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"tale-server/internal/models"
)

// recentWindow is how many history items are quoted verbatim; everything
// older lives only in the running summary.
const recentWindow = 3

// outputContract tells the narrator exactly which fields the response
// must carry. The model is instructed, not forced: the validator still
// treats the output as untrusted.
const outputContract = `Respond with a single JSON object and nothing else (no code fences, no commentary):
{
  "passage": "the next story passage, written in second person",
  "choices": [{"text": "a choice the player can make", "tags": ["optional style tags"]}],
  "image_prompt": "a short visual description of this scene",
  "updated_summary": "the full story summary including this passage"
}
Offer between 1 and 4 meaningful, genuinely different choices. Use an empty choices array only when the story has reached its ending.`

// Builder turns a narrative context into a single deterministic
// generation prompt, bounded by a token budget.
type Builder struct {
	tokenBudget int
	encoder     *tiktoken.Tiktoken
}

// NewBuilder creates a prompt builder. The token budget bounds the
// verbatim recent-steps window; the summary and style sections are never
// trimmed.
func NewBuilder(tokenBudget int) *Builder {
	// cl100k_base покрывает современные chat-модели; при недоступности
	// словаря падаем на грубую оценку по длине.
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		enc = nil
	}
	return &Builder{tokenBudget: tokenBudget, encoder: enc}
}

// Build assembles the generation prompt. Given identical input it always
// produces identical output. When history is empty, initialScenario
// seeds the story in place of recent steps.
func (b *Builder) Build(nc models.NarrativeContext, initialScenario string) string {
	var sb strings.Builder

	sb.WriteString("You are the narrator of an interactive fiction story. ")
	sb.WriteString("Continue the story from where it stands, keep full continuity with everything that happened, ")
	sb.WriteString("let player choices matter, and move the story toward an eventual resolution.\n\n")

	sb.WriteString("Style:\n")
	writeStyleLine(&sb, "Genre", nc.Style.Genre)
	writeStyleLine(&sb, "Tone", nc.Style.Tone)
	writeStyleLine(&sb, "Visual style", nc.Style.VisualStyle)
	sb.WriteString("\n")

	if summary := nc.LatestSummary(); summary != "" {
		sb.WriteString("Story so far (compressed memory):\n")
		sb.WriteString(summary)
		sb.WriteString("\n\n")
	}

	if len(nc.History) == 0 {
		sb.WriteString("Initial scenario:\n")
		if initialScenario != "" {
			sb.WriteString(initialScenario)
		} else {
			sb.WriteString("Begin a brand new story of your own invention.")
		}
		sb.WriteString("\n\n")
	} else {
		sb.WriteString("Recent steps:\n")
		sb.WriteString(b.formatRecentSteps(nc.History))
		sb.WriteString("\n")
	}

	sb.WriteString(outputContract)
	return sb.String()
}

// formatRecentSteps quotes up to the last recentWindow items verbatim.
// When the verbatim block would blow the token budget, the oldest quoted
// items fold away first (they are still covered by the summary).
func (b *Builder) formatRecentSteps(history []models.NarrativeHistoryItem) string {
	start := len(history) - recentWindow
	if start < 0 {
		start = 0
	}
	recent := history[start:]

	block := formatSteps(recent)
	for len(recent) > 1 && b.countTokens(block) > b.tokenBudget {
		recent = recent[1:]
		block = formatSteps(recent)
	}
	return block
}

func formatSteps(items []models.NarrativeHistoryItem) string {
	var sb strings.Builder
	for i, item := range items {
		sb.WriteString(fmt.Sprintf("Step %d:\n", i+1))
		sb.WriteString(item.Passage)
		sb.WriteString("\n")
		if item.ChoiceText != "" {
			sb.WriteString(fmt.Sprintf("The player chose: %s\n", item.ChoiceText))
		}
	}
	return sb.String()
}

func (b *Builder) countTokens(text string) int {
	if b.encoder == nil {
		// Примерно 4 байта на токен для английского текста.
		return len(text) / 4
	}
	return len(b.encoder.Encode(text, nil, nil))
}

func writeStyleLine(sb *strings.Builder, name, value string) {
	if value == "" {
		value = "narrator's choice"
	}
	sb.WriteString(fmt.Sprintf("  %s: %s\n", name, value))
}
