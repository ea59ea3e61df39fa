package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tale-server/internal/models"
)

func TestBuild_EmptyHistoryUsesInitialScenario(t *testing.T) {
	b := NewBuilder(3000)

	out := b.Build(models.NarrativeContext{}, "A sealed tomb")

	assert.Contains(t, out, "A sealed tomb")
	assert.Contains(t, out, "Initial scenario:")
	assert.NotContains(t, out, "Recent steps:")
	assert.NotContains(t, out, "Story so far")
}

func TestBuild_EmptyHistoryWithoutScenario(t *testing.T) {
	b := NewBuilder(3000)

	out := b.Build(models.NarrativeContext{}, "")

	assert.Contains(t, out, "Begin a brand new story")
}

func TestBuild_Deterministic(t *testing.T) {
	b := NewBuilder(3000)
	nc := models.NarrativeContext{
		History: []models.NarrativeHistoryItem{
			{Passage: "You wake in a cold cell.", ChoiceText: "Look around", Summary: "The hero is imprisoned."},
			{Passage: "A rat watches you from the corner.", Summary: "The hero is imprisoned, a rat appears."},
		},
		Style: models.StoryStyle{Genre: "fantasy", Tone: "grim"},
	}

	first := b.Build(nc, "")
	second := b.Build(nc, "")

	assert.Equal(t, first, second)
}

func TestBuild_HistoryReplacesInitialScenario(t *testing.T) {
	b := NewBuilder(3000)
	nc := models.NarrativeContext{
		History: []models.NarrativeHistoryItem{
			{Passage: "The gate creaks open.", Summary: "Gate opened."},
		},
	}

	out := b.Build(nc, "ignored scenario")

	assert.Contains(t, out, "Recent steps:")
	assert.Contains(t, out, "The gate creaks open.")
	assert.NotContains(t, out, "ignored scenario")
}

func TestBuild_UsesLatestSummaryOnly(t *testing.T) {
	b := NewBuilder(3000)
	nc := models.NarrativeContext{
		History: []models.NarrativeHistoryItem{
			{Passage: "p1", Summary: "old summary"},
			{Passage: "p2", Summary: "latest summary"},
		},
	}

	out := b.Build(nc, "")

	require.Contains(t, out, "Story so far")
	assert.Contains(t, out, "latest summary")
	assert.NotContains(t, out, "old summary")
}

func TestBuild_RecentWindowLimitsVerbatimSteps(t *testing.T) {
	b := NewBuilder(3000)
	nc := models.NarrativeContext{
		History: []models.NarrativeHistoryItem{
			{Passage: "ancient passage one", Summary: "s"},
			{Passage: "ancient passage two", Summary: "s"},
			{Passage: "recent passage three", Summary: "s"},
			{Passage: "recent passage four", Summary: "s"},
			{Passage: "recent passage five", Summary: "s"},
		},
	}

	out := b.Build(nc, "")

	assert.NotContains(t, out, "ancient passage one")
	assert.NotContains(t, out, "ancient passage two")
	assert.Contains(t, out, "recent passage three")
	assert.Contains(t, out, "recent passage four")
	assert.Contains(t, out, "recent passage five")
}

func TestBuild_TightBudgetFoldsOldestSteps(t *testing.T) {
	// Бюджет в несколько токенов: дословно остается только последний шаг.
	b := NewBuilder(5)
	long := strings.Repeat("a long passage about the journey ", 20)
	nc := models.NarrativeContext{
		History: []models.NarrativeHistoryItem{
			{Passage: long + "ONE", Summary: "s"},
			{Passage: long + "TWO", Summary: "s"},
			{Passage: long + "FINAL", Summary: "s"},
		},
	}

	out := b.Build(nc, "")

	assert.NotContains(t, out, "ONE")
	assert.NotContains(t, out, "TWO")
	assert.Contains(t, out, "FINAL")
}

func TestBuild_StyleDefaults(t *testing.T) {
	b := NewBuilder(3000)

	out := b.Build(models.NarrativeContext{Style: models.StoryStyle{Genre: "noir"}}, "seed")

	assert.Contains(t, out, "Genre: noir")
	assert.Contains(t, out, "Tone: narrator's choice")
	assert.Contains(t, out, "Visual style: narrator's choice")
}

func TestBuild_AlwaysCarriesOutputContract(t *testing.T) {
	b := NewBuilder(3000)

	out := b.Build(models.NarrativeContext{}, "seed")

	assert.Contains(t, out, `"passage"`)
	assert.Contains(t, out, `"choices"`)
	assert.Contains(t, out, `"image_prompt"`)
	assert.Contains(t, out, `"updated_summary"`)
}
