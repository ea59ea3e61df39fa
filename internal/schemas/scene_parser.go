package schemas

import (
	"encoding/json"
	"fmt"
	"strings"

	"tale-server/internal/models"
)

// maxChoices bounds how many choices a non-terminal beat may offer.
const maxChoices = 4

// rawScene mirrors the narrator's output contract. Choices is a pointer
// so a missing field can be told apart from an empty (terminal) array.
type rawScene struct {
	Passage        string                `json:"passage"`
	Choices        *[]models.SceneChoice `json:"choices"`
	ImagePrompt    string                `json:"image_prompt"`
	UpdatedSummary string                `json:"updated_summary"`
}

// ParseSceneResponse turns raw narrator output into a ValidatedScene.
// Code fences are stripped first; a body that is not valid JSON yields a
// parse-kind MalformedResponseError, a JSON body of the wrong shape a
// schema-kind one. Neither is retried here - the caller may resubmit the
// identical request.
func ParseSceneResponse(raw string) (*models.ValidatedScene, error) {
	body := stripCodeFences(raw)
	if strings.TrimSpace(body) == "" {
		return nil, &models.MalformedResponseError{Kind: models.MalformedKindParse, Detail: "empty response body"}
	}

	var parsed rawScene
	// Намеренно нестрогий Unmarshal: лишние поля от модели не считаются
	// ошибкой, важен только требуемый набор.
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return nil, &models.MalformedResponseError{Kind: models.MalformedKindParse, Detail: err.Error()}
	}

	if strings.TrimSpace(parsed.Passage) == "" {
		return nil, &models.MalformedResponseError{Kind: models.MalformedKindSchema, Detail: "missing required field 'passage'"}
	}
	if parsed.Choices == nil {
		return nil, &models.MalformedResponseError{Kind: models.MalformedKindSchema, Detail: "missing required field 'choices'"}
	}
	if strings.TrimSpace(parsed.UpdatedSummary) == "" {
		return nil, &models.MalformedResponseError{Kind: models.MalformedKindSchema, Detail: "missing required field 'updated_summary'"}
	}

	choices := *parsed.Choices
	if len(choices) > maxChoices {
		return nil, &models.MalformedResponseError{
			Kind:   models.MalformedKindSchema,
			Detail: fmt.Sprintf("too many choices: %d (max %d)", len(choices), maxChoices),
		}
	}
	for i, choice := range choices {
		if strings.TrimSpace(choice.Text) == "" {
			return nil, &models.MalformedResponseError{
				Kind:   models.MalformedKindSchema,
				Detail: fmt.Sprintf("choice %d has empty text", i),
			}
		}
	}

	return &models.ValidatedScene{
		Passage:        parsed.Passage,
		Choices:        choices,
		ImagePrompt:    parsed.ImagePrompt,
		UpdatedSummary: parsed.UpdatedSummary,
	}, nil
}

// stripCodeFences removes a leading ```/```json fence line and the
// matching trailing fence, if present. Anything else passes through.
func stripCodeFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return trimmed
	}
	// Первая строка - открывающий fence, возможно с тегом языка.
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
