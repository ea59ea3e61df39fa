package models

import "time"

// NarrativeHistoryItem is one resolved (or pending) story beat as the
// client stores it. Only the most recent item may have an empty
// ChoiceText: it is the beat the player has not answered yet.
type NarrativeHistoryItem struct {
	Passage    string `json:"passage"`
	ChoiceText string `json:"choice_text,omitempty"`
	Summary    string `json:"summary,omitempty"`
}

// StoryStyle holds the style metadata restated in every prompt.
type StoryStyle struct {
	Genre       string `json:"genre,omitempty"`
	Tone        string `json:"tone,omitempty"`
	VisualStyle string `json:"visual_style,omitempty"`
}

// NarrativeContext is the ordered history plus style metadata handed to
// the prompt builder. History is append-only during a session; the
// client may evict the oldest items under storage pressure.
type NarrativeContext struct {
	History []NarrativeHistoryItem `json:"history"`
	Style   StoryStyle             `json:"style"`
}

// LatestSummary returns the most recent non-empty running summary.
func (c NarrativeContext) LatestSummary() string {
	for i := len(c.History) - 1; i >= 0; i-- {
		if c.History[i].Summary != "" {
			return c.History[i].Summary
		}
	}
	return ""
}

// EnrichmentHints is the style guidance handed to media enrichers.
type EnrichmentHints struct {
	VisualStyle string
	Voice       string
}

// SceneChoice is one selectable continuation offered to the player.
type SceneChoice struct {
	Text string   `json:"text"`
	Tags []string `json:"tags,omitempty"`
}

// ValidatedScene is the narration output after parsing and shape
// validation. Choices is empty only for a terminal beat; otherwise the
// validator guarantees 1..4 entries.
type ValidatedScene struct {
	Passage        string        `json:"passage"`
	Choices        []SceneChoice `json:"choices"`
	ImagePrompt    string        `json:"image_prompt,omitempty"`
	UpdatedSummary string        `json:"updated_summary"`
}

// IsEnding reports whether this beat terminates the story.
func (s *ValidatedScene) IsEnding() bool { return len(s.Choices) == 0 }

// MediaOutcome is the settled result of one enrichment branch. Exactly
// one of the two variants is populated: Success with Data, or a failure
// with Reason (and, for quota denials, RetryAfter).
type MediaOutcome struct {
	Success    bool       `json:"success"`
	Data       string     `json:"data,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	RetryAfter *time.Time `json:"retry_after,omitempty"`
}

// MediaSuccess builds a successful outcome.
func MediaSuccess(data string) MediaOutcome {
	return MediaOutcome{Success: true, Data: data}
}

// MediaFailure builds a failed outcome with a human-readable reason.
func MediaFailure(reason string) MediaOutcome {
	return MediaOutcome{Reason: reason}
}

// MediaFailureRetryAt builds a failed outcome carrying the quota reset time.
func MediaFailureRetryAt(reason string, resetAt time.Time) MediaOutcome {
	return MediaOutcome{Reason: reason, RetryAfter: &resetAt}
}

// FinalScene is the deliverable scene: validated text plus whatever
// media enrichment succeeded, and the exact prompt used (for audit and
// reproduction). It is owned exclusively by the request that produced
// it; nothing in it is shared across requests.
type FinalScene struct {
	Passage        string        `json:"passage"`
	Choices        []SceneChoice `json:"choices"`
	UpdatedSummary string        `json:"updated_summary"`
	ImagePrompt    string        `json:"image_prompt,omitempty"`
	ImageURL       string        `json:"image_url,omitempty"`
	AudioData      string        `json:"audio_data,omitempty"`
	ImageFailure   string        `json:"image_failure,omitempty"`
	AudioFailure   string        `json:"audio_failure,omitempty"`
	PromptUsed     string        `json:"prompt_used,omitempty"`
}

// HasImage reports whether the scene carries a renderable image.
func (s *FinalScene) HasImage() bool { return s.ImageURL != "" }

// HasAudio reports whether the scene carries playable audio.
func (s *FinalScene) HasAudio() bool { return s.AudioData != "" }
