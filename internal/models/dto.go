package models

// --- API DTOs ---
// Wire shapes exchanged with clients. Field names mirror the client
// contract; exactly one of the three result members of
// GenerateSceneResponse is populated per response.

// GenerateSceneRequest is the caller's request for the next story beat.
type GenerateSceneRequest struct {
	StoryContext        NarrativeContext `json:"story_context"`
	InitialScenarioText string           `json:"initial_scenario_text,omitempty"`
	Genre               string           `json:"genre,omitempty"`
	Tone                string           `json:"tone,omitempty"`
	VisualStyle         string           `json:"visual_style,omitempty"`
	Voice               string           `json:"voice,omitempty"`
}

// RateLimitErrorDTO is the structured quota denial shape.
type RateLimitErrorDTO struct {
	Message      string `json:"message"`
	ResetAt      int64  `json:"reset_at"` // epoch milliseconds
	RequestClass string `json:"request_class"`
}

// GenerateSceneResponse is the one-of-three result envelope.
type GenerateSceneResponse struct {
	Scene          *FinalScene        `json:"scene,omitempty"`
	PromptUsed     string             `json:"prompt_used,omitempty"`
	Error          string             `json:"error,omitempty"`
	RateLimitError *RateLimitErrorDTO `json:"rate_limit_error,omitempty"`
}

// QuotaCheckDTO is the standalone quota probe shape.
type QuotaCheckDTO struct {
	Success      bool   `json:"success"`
	Limit        int    `json:"limit"`
	Remaining    int    `json:"remaining"`
	ResetAt      int64  `json:"reset_at"` // epoch milliseconds
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}
