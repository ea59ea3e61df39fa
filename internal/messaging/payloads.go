package messaging

// Event types delivered to clients over the update queue.
const (
	EventTypeSceneGenerated = "scene_generated"
)

// ClientUpdatePayload is the broker message fanned out to connected
// clients. Audio is deliberately excluded: the scene body already
// reached the requesting client in the HTTP response, the event only
// tells other sessions that a new beat exists.
type ClientUpdatePayload struct {
	UserID    string `json:"user_id"`
	EventType string `json:"event_type"`
	Passage   string `json:"passage,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	HasAudio  bool   `json:"has_audio"`
	Choices   int    `json:"choices"`
}
