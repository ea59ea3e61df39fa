package playback

// Phase is the top-level narrative phase of the player.
type Phase int

const (
	// PhaseSelectingScenario is the initial phase: no story is running.
	PhaseSelectingScenario Phase = iota
	// PhaseLoadingFirstScene covers the window between scenario selection
	// and the arrival of the first scene.
	PhaseLoadingFirstScene
	// PhasePlaying is the steady state once a scene has arrived.
	PhasePlaying
	// PhaseError is entered on any pipeline-level failure and left by an
	// explicit retry or restart.
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseSelectingScenario:
		return "selecting_scenario"
	case PhaseLoadingFirstScene:
		return "loading_first_scene"
	case PhasePlaying:
		return "playing"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}
