package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"tale-server/internal/models"
	"tale-server/internal/playback"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	if cfg.Token == "" {
		logger.Fatal().Msg("TALE_TOKEN is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storage := playback.NewFileStorage(cfg.HistoryPath, cfg.HistoryMaxBytes)
	history := playback.NewHistory(storage, logger)
	if err := history.Load(); err != nil {
		logger.Warn().Err(err).Msg("Starting with empty history")
	}

	driver := newTermDriver(logger)
	machine := playback.NewMachine(driver, playback.NewRealClock(), logger)
	driver.onAudioEnded = machine.AudioEnded
	driver.onFadeDone = machine.ImageFadeDone
	driver.onImageLoad = machine.ImageLoaded

	api := newAPIClient(cfg.ServerURL, cfg.Token, logger)
	go listenUpdates(ctx, cfg.WebSocketURL, cfg.Token, logger)

	p := &player{
		cfg:     cfg,
		api:     api,
		machine: machine,
		history: history,
		logger:  logger,
	}
	p.run(ctx)
}

// player owns the stdin command loop.
type player struct {
	cfg     *Config
	api     *apiClient
	machine *playback.Machine
	history *playback.History
	logger  zerolog.Logger

	lastRequest *models.GenerateSceneRequest
}

func (p *player) run(ctx context.Context) {
	fmt.Println("Describe your opening scenario (or 'quit'):")
	fmt.Print("> ")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "quit":
			return
		case line == "restart":
			p.restart()
		case line == "retry":
			p.retry(ctx)
		default:
			p.handleInput(ctx, line)
		}
		if p.machine.Phase() == playback.PhaseSelectingScenario {
			fmt.Println("Describe your opening scenario (or 'quit'):")
		}
		fmt.Print("> ")
	}
}

// handleInput routes a line: a number picks a visible choice, anything
// else starts a new scenario when none is running.
func (p *player) handleInput(ctx context.Context, line string) {
	if n, err := strconv.Atoi(line); err == nil {
		p.choose(ctx, n-1)
		return
	}

	if p.machine.Phase() != playback.PhaseSelectingScenario {
		fmt.Println("A story is already running. Pick a choice number, or 'restart'.")
		return
	}
	p.startScenario(ctx, line)
}

func (p *player) startScenario(ctx context.Context, scenario string) {
	p.machine.SelectScenario()
	if err := p.history.Clear(); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to clear history")
	}

	req := &models.GenerateSceneRequest{
		StoryContext: models.NarrativeContext{
			Style: models.StoryStyle{
				Genre:       p.cfg.Genre,
				Tone:        p.cfg.Tone,
				VisualStyle: p.cfg.VisualStyle,
			},
		},
		InitialScenarioText: scenario,
		Voice:               p.cfg.Voice,
	}
	p.requestScene(ctx, req)
}

func (p *player) choose(ctx context.Context, index int) {
	choice, err := p.machine.ChooseOption(index)
	if err != nil {
		fmt.Printf("Cannot pick that: %v\n", err)
		return
	}
	if err := p.history.SetChoiceOnLast(choice.Text); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to record choice")
	}

	req := &models.GenerateSceneRequest{
		StoryContext: models.NarrativeContext{
			History: p.history.Items(),
			Style: models.StoryStyle{
				Genre:       p.cfg.Genre,
				Tone:        p.cfg.Tone,
				VisualStyle: p.cfg.VisualStyle,
			},
		},
		Voice: p.cfg.Voice,
	}
	p.requestScene(ctx, req)
}

func (p *player) retry(ctx context.Context) {
	if p.machine.Phase() != playback.PhaseError || p.lastRequest == nil {
		fmt.Println("Nothing to retry.")
		return
	}
	p.machine.ClearError()
	p.requestScene(ctx, p.lastRequest)
}

func (p *player) restart() {
	p.machine.Restart()
	p.lastRequest = nil
	if err := p.history.Clear(); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to clear history")
	}
}

// requestScene runs one generation round trip and feeds the outcome to
// the machine.
func (p *player) requestScene(ctx context.Context, req *models.GenerateSceneRequest) {
	p.lastRequest = req
	fmt.Println("  [the narrator is thinking...]")

	envelope, err := p.api.GenerateScene(ctx, req)
	if err != nil {
		p.machine.SceneFailed(err)
		fmt.Printf("Request failed: %v. Type 'retry' or 'restart'.\n", err)
		return
	}

	switch {
	case envelope.RateLimitError != nil:
		rl := envelope.RateLimitError
		p.machine.SceneFailed(fmt.Errorf("rate limited: %s", rl.Message))
		fmt.Printf("%s\n", rl.Message)

	case envelope.Error != "":
		p.machine.SceneFailed(fmt.Errorf("%s", envelope.Error))
		fmt.Printf("The narrator stumbled: %s. Type 'retry' or 'restart'.\n", envelope.Error)

	case envelope.Scene != nil:
		scene := envelope.Scene
		fmt.Printf("\n%s\n", scene.Passage)
		p.machine.SceneArrived(scene)
		if err := p.history.Append(models.NarrativeHistoryItem{
			Passage: scene.Passage,
			Summary: scene.UpdatedSummary,
		}); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to persist history")
		}

	default:
		p.machine.SceneFailed(fmt.Errorf("empty response envelope"))
		fmt.Println("Empty response from the server. Type 'retry'.")
	}
}
