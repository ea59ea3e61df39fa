package main

import "github.com/ilyakaznacheev/cleanenv"

// Config is the terminal player configuration, read from the
// environment.
type Config struct {
	ServerURL       string `env:"TALE_SERVER_URL" env-default:"http://localhost:8080"`
	WebSocketURL    string `env:"TALE_WS_URL" env-default:"ws://localhost:8080/ws"`
	Token           string `env:"TALE_TOKEN"`
	Voice           string `env:"TALE_VOICE" env-default:"onyx"`
	Genre           string `env:"TALE_GENRE"`
	Tone            string `env:"TALE_TONE"`
	VisualStyle     string `env:"TALE_VISUAL_STYLE"`
	HistoryPath     string `env:"TALE_HISTORY_PATH" env-default:"tale_history.json"`
	HistoryMaxBytes int    `env:"TALE_HISTORY_MAX_BYTES" env-default:"262144"`
	LogLevel        string `env:"TALE_LOG_LEVEL" env-default:"info"`
}

func loadConfig() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
