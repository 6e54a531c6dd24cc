package main

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	URL      string `envconfig:"CHAT_URL" default:"http://localhost:8080"`
	Email    string `envconfig:"CHAT_EMAIL" required:"true"`
	Password string `envconfig:"CHAT_PASSWORD" required:"true"`
	// CHAT_WITH opens the chat with this account id on start
	With       string        `envconfig:"CHAT_WITH"`
	AckTimeout time.Duration `envconfig:"CHAT_ACK_TIMEOUT" default:"5s"`
	// CHAT_COLOURS enables colorized timeline output
	Colours  bool   `envconfig:"CHAT_COLOURS" default:"true"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"WARN"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
