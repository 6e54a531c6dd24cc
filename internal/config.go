package internal

import (
	"fmt"
	"time"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL,default=INFO"`
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=8080"`
	GRPCPort int    `env:"GRPC_PORT,default=9090"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	// Empty keeps the search index in memory.
	BlugeFilepath string `env:"BLUGE_FILEPATH"`

	AuthSecret        string        `env:"AUTH_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`

	BufferSize           int           `env:"BUFFER_SIZE,default=1024"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=10s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`
	PingInterval         time.Duration `env:"PING_INTERVAL,default=25s"`
	PongWait             time.Duration `env:"PONG_WAIT,default=60s"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	MaxContentLength int    `env:"MAX_CONTENT_LENGTH,default=2000"`
	EnableModeration bool   `env:"ENABLE_MODERATION,default=true"`
	CharReplacement  string `env:"CHARACTER_REPLACEMENT,default=*"`

	DebugPort int `env:"DEBUG_PORT,default=8081"`
}

// Validate checks the values env tags cannot express.
func (c Config) Validate() error {
	if c.MaxContentLength <= 0 {
		return fmt.Errorf("MAX_CONTENT_LENGTH must be positive, got %d", c.MaxContentLength)
	}
	if c.BufferSize <= 0 || c.ConnectionBufferSize <= 0 {
		return fmt.Errorf("BUFFER_SIZE and CONNECTION_BUFFER_SIZE must be positive")
	}
	if c.PongWait <= c.PingInterval {
		return fmt.Errorf("PONG_WAIT (%s) must exceed PING_INTERVAL (%s)", c.PongWait, c.PingInterval)
	}
	if _, err := CharacterRune(c.CharReplacement); err != nil {
		return err
	}
	return nil
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
