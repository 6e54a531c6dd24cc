// Package e2e runs scenarios against a deployed chat server.
// The suites are skipped unless CHAT_URL is set.
package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ChatURL  string `envconfig:"CHAT_URL"`
	GRPCAddr string `envconfig:"CHAT_GRPC_ADDR" default:"localhost:9090"`
	// E2E_DEBUG_JSON allows dumping full gRPC request/response bodies as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
