// Package config loads the chat settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"temp_chat/internal/key_exchange"
)

const (
	TunnelLocal       = "local"
	TunnelLocaltunnel = "localtunnel"

	KDFArgon2id  = "argon2id"
	KDFLegacyPad = "legacy-pad"
)

type Config struct {
	LogLevel         string `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
	Host             string `env:"CHAT_HOST,default=127.0.0.1" validate:"required,ip|hostname"`
	PortMin          int    `env:"CHAT_PORT_MIN,default=10000" validate:"min=1,max=65535"`
	PortMax          int    `env:"CHAT_PORT_MAX,default=20000" validate:"min=1,max=65535,gtefield=PortMin"`
	TunnelMode       string `env:"TUNNEL_MODE,default=local" validate:"oneof=local localtunnel"`
	TunnelServer     string `env:"TUNNEL_SERVER,default=https://loca.lt" validate:"url"`
	TunnelExtraConns int    `env:"TUNNEL_EXTRA_CONNS,default=5" validate:"min=0,max=250"`
	JoinLinkKDF      string `env:"JOIN_LINK_KDF,default=argon2id" validate:"oneof=argon2id legacy-pad"`
	Argon2Time       int    `env:"ARGON2_TIME,default=3" validate:"min=1"`
	Argon2MemoryKiB  int    `env:"ARGON2_MEMORY_KIB,default=65536" validate:"min=8"`
	Argon2Threads    int    `env:"ARGON2_THREADS,default=4" validate:"min=1,max=255"`
	LedgerDSN        string `env:"LEDGER_DSN"`
	SendBuffer       int    `env:"SEND_BUFFER,default=256" validate:"min=1"`
	AllowedOrigins   string `env:"ALLOWED_ORIGINS,default=*"`
}

var validate = validator.New()

// Load reads an optional .env file, then the environment, and validates the
// result. Variables already set in the environment win over the file.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return FromEnviron()
}

func FromEnviron() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// KeyDeriver returns the join-link password KDF selected by JOIN_LINK_KDF.
func (c Config) KeyDeriver() key_exchange.KeyDeriver {
	if c.JoinLinkKDF == KDFLegacyPad {
		return key_exchange.PaddedPassword{}
	}
	return key_exchange.Argon2id{
		Time:      uint32(c.Argon2Time),
		MemoryKiB: uint32(c.Argon2MemoryKiB),
		Threads:   uint8(c.Argon2Threads),
	}
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
