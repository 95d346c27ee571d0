package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"temp_chat/internal/key_exchange"
)

func TestFromEnviron_Defaults(t *testing.T) {
	req := require.New(t)
	for _, key := range []string{"LOG_LEVEL", "CHAT_HOST", "CHAT_PORT_MIN", "CHAT_PORT_MAX", "TUNNEL_MODE", "JOIN_LINK_KDF", "SEND_BUFFER", "ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
		req.NoError(os.Unsetenv(key))
	}

	cfg, err := FromEnviron()

	req.NoError(err)
	req.Equal("info", cfg.LogLevel)
	req.Equal("127.0.0.1", cfg.Host)
	req.Equal(10000, cfg.PortMin)
	req.Equal(20000, cfg.PortMax)
	req.Equal(TunnelLocal, cfg.TunnelMode)
	req.Equal(5, cfg.TunnelExtraConns)
	req.Equal(256, cfg.SendBuffer)
	req.Equal([]string{"*"}, cfg.Origins())
	req.Equal(key_exchange.DefaultArgon2id, cfg.KeyDeriver())
}

func TestFromEnviron_Overrides(t *testing.T) {
	req := require.New(t)
	t.Setenv("TUNNEL_MODE", "localtunnel")
	t.Setenv("JOIN_LINK_KDF", "legacy-pad")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := FromEnviron()

	req.NoError(err)
	req.Equal(TunnelLocaltunnel, cfg.TunnelMode)
	req.Equal(key_exchange.PaddedPassword{}, cfg.KeyDeriver())
	req.Equal([]string{"https://a.example", "https://b.example"}, cfg.Origins())
}

func TestFromEnviron_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown tunnel mode": {"TUNNEL_MODE": "ngrok"},
		"inverted port range": {"CHAT_PORT_MIN": "20000", "CHAT_PORT_MAX": "10000"},
		"unknown kdf":         {"JOIN_LINK_KDF": "md5"},
		"empty send buffer":   {"SEND_BUFFER": "0"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			for key, value := range vars {
				t.Setenv(key, value)
			}
			_, err := FromEnviron()
			require.Error(t, err)
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), ".env")
	req.NoError(os.WriteFile(path, []byte("CHAT_PORT_MIN=12000\nCHAT_PORT_MAX=12010\n"), 0o600))
	t.Setenv("CHAT_PORT_MAX", "12005")

	cfg, err := Load(path)

	req.NoError(err)
	req.Equal(12000, cfg.PortMin)
	req.Equal(12005, cfg.PortMax)
	// godotenv sets variables process-wide
	t.Cleanup(func() { _ = os.Unsetenv("CHAT_PORT_MIN") })
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}
