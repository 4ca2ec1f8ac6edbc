package app

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
telegram:
  token: "123:abc"
  run_mode: longpoll
cowin:
  user_agent: "test-agent"
database:
  host: ""
`

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.MessageCharLimit != 4096 {
		t.Errorf("message_char_limit default = %d, want 4096", cfg.Telegram.MessageCharLimit)
	}
	if cfg.Cowin.UserAgent != "test-agent" {
		t.Errorf("user_agent = %q", cfg.Cowin.UserAgent)
	}
	if cfg.Database.Enabled() {
		t.Error("empty host should disable the database")
	}
	if cfg.CoreConfig() == nil {
		t.Error("CoreConfig returned nil")
	}
}

func TestLoadConfigRequiresUserAgent(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
telegram:
  token: "123:abc"
`))
	if err == nil {
		t.Fatal("expected error for missing cowin.user_agent")
	}
}

func TestLoadConfigRequiresToken(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
cowin:
  user_agent: "test-agent"
`))
	if err == nil {
		t.Fatal("expected error for missing telegram token")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
