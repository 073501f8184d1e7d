package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != DefaultRCONPort {
		t.Fatalf("port = %d, want %d", cfg.Server.Port, DefaultRCONPort)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if !cfg.IsFirstRun() {
		t.Fatalf("config without password should need setup")
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[server]
address = "10.0.0.5"
password = "hunter2"
multi_packet = true

[api]
token = "0123456789abcdef"
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	server := cfg.GetServer()
	if server.Address != "10.0.0.5" || server.Password != "hunter2" || !server.MultiPacket {
		t.Fatalf("server section not applied: %+v", server)
	}
	if server.Port != DefaultRCONPort {
		t.Fatalf("default port lost: %d", server.Port)
	}
	if server.ReadTimeout() != 30*time.Second {
		t.Fatalf("read timeout = %s, want 30s", server.ReadTimeout())
	}
	if cfg.GetAPI().Port != DefaultAPIPort {
		t.Fatalf("default api port lost: %d", cfg.GetAPI().Port)
	}
	if cfg.Address() != "10.0.0.5:27015" {
		t.Fatalf("address = %q", cfg.Address())
	}
}

func TestLoadRejectsBrokenTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[server\naddress = "), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := DefaultConfig()
	cfg.SetPath(path)

	server := cfg.GetServer()
	server.Address = "::1"
	server.Password = "p@ss word"
	cfg.SetServer(server)
	cfg.SetLogLevel("debug")

	if err := cfg.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.GetServer() != cfg.GetServer() {
		t.Fatalf("server mismatch: got %+v want %+v", loaded.GetServer(), cfg.GetServer())
	}
	if loaded.LogConfig().Level != "debug" {
		t.Fatalf("log level = %q", loaded.LogConfig().Level)
	}
	if loaded.Address() != "[::1]:27015" {
		t.Fatalf("address = %q", loaded.Address())
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		t.Fatalf("config file is readable by others: %v", perm)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantError string
		wantWarn  string
	}{
		{"defaults", func(c *Config) { c.Server.Password = "x"; c.API.Token = "0123456789abcdef" }, "", ""},
		{"missing address", func(c *Config) { c.Server.Address = " " }, "server.address", ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port", ""},
		{"privileged port", func(c *Config) { c.API.Port = 80 }, "", "api.port"},
		{"negative timeout", func(c *Config) { c.Server.DialTimeoutSec = -1 }, "server.dial_timeout_sec", ""},
		{"no read timeout", func(c *Config) { c.Server.ReadTimeoutSec = 0 }, "", "server.read_timeout_sec"},
		{"nul password", func(c *Config) { c.Server.Password = "a\x00b" }, "server.password", ""},
		{"empty password", func(c *Config) { c.Server.Password = "" }, "", "server.password"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level", ""},
		{"history path", func(c *Config) { c.History.Path = "" }, "history.path", ""},
		{"prune time", func(c *Config) { c.History.PruneAt = "25:00" }, "history.prune_at", ""},
		{"history disabled", func(c *Config) { c.History.Enabled = false; c.History.Path = "" }, "", ""},
		{"empty token", func(c *Config) { c.API.Token = "" }, "", "api.token"},
		{"short token", func(c *Config) { c.API.Token = "abc" }, "", "api.token"},
		{"mqtt broker", func(c *Config) { c.MQTT.Enabled = true }, "mqtt.broker_url", ""},
		{"mqtt port", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.BrokerURL = "b"; c.MQTT.Port = 0 }, "mqtt.port", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Server.Password = "x"
			cfg.API.Token = "0123456789abcdef"
			tt.mutate(cfg)

			result := Validate(cfg)
			if tt.wantError == "" && !result.IsValid() {
				t.Fatalf("unexpected errors: %v", result.Errors)
			}
			if tt.wantError != "" && !hasField(result.Errors, tt.wantError) {
				t.Fatalf("expected error on %s, got %v", tt.wantError, result.Errors)
			}
			if tt.wantWarn != "" && !hasField(result.Warnings, tt.wantWarn) {
				t.Fatalf("expected warning on %s, got %v", tt.wantWarn, result.Warnings)
			}
		})
	}
}

func hasField(list []ValidationError, field string) bool {
	for _, e := range list {
		if e.Field == field {
			return true
		}
	}
	return false
}

func TestSetupWizard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := DefaultConfig()
	cfg.SetPath(path)

	input := strings.Join([]string{
		"game.example.net", // address
		"27016",            // port
		"s3cret",           // password
		"yes",              // multi packet
		"",                 // history enabled (keep)
		"",                 // history path (keep)
		"9090",             // gateway port
		"0123456789abcdef", // token
		"no",               // mqtt
	}, "\n") + "\n"

	var out bytes.Buffer
	if err := RunSetupWizard(cfg, strings.NewReader(input), &out); err != nil {
		t.Fatalf("wizard: %v\n%s", err, out.String())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	server := loaded.GetServer()
	if server.Address != "game.example.net" || server.Port != 27016 || server.Password != "s3cret" || !server.MultiPacket {
		t.Fatalf("server section = %+v", server)
	}
	if loaded.GetAPI().Port != 9090 {
		t.Fatalf("api port = %d", loaded.GetAPI().Port)
	}
	if !strings.Contains(out.String(), "Configuration saved") {
		t.Fatalf("missing confirmation in output: %q", out.String())
	}
}

func TestSetupWizardRejectsInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SetPath(filepath.Join(t.TempDir(), "config.toml"))

	// Port 0 fails validation; EOF answers the retry prompt with the default.
	input := "host\n0\npw\n"

	var out bytes.Buffer
	err := RunSetupWizard(cfg, strings.NewReader(input), &out)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(out.String(), "server.port") {
		t.Fatalf("output does not name the bad field: %q", out.String())
	}
}
