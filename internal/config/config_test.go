package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Proxmox: ProxmoxConfig{
			BaseURL:             "https://pve.lab:8006",
			User:                "root@pam",
			TokenID:             "root@pam!labpanel",
			TokenSecret:         "secret-uuid-1234",
			PollIntervalSeconds: 5,
		},
		Docker: DockerConfig{
			SocketPath:          "/var/run/docker.sock",
			PollIntervalSeconds: 5,
			StopGraceSeconds:    10,
		},
		Service: ServiceConfig{
			BindAddress: "0.0.0.0",
			Port:        8090,
		},
		Auth: AuthConfig{Mode: AuthModeNone},
	}
}

func TestLoadSaveRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")

	cfg := validConfig()
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %o, want 0600", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Proxmox.BaseURL != cfg.Proxmox.BaseURL {
		t.Errorf("base_url = %q, want %q", loaded.Proxmox.BaseURL, cfg.Proxmox.BaseURL)
	}
	if loaded.Proxmox.TokenSecret != cfg.Proxmox.TokenSecret {
		t.Errorf("token_secret not preserved")
	}
	if loaded.Docker.StopGraceSeconds != 10 {
		t.Errorf("stop_grace_seconds = %d, want 10", loaded.Docker.StopGraceSeconds)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	minimal := `proxmox:
  base_url: https://pve.lab:8006
  user: root@pam
  token_id: root@pam!labpanel
  token_secret: s3cret
`
	if err := os.WriteFile(path, []byte(minimal), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Docker.SocketPath != DefaultDockerSocket {
		t.Errorf("socket = %q, want default", cfg.Docker.SocketPath)
	}
	if cfg.Proxmox.PollIntervalSeconds != DefaultPollIntervalSeconds {
		t.Errorf("poll interval = %d, want %d", cfg.Proxmox.PollIntervalSeconds, DefaultPollIntervalSeconds)
	}
	if cfg.Service.Port != DefaultPort {
		t.Errorf("port = %d, want %d", cfg.Service.Port, DefaultPort)
	}
	if cfg.Auth.Mode != AuthModeNone {
		t.Errorf("auth mode = %q, want %q", cfg.Auth.Mode, AuthModeNone)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing base URL", func(c *Config) { c.Proxmox.BaseURL = "" }, "base_url"},
		{"bad base URL scheme", func(c *Config) { c.Proxmox.BaseURL = "pve.lab:8006" }, "http(s)"},
		{"missing user", func(c *Config) { c.Proxmox.User = "" }, "user"},
		{"missing token id", func(c *Config) { c.Proxmox.TokenID = "" }, "token_id"},
		{"missing token secret", func(c *Config) { c.Proxmox.TokenSecret = "" }, "token_secret"},
		{"zero poll interval", func(c *Config) { c.Proxmox.PollIntervalSeconds = 0 }, "poll_interval"},
		{"bad port", func(c *Config) { c.Service.Port = 70000 }, "port"},
		{"bad auth mode", func(c *Config) { c.Auth.Mode = "ldap" }, "auth.mode"},
		{"password mode without hash", func(c *Config) { c.Auth.Mode = AuthModePassword }, "password_hash"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, should mention %q", err, tt.wantErr)
			}
		})
	}

	if err := validConfig().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestRedacted(t *testing.T) {
	cfg := validConfig()
	cfg.Auth = AuthConfig{Mode: AuthModePassword, PasswordHash: "$2a$10$abc"}

	red := cfg.Redacted()
	if red.Proxmox.TokenSecret != RedactedPlaceholder {
		t.Errorf("secret not redacted: %q", red.Proxmox.TokenSecret)
	}
	if red.Auth.PasswordHash != RedactedPlaceholder {
		t.Errorf("password hash not redacted: %q", red.Auth.PasswordHash)
	}
	// The original must be untouched.
	if cfg.Proxmox.TokenSecret != "secret-uuid-1234" {
		t.Errorf("Redacted mutated the source config")
	}
}
