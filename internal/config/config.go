package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full panel configuration written to config.yml.
type Config struct {
	Proxmox ProxmoxConfig `yaml:"proxmox"`
	Docker  DockerConfig  `yaml:"docker"`
	Service ServiceConfig `yaml:"service"`
	Auth    AuthConfig    `yaml:"auth"`
}

type ProxmoxConfig struct {
	BaseURL             string `yaml:"base_url"`
	User                string `yaml:"user"`
	TokenID             string `yaml:"token_id"`
	TokenSecret         string `yaml:"token_secret"`
	TLSSkipVerify       bool   `yaml:"tls_skip_verify"`
	TLSCACertPath       string `yaml:"tls_ca_cert,omitempty"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
}

type DockerConfig struct {
	SocketPath          string `yaml:"socket_path"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	StopGraceSeconds    int    `yaml:"stop_grace_seconds"`
}

type ServiceConfig struct {
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`
}

type AuthConfig struct {
	Mode         string `yaml:"mode"`
	PasswordHash string `yaml:"password_hash,omitempty"`
}

// Load reads and parses a config file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Docker.SocketPath == "" {
		c.Docker.SocketPath = DefaultDockerSocket
	}
	if c.Proxmox.PollIntervalSeconds == 0 {
		c.Proxmox.PollIntervalSeconds = DefaultPollIntervalSeconds
	}
	if c.Docker.PollIntervalSeconds == 0 {
		c.Docker.PollIntervalSeconds = DefaultPollIntervalSeconds
	}
	if c.Docker.StopGraceSeconds == 0 {
		c.Docker.StopGraceSeconds = DefaultStopGraceSeconds
	}
	if c.Service.BindAddress == "" {
		c.Service.BindAddress = DefaultBindAddress
	}
	if c.Service.Port == 0 {
		c.Service.Port = DefaultPort
	}
	if c.Auth.Mode == "" {
		c.Auth.Mode = AuthModeNone
	}
}

// Validate checks that all required fields are present and values are in range.
func (c *Config) Validate() error {
	if c.Proxmox.BaseURL == "" {
		return fmt.Errorf("proxmox.base_url is required")
	}
	if !strings.HasPrefix(c.Proxmox.BaseURL, "http://") && !strings.HasPrefix(c.Proxmox.BaseURL, "https://") {
		return fmt.Errorf("proxmox.base_url must be an http(s) URL")
	}
	if c.Proxmox.User == "" {
		return fmt.Errorf("proxmox.user is required")
	}
	if c.Proxmox.TokenID == "" {
		return fmt.Errorf("proxmox.token_id is required")
	}
	if c.Proxmox.TokenSecret == "" {
		return fmt.Errorf("proxmox.token_secret is required")
	}
	if c.Proxmox.PollIntervalSeconds < 1 {
		return fmt.Errorf("proxmox.poll_interval_seconds must be >= 1")
	}
	if c.Docker.SocketPath == "" {
		return fmt.Errorf("docker.socket_path is required")
	}
	if c.Docker.PollIntervalSeconds < 1 {
		return fmt.Errorf("docker.poll_interval_seconds must be >= 1")
	}
	if c.Docker.StopGraceSeconds < 1 {
		return fmt.Errorf("docker.stop_grace_seconds must be >= 1")
	}
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("service.port must be between 1 and 65535")
	}
	if c.Service.BindAddress == "" {
		return fmt.Errorf("service.bind_address is required")
	}

	switch c.Auth.Mode {
	case AuthModeNone:
	case AuthModePassword:
		if c.Auth.PasswordHash == "" {
			return fmt.Errorf("auth.password_hash is required when auth.mode is %q", AuthModePassword)
		}
	default:
		return fmt.Errorf("auth.mode must be %q or %q", AuthModeNone, AuthModePassword)
	}

	return nil
}

// Save writes the config to the given path, creating parent directories as
// needed. Mode 0600: the file holds the API token secret.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// Redacted returns a copy safe for logging and API responses: the token
// secret and password hash are masked, never echoed.
func (c *Config) Redacted() Config {
	out := *c
	if out.Proxmox.TokenSecret != "" {
		out.Proxmox.TokenSecret = RedactedPlaceholder
	}
	if out.Auth.PasswordHash != "" {
		out.Auth.PasswordHash = RedactedPlaceholder
	}
	return out
}
