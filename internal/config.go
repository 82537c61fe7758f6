package internal

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// VaultConfig selects and configures the vault control-plane backend.
type VaultConfig struct {
	// Backend is one of "memory", "sqlite", or "hashicorp".
	Backend string `yaml:"backend"`
	// Address is the HashiCorp Vault server address (hashicorp backend).
	Address string `yaml:"address,omitempty"`
	// Token is the HashiCorp Vault token (hashicorp backend). Prefer the
	// VAULT_TOKEN environment variable over storing it here.
	Token string `yaml:"token,omitempty"`
	// Mount is the KV v2 mount path (hashicorp backend). Defaults to "secret".
	Mount string `yaml:"mount,omitempty"`
	// Path is the SQLite database file (sqlite backend).
	Path string `yaml:"path,omitempty"`
	// Default is the vault selected at startup when no explicit selection
	// is made.
	Default string `yaml:"default,omitempty"`
}

// GatewayConfig names the edge gateway targeted by attach operations.
type GatewayConfig struct {
	ID string `yaml:"id,omitempty"`
}

// Config is the application configuration loaded from YAML.
type Config struct {
	// AllowedDir is the only directory certificate material may be read
	// from when a file path is supplied. Empty means path-based input is
	// disabled entirely.
	AllowedDir string        `yaml:"allowedDir"`
	Vault      VaultConfig   `yaml:"vault"`
	Gateway    GatewayConfig `yaml:"gateway,omitempty"`
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate applies defaults and rejects inconsistent settings.
func (c *Config) Validate() error {
	if c.Vault.Backend == "" {
		c.Vault.Backend = "memory"
	}
	switch c.Vault.Backend {
	case "memory":
	case "sqlite":
		// empty path means in-memory SQLite, useful for tests
	case "hashicorp":
		if c.Vault.Address == "" {
			return fmt.Errorf("vault.address is required for the hashicorp backend")
		}
		if c.Vault.Mount == "" {
			c.Vault.Mount = "secret"
		}
	default:
		return fmt.Errorf("unknown vault.backend %q", c.Vault.Backend)
	}
	return nil
}
