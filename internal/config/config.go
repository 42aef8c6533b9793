package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models assetline.yml.
type Config struct {
	Firm struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"firm"`
	Server struct {
		Listen   string `yaml:"listen"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		Enabled                bool   `yaml:"enabled"`
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
	} `yaml:"auth"`
	RBAC struct {
		Roles map[string]RBACRole `yaml:"roles"`
	} `yaml:"rbac"`
	Team     []TeamMember    `yaml:"team"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

type TeamMember struct {
	ActorID string   `yaml:"actor_id"`
	Name    string   `yaml:"name"`
	Roles   []string `yaml:"roles"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with al config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Firm.ID == "" {
		return fmt.Errorf("config.firm.id is required")
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("config.auth.jwt_secret is required when auth is enabled")
	}
	if len(c.RBAC.Roles) > 0 {
		if _, ok := c.RBAC.Roles["manager"]; !ok {
			return fmt.Errorf("config.rbac.roles must include manager")
		}
		for roleID, role := range c.RBAC.Roles {
			if roleID == "" {
				return fmt.Errorf("config.rbac.roles contains empty role id")
			}
			for _, perm := range role.Permissions {
				if perm == "" {
					return fmt.Errorf("role %s has empty permission id", roleID)
				}
			}
		}
	}
	for i, member := range c.Team {
		if member.ActorID == "" {
			return fmt.Errorf("config.team[%d].actor_id is required", i)
		}
		for _, roleID := range member.Roles {
			if roleID == "" {
				return fmt.Errorf("team member %s has empty role id", member.ActorID)
			}
			if len(c.RBAC.Roles) > 0 {
				if _, ok := c.RBAC.Roles[roleID]; !ok {
					return fmt.Errorf("team member %s references unknown role %s", member.ActorID, roleID)
				}
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "assetline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(firmID string) string {
	return fmt.Sprintf(defaultTemplate, firmID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a firm.
func Default(firmID string) *Config {
	var cfg Config
	cfg.Firm.ID = firmID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, firmID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

const defaultTemplate = `firm:
  id: %s
  name: ""

server:
  listen: 127.0.0.1:8787
  base_path: ""

auth:
  enabled: false
  jwt_secret: ""
  allow_legacy_actor_header: true

rbac:
  roles:
    manager:
      description: "Full control over the portfolio"
      permissions:
        - assets.write
        - outcomes.write
        - outcomes.delete
        - tasks.write
        - offers.write
        - offers.accept
        - scopes.write
        - calendar.write
        - brokers.write
        - valuations.write
        - assignments.write
        - rbac.admin
        - keys.admin
    analyst:
      description: "Day-to-day pipeline updates"
      permissions:
        - assets.write
        - outcomes.write
        - tasks.write
        - offers.write
        - scopes.write
        - calendar.write
        - brokers.write
        - valuations.write
    viewer:
      description: "Read-only dashboard access"
      permissions: []

team: []
`
