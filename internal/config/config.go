package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models oneloop.yml.
type Config struct {
	Manager struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"manager"`
	Session struct {
		StandardQuestions []string `yaml:"standard_questions"`
		MaxPointDepth     int      `yaml:"max_point_depth"`
	} `yaml:"session"`
	Access struct {
		AllowAgendaItems        bool `yaml:"allow_agenda_items"`
		AutoEmailSummaries      bool `yaml:"auto_email_summaries"`
		ReadonlyDashboardAccess bool `yaml:"readonly_dashboard_access"`
	} `yaml:"access"`
	Integrations struct {
		Teams   IntegrationConfig `yaml:"teams"`
		Outlook IntegrationConfig `yaml:"outlook"`
	} `yaml:"integrations"`
}

type IntegrationConfig struct {
	Enabled      bool `yaml:"enabled"`
	SyncMinutes  int  `yaml:"sync_minutes"`
	SendInvites  bool `yaml:"send_invites"`
	FailureRatio int  `yaml:"failure_ratio"` // percent, simulated connections only
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with ol config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
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

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Manager.ID == "" {
		return fmt.Errorf("config.manager.id is required")
	}
	if len(c.Session.StandardQuestions) == 0 {
		return fmt.Errorf("config.session.standard_questions is required")
	}
	for i, q := range c.Session.StandardQuestions {
		if q == "" {
			return fmt.Errorf("config.session.standard_questions[%d] is empty", i)
		}
	}
	if c.Session.MaxPointDepth < 1 {
		return fmt.Errorf("config.session.max_point_depth must be at least 1")
	}
	for name, ic := range map[string]IntegrationConfig{"teams": c.Integrations.Teams, "outlook": c.Integrations.Outlook} {
		if ic.FailureRatio < 0 || ic.FailureRatio > 100 {
			return fmt.Errorf("config.integrations.%s.failure_ratio must be 0-100", name)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "oneloop.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(managerID string) string {
	return fmt.Sprintf(defaultTemplate, managerID)
}

// Default returns the default Config struct for a manager.
func Default(managerID string) *Config {
	var cfg Config
	cfg.Manager.ID = managerID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, managerID))).Decode(&cfg)
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

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `manager:
  id: %s
  name: ""

session:
  standard_questions:
    - "What important meetings are happening this week?"
    - "Is there anything that needs to be shared with the wider team?"
    - "Where do you need my help/assistance?"
  max_point_depth: 4

access:
  allow_agenda_items: true
  auto_email_summaries: true
  readonly_dashboard_access: true

integrations:
  teams:
    enabled: false
    sync_minutes: 30
    send_invites: false
    failure_ratio: 10
  outlook:
    enabled: false
    sync_minutes: 30
    send_invites: true
    failure_ratio: 10
`
