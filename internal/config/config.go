package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/billie-coop/margin/internal/changes"
)

// ErrConfig marks a missing credential or endpoint, or an invalid setting.
var ErrConfig = errors.New("invalid configuration")

// Providers understood by the transport factory.
const (
	ProviderLMStudio = "lmstudio"
	ProviderOpenAI   = "openai"
)

// Config represents the margin configuration
type Config struct {
	// Annotation service
	Provider string `yaml:"provider"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key,omitempty"`
	Model    string `yaml:"model"`

	// Scheduling and admission
	DebounceMS        int      `yaml:"debounce_ms"`
	ResponseThreshold float64  `yaml:"response_threshold"`
	MinimumTextLength int      `yaml:"minimum_text_length"`
	EditEventClasses  []string `yaml:"edit_event_classes"`
	Seed              uint64   `yaml:"seed"`

	// Dispatch
	RequestsPerMinute int `yaml:"requests_per_minute"`
	RequestTimeoutMS  int `yaml:"request_timeout_ms"`
	MaxInFlight       int `yaml:"max_in_flight"`

	// Terminal editor
	Theme string `yaml:"theme"`

	Debug bool `yaml:"debug"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Provider:          ProviderLMStudio,
		Endpoint:          "http://localhost:1234",
		Model:             "",
		DebounceMS:        1500,
		ResponseThreshold: 0.8,
		MinimumTextLength: 20,
		EditEventClasses:  []string{changes.KindChange, changes.KindInsert, changes.KindDelete, changes.KindReload},
		RequestsPerMinute: 20,
		RequestTimeoutMS:  0,
		MaxInFlight:       2,
		Theme:             "margin",
	}
}

// Debounce returns the quiet period before a cycle fires.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// RequestTimeout returns the per-request timeout; zero means none.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// EditClasses returns the signal kinds that count as edits.
func (c *Config) EditClasses() map[string]struct{} {
	set := make(map[string]struct{}, len(c.EditEventClasses))
	for _, kind := range c.EditEventClasses {
		set[strings.TrimSpace(kind)] = struct{}{}
	}
	return set
}

// Validate checks ranges and that the selected provider has what it needs.
// Every error wraps ErrConfig.
func (c *Config) Validate() error {
	var problems []string

	if c.DebounceMS < 0 {
		problems = append(problems, "debounce_ms must be >= 0")
	}
	if c.ResponseThreshold < 0 || c.ResponseThreshold > 1 {
		problems = append(problems, "response_threshold must be within [0, 1]")
	}
	if c.MinimumTextLength < 0 {
		problems = append(problems, "minimum_text_length must be >= 0")
	}
	if c.RequestsPerMinute < 0 {
		problems = append(problems, "requests_per_minute must be >= 0")
	}
	if c.RequestTimeoutMS < 0 {
		problems = append(problems, "request_timeout_ms must be >= 0")
	}
	if len(c.EditEventClasses) == 0 {
		problems = append(problems, "edit_event_classes must not be empty")
	}

	switch c.Provider {
	case ProviderLMStudio:
		if c.Endpoint == "" {
			problems = append(problems, "endpoint is required for lmstudio")
		}
	case ProviderOpenAI:
		if c.APIKey == "" {
			problems = append(problems, "api_key is required for openai (set MARGIN_API_KEY or OPENAI_API_KEY)")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown provider %q", c.Provider))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Manager handles configuration loading and saving
type Manager struct {
	projectPath string
	configPath  string
	config      *Config
}

// NewManager creates a new configuration manager
func NewManager(projectPath string) *Manager {
	marginDir := filepath.Join(projectPath, ".margin")
	return &Manager{
		projectPath: projectPath,
		configPath:  filepath.Join(marginDir, "config.yaml"),
		config:      DefaultConfig(),
	}
}

// Path returns the config file location.
func (m *Manager) Path() string {
	return m.configPath
}

// Load reads the configuration from disk, creating defaults if needed
func (m *Manager) Load() error {
	marginDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(marginDir, 0o755); err != nil {
		return fmt.Errorf("failed to create .margin directory: %w", err)
	}

	if err := m.ensureGitignore(); err != nil {
		return fmt.Errorf("failed to create .gitignore: %w", err)
	}

	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		if err := m.Save(); err != nil {
			return err
		}
		m.applyEnv(m.config)
		return nil
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Missing keys keep their defaults.
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}

	m.expandEnvVars(config)
	m.applyEnv(config)

	m.config = config
	return nil
}

// Save writes the current configuration to disk
func (m *Manager) Save() error {
	data, err := yaml.Marshal(m.config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Get returns the current configuration
func (m *Manager) Get() *Config {
	return m.config
}

// Set updates a configuration value and saves
func (m *Manager) Set(key, value string) error {
	switch key {
	case "provider":
		m.config.Provider = value
	case "endpoint":
		m.config.Endpoint = value
	case "model":
		m.config.Model = value
	case "debounce_ms":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: debounce_ms: %v", ErrConfig, err)
		}
		m.config.DebounceMS = n
	case "response_threshold":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: response_threshold: %v", ErrConfig, err)
		}
		m.config.ResponseThreshold = f
	case "minimum_text_length":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: minimum_text_length: %v", ErrConfig, err)
		}
		m.config.MinimumTextLength = n
	case "edit_event_classes":
		m.config.EditEventClasses = strings.Split(value, ",")
	case "theme":
		m.config.Theme = value
	case "debug":
		m.config.Debug = value == "true"
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}

	return m.Save()
}

// ensureGitignore creates a .gitignore in .margin/ with smart defaults
func (m *Manager) ensureGitignore() error {
	gitignorePath := filepath.Join(filepath.Dir(m.configPath), ".gitignore")

	if _, err := os.Stat(gitignorePath); !os.IsNotExist(err) {
		return nil
	}

	gitignoreContent := `# margin data directory .gitignore
#
# config.yaml may hold an api_key; prefer MARGIN_API_KEY in the environment
# and keep the file out of version control if you store one here.

*.log
*.tmp
responses/

!.gitignore
`

	return os.WriteFile(gitignorePath, []byte(gitignoreContent), 0o644)
}

// applyEnv lets the environment override credentials and endpoint.
func (m *Manager) applyEnv(config *Config) {
	if v := os.Getenv("MARGIN_ENDPOINT"); v != "" {
		config.Endpoint = v
	}
	if v := os.Getenv("MARGIN_API_KEY"); v != "" {
		config.APIKey = v
	}
	if config.APIKey == "" && config.Provider == ProviderOpenAI {
		config.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// expandEnvVars expands environment variables in config values
func (m *Manager) expandEnvVars(config *Config) {
	config.Endpoint = expandString(config.Endpoint)
	config.APIKey = expandString(config.APIKey)
	config.Model = expandString(config.Model)
}

var envRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandString expands environment variables in a string
// Supports $VAR and ${VAR} syntax
func expandString(s string) string {
	return envRegex.ReplaceAllStringFunc(s, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		// Return original if env var not found
		return match
	})
}
