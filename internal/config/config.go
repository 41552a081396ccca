package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Backend    Backend    `yaml:"backend"`
	Newsletter Newsletter `yaml:"newsletter"`
	Mail       Mail       `yaml:"mail"`
	Output     Output     `yaml:"output"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

// Backend locates the service that computes stale content and accepts
// selections and deliveries.
type Backend struct {
	BaseURL   string        `yaml:"base_url" env:"STALEFLIX_BACKEND_URL"`
	APIKey    string        `yaml:"api_key" env:"STALEFLIX_BACKEND_API_KEY"`
	Timeout   time.Duration `yaml:"timeout" env:"STALEFLIX_BACKEND_TIMEOUT"`
	Endpoints Endpoints     `yaml:"endpoints"`
}

// Endpoints are paths relative to Backend.BaseURL.
type Endpoints struct {
	StaleContent     string `yaml:"stale_content"`
	SubmitSelection  string `yaml:"submit_selection"`
	DeliveryQueue    string `yaml:"delivery_queue"`
	MailingList      string `yaml:"mailing_list"`
	MediaCollections string `yaml:"media_collections"`
}

type Newsletter struct {
	// Namespace prefixes the asset folder handed to delivery services.
	Namespace      string `yaml:"namespace"`
	MessageFormat  string `yaml:"message_format"`
	SubjectPrefix  string `yaml:"subject_prefix"`
	FilenamePrefix string `yaml:"filename_prefix"`
	// Deliver lists the delivery targets used by "compose --send" and the
	// web UI send action: mailing_list, media_collections, smtp.
	Deliver []string `yaml:"deliver"`
}

type Mail struct {
	Host     string   `yaml:"host" env:"STALEFLIX_SMTP_HOST"`
	Port     int      `yaml:"port" env:"STALEFLIX_SMTP_PORT"`
	Username string   `yaml:"username" env:"STALEFLIX_SMTP_USERNAME"`
	Password string   `yaml:"password" env:"STALEFLIX_SMTP_PASSWORD"`
	From     string   `yaml:"from" env:"STALEFLIX_MAIL_FROM"`
	To       []string `yaml:"to" env:"STALEFLIX_MAIL_TO" env-separator:","`
}

type Output struct {
	DataDir string `yaml:"data_dir" env:"STALEFLIX_DATA_DIR"`
}

type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" env:"STALEFLIX_PORT"`
}

type Logging struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file" env:"STALEFLIX_LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Message formats for Newsletter.MessageFormat.
const (
	MessageHTML     = "html"
	MessageMarkdown = "markdown"
)

// ConfigDir returns the XDG config directory for staleflix.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "staleflix")
}

// DataDir returns the XDG data directory for staleflix.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "staleflix")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/staleflix/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'staleflix init' to create a default config",
		xdgConfig,
	)
}

// LoadDotEnv loads variables from a .env file into the process
// environment. A missing file is not an error; variables already set win.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads and parses a config YAML file, then applies environment
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Backend: Backend{
			BaseURL: "http://localhost:5678/webhook",
			Timeout: 2 * time.Minute,
			Endpoints: Endpoints{
				StaleContent:     "stale-content-query",
				SubmitSelection:  "submit-selection",
				DeliveryQueue:    "push-to-delivery-queue",
				MailingList:      "send-to-mailing-list",
				MediaCollections: "send-to-media-collections",
			},
		},
		Newsletter: Newsletter{
			Namespace:      "staleflix",
			MessageFormat:  MessageHTML,
			SubjectPrefix:  "StaleFlix",
			FilenamePrefix: "staleflix-newsletter",
			Deliver:        []string{"mailing_list"},
		},
		Mail:    Mail{Port: 587},
		Server:  Server{Host: "127.0.0.1", Port: 9999},
		Logging: Logging{Level: "INFO", MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// applyEnv overlays STALEFLIX_* environment variables on cfg.
func applyEnv(cfg *Config) error {
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required")
	}
	switch c.Newsletter.MessageFormat {
	case MessageHTML, MessageMarkdown:
	default:
		return fmt.Errorf("newsletter.message_format must be %q or %q, got %q",
			MessageHTML, MessageMarkdown, c.Newsletter.MessageFormat)
	}
	for _, target := range c.Newsletter.Deliver {
		switch target {
		case "mailing_list", "media_collections":
		case "smtp":
			if c.Mail.Host == "" || c.Mail.From == "" || len(c.Mail.To) == 0 {
				return errors.New("smtp delivery needs mail.host, mail.from and mail.to")
			}
		default:
			return fmt.Errorf("unknown delivery target %q", target)
		}
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
