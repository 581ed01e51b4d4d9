// Package config loads application configuration from a YAML file and
// SEEWATCH_-prefixed environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultCaptchaPlaceholder is what the login form sends in its captcha field.
// The identity provider does not ask for a captcha for this flow; the form
// still carries the field with its placeholder text.
const DefaultCaptchaPlaceholder = "请输入验证码"

// Config holds the application configuration.
type Config struct {
	PortalURL           string   `yaml:"portal_url"`
	Pages               []string `yaml:"pages"`
	NoticeSelectorClass string   `yaml:"notice_selector_class"`
	LectureURL          string   `yaml:"lecture_url"`

	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	CaptchaPlaceholder string `yaml:"captcha_placeholder"`

	Notifiers   []string `yaml:"notifiers"`
	SCTKey      string   `yaml:"sct_key"`
	SC3Key      string   `yaml:"sc3_key"`
	GitHubToken string   `yaml:"github_token"`
	GitHubRepo  string   `yaml:"github_repo"`

	DBPath       string `yaml:"db_path"`
	SecretKeyHex string `yaml:"secret_key"`
	Schedule     string `yaml:"schedule"`
	ReportErrors bool   `yaml:"report_errors"`
	LogLevel     string `yaml:"log_level"`

	// SecretKey is the decoded SecretKeyHex: 32 bytes, or nil when unset.
	SecretKey []byte `yaml:"-"`
}

// HasCredentials returns true when both Username and Password are non-empty.
func (c *Config) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}

// Load reads the YAML file at path (a missing file is not an error), overlays
// SEEWATCH_* environment variables, applies defaults, and validates the result.
// List-valued variables (SEEWATCH_PAGES, SEEWATCH_NOTIFIERS) are comma separated.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"SEEWATCH_PORTAL_URL":            &cfg.PortalURL,
		"SEEWATCH_NOTICE_SELECTOR_CLASS": &cfg.NoticeSelectorClass,
		"SEEWATCH_LECTURE_URL":           &cfg.LectureURL,
		"SEEWATCH_USERNAME":              &cfg.Username,
		"SEEWATCH_PASSWORD":              &cfg.Password,
		"SEEWATCH_CAPTCHA_PLACEHOLDER":   &cfg.CaptchaPlaceholder,
		"SEEWATCH_SCT_KEY":               &cfg.SCTKey,
		"SEEWATCH_SC3_KEY":               &cfg.SC3Key,
		"SEEWATCH_GITHUB_TOKEN":          &cfg.GitHubToken,
		"SEEWATCH_GITHUB_REPO":           &cfg.GitHubRepo,
		"SEEWATCH_DB_PATH":               &cfg.DBPath,
		"SEEWATCH_SECRET_KEY":            &cfg.SecretKeyHex,
		"SEEWATCH_SCHEDULE":              &cfg.Schedule,
		"SEEWATCH_LOG_LEVEL":             &cfg.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("SEEWATCH_PAGES"); ok {
		cfg.Pages = splitList(v)
	}
	if v, ok := os.LookupEnv("SEEWATCH_NOTIFIERS"); ok {
		cfg.Notifiers = splitList(v)
	}

	if v, ok := os.LookupEnv("SEEWATCH_REPORT_ERRORS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SEEWATCH_REPORT_ERRORS has invalid boolean %q: %w", v, err)
		}
		cfg.ReportErrors = b
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.DBPath == "" {
		cfg.DBPath = "seewatch.db"
	}
	if cfg.CaptchaPlaceholder == "" {
		cfg.CaptchaPlaceholder = DefaultCaptchaPlaceholder
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Pages == nil {
		cfg.Pages = []string{}
	}
	if cfg.Notifiers == nil {
		cfg.Notifiers = []string{}
	}
	cfg.PortalURL = strings.TrimRight(cfg.PortalURL, "/")
}

func (c *Config) validate() error {
	if len(c.Pages) > 0 && c.PortalURL == "" {
		return errors.New("portal_url (SEEWATCH_PORTAL_URL) is required when pages are configured")
	}
	if len(c.Pages) > 0 && c.NoticeSelectorClass == "" {
		return errors.New("notice_selector_class (SEEWATCH_NOTICE_SELECTOR_CLASS) is required when pages are configured")
	}
	if c.LectureURL != "" && !c.HasCredentials() {
		return errors.New("username and password (SEEWATCH_USERNAME, SEEWATCH_PASSWORD) are required when lecture_url is set")
	}
	if c.GitHubRepo != "" && strings.Count(c.GitHubRepo, "/") != 1 {
		return fmt.Errorf("github_repo (SEEWATCH_GITHUB_REPO) %q: expected owner/name", c.GitHubRepo)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level (SEEWATCH_LOG_LEVEL) %q: expected debug, info, warn or error", c.LogLevel)
	}

	if c.SecretKeyHex != "" {
		key, err := hex.DecodeString(c.SecretKeyHex)
		if err != nil {
			return fmt.Errorf("secret_key (SEEWATCH_SECRET_KEY) is not valid hex: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("secret_key (SEEWATCH_SECRET_KEY) must decode to 32 bytes, got %d", len(key))
		}
		c.SecretKey = key
	}
	return nil
}

func splitList(v string) []string {
	out := []string{}
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
