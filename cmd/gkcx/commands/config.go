package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sankforever/gkcx/lib/configutil"
	"github.com/sankforever/gkcx/lib/mail"
	"github.com/sankforever/gkcx/services/poller"
)

type SiteConfig struct {
	BaseUrl        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	// Key1 is the examinee number, Key2 the second login credential.
	Key1             string         `json:"key1"`
	Key2             string         `json:"key2"`
	CloudflareBypass bool           `json:"cloudflare_bypass"`
	Markers          poller.Markers `json:"markers"`
}

type PollConfig struct {
	MaxAttempts    int     `json:"max_attempts"`
	BackoffSeconds float64 `json:"backoff_seconds"`
	RetryTransport bool    `json:"retry_transport"`
}

type BaiduConfig struct {
	ApiKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	BaseUrl   string `json:"base_url"`
	// General switches from accurate_basic to general_basic.
	General bool `json:"general"`
}

type OpenaiConfig struct {
	ApiKey  string `json:"api_key"`
	Model   string `json:"model"`
	BaseUrl string `json:"base_url"`
	Prompt  string `json:"prompt"`
}

type OcrConfig struct {
	// Provider is "baidu" or "openai".
	Provider string       `json:"provider"`
	Baidu    BaiduConfig  `json:"baidu"`
	Openai   OpenaiConfig `json:"openai"`
}

type EmailConfig struct {
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	From     string   `json:"from"`
	To       []string `json:"to"`
	// Security is "ssl", "starttls" or "plain".
	Security string `json:"security"`
	Subject  string `json:"subject"`
}

type Config struct {
	Site  SiteConfig  `json:"site"`
	Poll  PollConfig  `json:"poll"`
	Ocr   OcrConfig   `json:"ocr"`
	Email EmailConfig `json:"email"`
	// ArtifactDir holds the html, image, lock and history files.
	ArtifactDir string `json:"artifact_dir"`
	// DumpHttp writes every http exchange to <artifact_dir>/http.
	DumpHttp bool `json:"dump_http"`
	// RecordBodies attaches http bodies to trace spans.
	RecordBodies bool `json:"record_bodies"`
	// Chrome is the browser binary used for rendering.
	Chrome string `json:"chrome"`
}

func (c Config) artifact(name string) string {
	return filepath.Join(c.ArtifactDir, name)
}

func (c Config) SiteTimeout() time.Duration {
	return time.Duration(c.Site.TimeoutSeconds) * time.Second
}

func (c Config) Policy() poller.Policy {
	policy := poller.DefaultPolicy()
	if c.Poll.MaxAttempts > 0 {
		policy.MaxAttempts = c.Poll.MaxAttempts
	}
	if c.Poll.BackoffSeconds > 0 {
		policy.Backoff = time.Duration(c.Poll.BackoffSeconds * float64(time.Second))
	}
	policy.RetryTransport = c.Poll.RetryTransport
	return policy
}

func (c Config) MailOptions() mail.Options {
	return mail.Options{
		Host:     c.Email.Host,
		Port:     c.Email.Port,
		Username: c.Email.Username,
		Password: c.Email.Password,
		From:     c.Email.From,
		To:       c.Email.To,
		Security: mail.Security(c.Email.Security),
	}
}

// applyEnv overrides secrets with GKCX_* environment variables.
func (c *Config) applyEnv() {
	configutil.EnvString(&c.Site.Key1, "GKCX_KEY1")
	configutil.EnvString(&c.Site.Key2, "GKCX_KEY2")
	configutil.EnvString(&c.Ocr.Baidu.ApiKey, "GKCX_BAIDU_API_KEY")
	configutil.EnvString(&c.Ocr.Baidu.SecretKey, "GKCX_BAIDU_SECRET_KEY")
	configutil.EnvString(&c.Ocr.Openai.ApiKey, "GKCX_OPENAI_API_KEY")
	configutil.EnvString(&c.Email.Username, "GKCX_EMAIL_USERNAME")
	configutil.EnvString(&c.Email.Password, "GKCX_EMAIL_PASSWORD")

	var to string
	configutil.EnvString(&to, "GKCX_EMAIL_TO")
	if to != "" {
		c.Email.To = nil
		for _, addr := range strings.Split(to, ",") {
			addr = strings.TrimSpace(addr)
			if addr != "" {
				c.Email.To = append(c.Email.To, addr)
			}
		}
	}
}

func (c *Config) applyDefaults() {
	if c.ArtifactDir == "" {
		c.ArtifactDir = "."
	}
	if c.Ocr.Provider == "" {
		c.Ocr.Provider = "baidu"
	}
	if c.Email.Security == "" {
		c.Email.Security = string(mail.SecuritySSL)
	}
	if c.Email.Port == 0 {
		switch mail.Security(c.Email.Security) {
		case mail.SecuritySSL:
			c.Email.Port = 465
		case mail.SecurityStartTLS:
			c.Email.Port = 587
		default:
			c.Email.Port = 25
		}
	}
}

func (c Config) validateOcr() error {
	switch c.Ocr.Provider {
	case "baidu":
		if c.Ocr.Baidu.ApiKey == "" || c.Ocr.Baidu.SecretKey == "" {
			return errors.New("ocr.baidu.api_key and ocr.baidu.secret_key are required")
		}
	case "openai":
		if c.Ocr.Openai.ApiKey == "" {
			return errors.New("ocr.openai.api_key is required")
		}
	default:
		return fmt.Errorf("unknown ocr provider %q", c.Ocr.Provider)
	}
	return nil
}

// validate checks everything the run command needs.
func (c Config) validate() error {
	var errs []error
	if c.Site.Key1 == "" || c.Site.Key2 == "" {
		errs = append(errs, errors.New("site.key1 and site.key2 are required"))
	}
	if c.Email.Host == "" {
		errs = append(errs, errors.New("email.host is required"))
	}
	if len(c.Email.To) == 0 {
		errs = append(errs, errors.New("email.to needs at least one recipient"))
	}
	if c.Email.Username == "" && c.Email.From == "" {
		errs = append(errs, errors.New("email.username or email.from is required"))
	}
	if err := c.validateOcr(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func loadConfig(path string) (Config, error) {
	config, err := configutil.ReadConfig[Config](path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("no config file found, using environment only", "path", path)
	} else if err != nil {
		return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	config.applyEnv()
	config.applyDefaults()
	return config, nil
}
