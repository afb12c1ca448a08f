// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable consulted when no --config
// flag is given.
const EnvVar = "FSRELAY_CONFIG"

// Config is the complete fsrelay configuration.
type Config struct {
	// QueueDir is the shared directory both sides mount.
	QueueDir string `yaml:"queue_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// MetricsAddress, when set, serves /metrics and /healthz.
	MetricsAddress string `yaml:"metrics_address"`

	Submitter  SubmitterConfig  `yaml:"submitter"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Reclaimer  ReclaimerConfig  `yaml:"reclaimer"`
}

// SubmitterConfig configures the side without network access.
type SubmitterConfig struct {
	ListenAddress string        `yaml:"listen_address"`
	Timeout       time.Duration `yaml:"timeout"`
	PollInterval  time.Duration `yaml:"poll_interval"`

	// Streaming enables the SSE path for bodies with "stream": true.
	Streaming bool `yaml:"streaming"`

	// ResponseSettle is the pause between seeing a response file and
	// reading it.
	ResponseSettle time.Duration `yaml:"response_settle"`
	// FragmentSettle is the same pause for fragment files.
	FragmentSettle time.Duration `yaml:"fragment_settle"`
	// RetryDelay is the wait after reading a response that did not
	// parse.
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// DispatcherConfig configures the side with network access.
type DispatcherConfig struct {
	// Upstream is the base URL request paths are appended to.
	Upstream        string        `yaml:"upstream"`
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`

	// MaxWorkers bounds concurrent upstream calls. Zero is unbounded.
	MaxWorkers int `yaml:"max_workers"`

	// APIKeyCredential names the credential sent as a bearer token.
	// Empty disables authentication.
	APIKeyCredential string `yaml:"api_key_credential"`
	// CredentialFile is an optional KEY=value file consulted after
	// systemd credentials and before the environment.
	CredentialFile string `yaml:"credential_file"`

	// Allowed and Blocked are glob patterns over "METHOD /path".
	Allowed []string `yaml:"allowed"`
	Blocked []string `yaml:"blocked"`
}

// ReclaimerConfig configures stale file removal.
type ReclaimerConfig struct {
	Interval time.Duration `yaml:"interval"`
	MaxAge   time.Duration `yaml:"max_age"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		QueueDir: "${FSRELAY_QUEUE_DIR:-/var/spool/fsrelay}",
		LogLevel: "info",
		Submitter: SubmitterConfig{
			ListenAddress:  "127.0.0.1:8080",
			Timeout:        300 * time.Second,
			PollInterval:   300 * time.Millisecond,
			ResponseSettle: 100 * time.Millisecond,
			FragmentSettle: 50 * time.Millisecond,
			RetryDelay:     200 * time.Millisecond,
		},
		Dispatcher: DispatcherConfig{
			Upstream:         "http://localhost:11434/v1",
			UpstreamTimeout:  120 * time.Second,
			PollInterval:     300 * time.Millisecond,
			APIKeyCredential: "openai-api-key",
		},
		Reclaimer: ReclaimerConfig{
			Interval: 300 * time.Second,
			MaxAge:   time.Hour,
		},
	}
}

// Path returns flagValue if set, otherwise $FSRELAY_CONFIG. An empty
// result means no file: the defaults and flags are used alone.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(EnvVar)
}

// Load returns Default merged with the file at path, with variables
// expanded. An empty path skips the file.
func Load(path string) (*Config, error) {
	config := Default()
	if path != "" {
		if err := config.mergeFile(path); err != nil {
			return nil, err
		}
	}
	config.Expand()
	return config, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is valid YAML, so one decoder handles both once comments
		// and trailing commas are gone.
		data = jsonc.ToJSON(data)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Expand resolves ${VAR} references in path-valued fields.
func (c *Config) Expand() {
	c.QueueDir = expandVars(c.QueueDir)
	c.Dispatcher.CredentialFile = expandVars(c.Dispatcher.CredentialFile)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

func (c *Config) validateCommon() []error {
	var errs []error
	if c.QueueDir == "" {
		errs = append(errs, errors.New("queue_dir is required"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level: unknown level %q (supported: debug, info, warn, error)", c.LogLevel))
	}
	return errs
}

// ValidateSubmitter checks the fields fsrelay-submitter uses.
func (c *Config) ValidateSubmitter() error {
	errs := c.validateCommon()
	s := c.Submitter
	if s.ListenAddress == "" {
		errs = append(errs, errors.New("submitter.listen_address is required"))
	}
	errs = append(errs,
		positive("submitter.timeout", s.Timeout),
		positive("submitter.poll_interval", s.PollInterval),
		nonNegative("submitter.response_settle", s.ResponseSettle),
		nonNegative("submitter.fragment_settle", s.FragmentSettle),
		nonNegative("submitter.retry_delay", s.RetryDelay),
	)
	return errors.Join(errs...)
}

// ValidateDispatcher checks the fields fsrelay-dispatcher uses,
// including the reclaimer. The reclaimer's max_age must exceed the
// submitter timeout so that no file is removed while a submitter may
// still be waiting on it.
func (c *Config) ValidateDispatcher() error {
	errs := c.validateCommon()
	d := c.Dispatcher
	if upstream, err := url.Parse(d.Upstream); err != nil || upstream.Host == "" ||
		(upstream.Scheme != "http" && upstream.Scheme != "https") {
		errs = append(errs, fmt.Errorf("dispatcher.upstream: %q is not an http(s) URL", d.Upstream))
	}
	if d.MaxWorkers < 0 {
		errs = append(errs, fmt.Errorf("dispatcher.max_workers must not be negative, got %d", d.MaxWorkers))
	}
	errs = append(errs,
		positive("dispatcher.upstream_timeout", d.UpstreamTimeout),
		positive("dispatcher.poll_interval", d.PollInterval),
		positive("reclaimer.interval", c.Reclaimer.Interval),
		positive("reclaimer.max_age", c.Reclaimer.MaxAge),
	)
	if c.Reclaimer.MaxAge <= c.Submitter.Timeout {
		errs = append(errs, fmt.Errorf("reclaimer.max_age (%s) must exceed submitter.timeout (%s)",
			c.Reclaimer.MaxAge, c.Submitter.Timeout))
	}
	return errors.Join(errs...)
}

func positive(name string, value time.Duration) error {
	if value <= 0 {
		return fmt.Errorf("%s must be positive, got %s", name, value)
	}
	return nil
}

func nonNegative(name string, value time.Duration) error {
	if value < 0 {
		return fmt.Errorf("%s must not be negative, got %s", name, value)
	}
	return nil
}
