// Package config loads taskdesk settings from defaults, a YAML file and
// TASKDESK_* environment variables, in increasing order of precedence.
// Command-line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"gopkg.in/yaml.v3"

	"github.com/jmcleod/taskdesk/api"
)

const (
	appName  = "taskdesk"
	fileName = "config.yaml"

	envPrefix = "TASKDESK_"
)

var profilePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Config holds runtime settings for the CLI.
type Config struct {
	APIURL     string        `yaml:"api_url"`     // API root, e.g. http://localhost:5000/api
	DataDir    string        `yaml:"data_dir"`    // directory holding the credential database and key
	Profile    string        `yaml:"profile"`     // credential namespace within the data directory
	LogLevel   string        `yaml:"log_level"`   // debug, info, warn or error
	LogFormat  string        `yaml:"log_format"`  // json or text
	Timeout    time.Duration `yaml:"timeout"`     // per-request timeout
	RateLimit  float64       `yaml:"rate_limit"`  // requests per second, 0 disables
	RateBurst  int           `yaml:"rate_burst"`  // limiter burst
	SealTokens bool          `yaml:"seal_tokens"` // encrypt the durable token at rest
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		APIURL:     api.DefaultBaseURL,
		DataDir:    defaultDir(),
		Profile:    "default",
		LogLevel:   "warn",
		LogFormat:  "text",
		Timeout:    30 * time.Second,
		RateLimit:  10,
		RateBurst:  5,
		SealTokens: true,
	}
}

// DefaultPath is the config file read when none is given.
func DefaultPath() string {
	return filepath.Join(defaultDir(), fileName)
}

func defaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "." + appName
	}
	return filepath.Join(dir, appName)
}

// Load reads path over the defaults and then applies the environment. An
// empty path reads DefaultPath, which may be absent; an explicit path must
// exist.
func Load(path string) (Config, error) {
	cfg := Defaults()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.APIURL = firstNonEmpty(os.Getenv(envPrefix+"API_URL"), c.APIURL)
	c.DataDir = firstNonEmpty(os.Getenv(envPrefix+"DATA_DIR"), c.DataDir)
	c.Profile = firstNonEmpty(os.Getenv(envPrefix+"PROFILE"), c.Profile)
	c.LogLevel = firstNonEmpty(os.Getenv(envPrefix+"LOG_LEVEL"), c.LogLevel)
	c.LogFormat = firstNonEmpty(os.Getenv(envPrefix+"LOG_FORMAT"), c.LogFormat)

	var errs []error
	if v := os.Getenv(envPrefix + "TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		errs = append(errs, envError("TIMEOUT", err))
		c.Timeout = d
	}
	if v := os.Getenv(envPrefix + "RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		errs = append(errs, envError("RATE_LIMIT", err))
		c.RateLimit = f
	}
	if v := os.Getenv(envPrefix + "RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		errs = append(errs, envError("RATE_BURST", err))
		c.RateBurst = n
	}
	if v := os.Getenv(envPrefix + "SEAL_TOKENS"); v != "" {
		b, err := strconv.ParseBool(v)
		errs = append(errs, envError("SEAL_TOKENS", err))
		c.SealTokens = b
	}
	return errors.Join(errs...)
}

func envError(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s%s: %w", envPrefix, name, err)
}

// Validate checks the settings for consistency.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.APIURL, validation.Required, is.URL),
		validation.Field(&c.DataDir, validation.Required),
		validation.Field(&c.Profile, validation.Required, validation.Match(profilePattern)),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.LogFormat, validation.In("json", "text")),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.RateLimit, validation.Min(0.0)),
		validation.Field(&c.RateBurst, validation.Min(0)),
	)
}

// DatabasePath is the bbolt file holding durable credentials.
func (c Config) DatabasePath() string {
	return filepath.Join(c.DataDir, appName+".db")
}

// KeyPath is the master key file used when SealTokens is set.
func (c Config) KeyPath() string {
	return filepath.Join(c.DataDir, appName+".key")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
