package app

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/raysh454/casprobe/internal/browser"
	"github.com/raysh454/casprobe/internal/cas"
	"github.com/raysh454/casprobe/internal/webclient"
)

// EnvPrefix prefixes every environment override, e.g. CASPROBE_BASE_URL or
// CASPROBE_BROWSER_HEADLESS.
const EnvPrefix = "CASPROBE"

// Config is the runtime configuration of a casprobe run.
type Config struct {
	// BaseURL is the CAS server root including its context path.
	BaseURL  string `mapstructure:"base_url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	LogLevel string `mapstructure:"log_level"`

	// StorePath is the sqlite run history. Empty disables history.
	StorePath string `mapstructure:"store_path"`
	// HistoryRetention prunes older runs when the store is opened. Zero keeps everything.
	HistoryRetention time.Duration `mapstructure:"history_retention"`

	// StepTimeout bounds each scenario step. Zero leaves steps bounded only
	// by their own navigation and action timeouts.
	StepTimeout time.Duration `mapstructure:"step_timeout"`

	WebClient webclient.Config `mapstructure:"webclient"`
	Browser   browser.Config   `mapstructure:"browser"`
}

// DefaultConfig returns the configuration used against a local CAS on :8443.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "https://localhost:8443/cas",
		Username:    "casuser",
		Password:    "Mellon",
		LogLevel:    "info",
		StepTimeout: 60 * time.Second,
		WebClient:   webclient.DefaultConfig(),
		Browser:     cas.BrowserOptions(),
	}
}

// Load reads configuration from path (optional, any format viper knows)
// and CASPROBE_* environment variables on top of DefaultConfig.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("username", d.Username)
	v.SetDefault("password", d.Password)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("store_path", d.StorePath)
	v.SetDefault("history_retention", d.HistoryRetention)
	v.SetDefault("step_timeout", d.StepTimeout)

	v.SetDefault("webclient.timeout", d.WebClient.Timeout)
	v.SetDefault("webclient.insecure_skip_verify", d.WebClient.InsecureSkipVerify)
	v.SetDefault("webclient.user_agent", d.WebClient.UserAgent)

	b := d.Browser
	v.SetDefault("browser.headless", b.Headless)
	v.SetDefault("browser.ignore_cert_errors", b.IgnoreCertErrors)
	v.SetDefault("browser.no_sandbox", b.NoSandbox)
	v.SetDefault("browser.exec_path", b.ExecPath)
	v.SetDefault("browser.window_width", b.WindowWidth)
	v.SetDefault("browser.window_height", b.WindowHeight)
	v.SetDefault("browser.virtual_authenticator", b.VirtualAuthenticator)
	v.SetDefault("browser.navigation_timeout", b.NavigationTimeout)
	v.SetDefault("browser.action_timeout", b.ActionTimeout)
	v.SetDefault("browser.idle_after", b.IdleAfter)
	v.SetDefault("browser.idle_timeout", b.IdleTimeout)
}

// Validate reports configuration that cannot produce a meaningful run.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.BaseURL)
	switch {
	case strings.TrimSpace(c.BaseURL) == "":
		errs = append(errs, errors.New("base_url is required"))
	case err != nil:
		errs = append(errs, fmt.Errorf("base_url: %w", err))
	case u.Scheme != "http" && u.Scheme != "https", u.Host == "":
		errs = append(errs, fmt.Errorf("base_url %q must be an absolute http(s) URL", c.BaseURL))
	}

	if c.Username == "" {
		errs = append(errs, errors.New("username is required"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}

	for name, d := range map[string]time.Duration{
		"step_timeout":               c.StepTimeout,
		"history_retention":          c.HistoryRetention,
		"webclient.timeout":          c.WebClient.Timeout,
		"browser.navigation_timeout": c.Browser.NavigationTimeout,
		"browser.action_timeout":     c.Browser.ActionTimeout,
		"browser.idle_after":         c.Browser.IdleAfter,
		"browser.idle_timeout":       c.Browser.IdleTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", name, d))
		}
	}

	return errors.Join(errs...)
}
