package browser

import "time"

// Config describes how Chrome is launched and how long page actions may take.
type Config struct {
	Headless         bool   `mapstructure:"headless"`
	IgnoreCertErrors bool   `mapstructure:"ignore_cert_errors"`
	NoSandbox        bool   `mapstructure:"no_sandbox"`
	ExecPath         string `mapstructure:"exec_path"`
	WindowWidth      int    `mapstructure:"window_width"`
	WindowHeight     int    `mapstructure:"window_height"`

	// VirtualAuthenticator attaches an emulated U2F USB key to every new page.
	VirtualAuthenticator bool `mapstructure:"virtual_authenticator"`

	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout"`

	// IdleAfter is how long the network must stay quiet before a navigation
	// counts as settled. IdleTimeout caps that wait; hitting it is not an error.
	IdleAfter   time.Duration `mapstructure:"idle_after"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// DefaultConfig mirrors the options used for CAS browser scenarios: headless,
// self-signed certificates accepted, full HD window.
func DefaultConfig() Config {
	return Config{
		Headless:          true,
		IgnoreCertErrors:  true,
		NoSandbox:         true,
		WindowWidth:       1920,
		WindowHeight:      1080,
		NavigationTimeout: 30 * time.Second,
		ActionTimeout:     10 * time.Second,
		IdleAfter:         500 * time.Millisecond,
		IdleTimeout:       5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WindowWidth <= 0 || c.WindowHeight <= 0 {
		c.WindowWidth, c.WindowHeight = d.WindowWidth, d.WindowHeight
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = d.NavigationTimeout
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = d.ActionTimeout
	}
	if c.IdleAfter <= 0 {
		c.IdleAfter = d.IdleAfter
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	return c
}
