package webclient

import "time"

// Config controls the net/http backed client.
type Config struct {
	// Timeout bounds a whole request including reading the body.
	Timeout time.Duration `mapstructure:"timeout"`

	// InsecureSkipVerify disables TLS certificate checks. Test deployments
	// of CAS run on self-signed certificates.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`

	// UserAgent is sent on every request when non-empty.
	UserAgent string `mapstructure:"user_agent"`
}

// DefaultConfig returns the settings used against a local CAS deployment.
func DefaultConfig() Config {
	return Config{
		Timeout:            30 * time.Second,
		InsecureSkipVerify: true,
		UserAgent:          "casprobe",
	}
}
