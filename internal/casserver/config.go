package casserver

import "time"

// Config holds configuration for the local CAS stand-in.
type Config struct {
	// Addr is the listen address.
	Addr string `mapstructure:"addr"`

	// ContextPath is the prefix every route lives under, "/cas" like a stock deployment.
	ContextPath string `mapstructure:"context_path"`

	// TLS serves HTTPS. With CertFile/KeyFile empty a self-signed
	// certificate for localhost is generated at startup.
	TLS      bool   `mapstructure:"tls"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`

	// HtpasswdFile is a bcrypt htpasswd file. When empty, Users is used.
	HtpasswdFile string            `mapstructure:"htpasswd_file"`
	Users        map[string]string `mapstructure:"users"`

	// RPID and RPOrigins configure the WebAuthn relying party. Empty
	// RPOrigins means "the origin the request came in on".
	RPID          string   `mapstructure:"rp_id"`
	RPDisplayName string   `mapstructure:"rp_display_name"`
	RPOrigins     []string `mapstructure:"rp_origins"`

	// SessionTTL bounds how long a pending U2F ceremony stays valid.
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// DefaultConfig returns a Config matching the CI deployment the scenarios target.
func DefaultConfig() Config {
	return Config{
		Addr:          ":8443",
		ContextPath:   "/cas",
		TLS:           true,
		Users:         map[string]string{"casuser": "Mellon"},
		RPID:          "localhost",
		RPDisplayName: "CAS",
		SessionTTL:    5 * time.Minute,
	}
}
