// Command casserver runs a local stand-in for a CAS server with the U2F
// multi-factor provider enabled, for running the casprobe scenarios without a
// real deployment.
// Usage: go run ./cmd/casserver [--addr :8443] [--htpasswd users.htpasswd]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/raysh454/casprobe/internal/casserver"
	"github.com/raysh454/casprobe/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("CASSERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	def := casserver.DefaultConfig()
	cmd := &cobra.Command{
		Use:           "casserver",
		Short:         "Serve a local CAS login with U2F multi-factor authentication",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := def
			cfg.Addr = v.GetString("addr")
			cfg.ContextPath = v.GetString("context-path")
			cfg.TLS = !v.GetBool("plain-http")
			cfg.CertFile = v.GetString("cert")
			cfg.KeyFile = v.GetString("key")
			cfg.HtpasswdFile = v.GetString("htpasswd")
			cfg.RPID = v.GetString("rp-id")
			cfg.RPOrigins = v.GetStringSlice("rp-origin")

			logger := logging.NewLogger(os.Stdout, v.GetString("log-level"), "casserver")
			return serve(cmd.Context(), cfg, logger)
		},
	}

	f := cmd.Flags()
	f.String("addr", def.Addr, "listen address")
	f.String("context-path", def.ContextPath, "path prefix of every route")
	f.Bool("plain-http", false, "serve plain HTTP instead of TLS")
	f.String("cert", "", "TLS certificate file (self-signed when empty)")
	f.String("key", "", "TLS key file")
	f.String("htpasswd", "", "bcrypt htpasswd file (defaults to casuser/Mellon)")
	f.String("rp-id", def.RPID, "WebAuthn relying party ID")
	f.StringSlice("rp-origin", nil, "allowed WebAuthn origins (request origin when empty)")
	f.String("log-level", "info", "log level")
	_ = v.BindPFlags(f)

	return cmd
}

func serve(ctx context.Context, cfg casserver.Config, logger logging.Logger) error {
	server, err := casserver.NewServer(cfg, logger)
	if err != nil {
		return err
	}

	var g run.Group
	{
		term := make(chan os.Signal, 1)
		signal.Notify(term, os.Interrupt, syscall.SIGTERM)
		cancel := make(chan struct{})
		g.Add(
			func() error {
				select {
				case sig := <-term:
					logger.Info("received signal, shutting down", logging.F("signal", sig.String()))
				case <-ctx.Done():
				case <-cancel:
				}
				return nil
			},
			func(error) {
				signal.Stop(term)
				close(cancel)
			},
		)
	}
	{
		g.Add(
			server.ListenAndServe,
			func(error) {
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.Warn("shutdown", logging.Err(err))
				}
			},
		)
	}
	return g.Run()
}
