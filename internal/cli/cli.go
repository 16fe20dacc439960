// Package cli builds the casprobe command tree.
package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/raysh454/casprobe/internal/app"
	"github.com/raysh454/casprobe/internal/logging"
	"github.com/raysh454/casprobe/internal/scenario"
)

// ErrScenarioFailed is returned by the run command when the scenario did not pass.
var ErrScenarioFailed = errors.New("scenario failed")

// Options are the flags shared by every subcommand.
type Options struct {
	ConfigPath string
	StorePath  string
	LogLevel   string
	BaseURL    string
	Headless   bool
	VirtualKey bool

	// Extra is appended to the application options, mostly for tests.
	Extra []app.Option
}

// NewRootCmd returns the casprobe command. Human-readable output goes to
// out; logs go to errOut.
func NewRootCmd(out, errOut io.Writer, extra ...app.Option) *cobra.Command {
	opts := &Options{Extra: extra}

	root := &cobra.Command{
		Use:           "casprobe",
		Short:         "Browser-driven end-to-end checks for CAS login flows",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.ConfigPath, "config", "", "config file (YAML, JSON or TOML)")
	pf.StringVar(&opts.StorePath, "store", "", "sqlite run history path (overrides store_path)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level (overrides log_level)")

	root.AddCommand(newRunCmd(opts), newListCmd(), newHistoryCmd(opts))
	return root
}

func newRunCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [scenario]",
		Short: "Run a scenario (default " + scenario.MFAU2FRegister + ")",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := scenario.MFAU2FRegister
			if len(args) == 1 {
				name = args[0]
			}

			a, err := opts.application(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Run(cmd.Context(), name)
			if res != nil {
				printResult(cmd.OutOrStdout(), res)
			}
			if err != nil {
				if res == nil {
					return err
				}
				return fmt.Errorf("%w: %v", ErrScenarioFailed, err)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.BaseURL, "base-url", "", "CAS base URL including context path (overrides base_url)")
	f.BoolVar(&opts.Headless, "headless", true, "run Chrome headless (overrides browser.headless)")
	f.BoolVar(&opts.VirtualKey, "virtual-authenticator", false, "attach an emulated U2F key to each page (refused by "+scenario.MFAU2FRegister+")")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range scenario.Names() {
				sc, err := scenario.Lookup(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%d steps\t%s\n", sc.Name, len(sc.Steps), sc.Description)
			}
			return w.Flush()
		},
	}
}

func newHistoryCmd(opts *Options) *cobra.Command {
	var (
		limit    int
		only     string
		artifact string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs from the run history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.application(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if artifact != "" {
				html, err := a.Artifact(cmd.Context(), artifact)
				if err != nil {
					return err
				}
				if html == "" {
					return fmt.Errorf("run %s has no captured page", artifact)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), html)
				return err
			}

			runs, err := a.History(cmd.Context(), only, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSCENARIO\tSTATUS\tSTARTED\tDURATION\tERROR")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.RunID, r.Scenario, r.Status,
					r.StartedAt.Local().Format(time.DateTime),
					r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond),
					r.Error)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show")
	cmd.Flags().StringVar(&only, "scenario", "", "only show runs of this scenario")
	cmd.Flags().StringVar(&artifact, "artifact", "", "print the page HTML captured when this run failed")
	return cmd
}

// application loads configuration, applies flag overrides and wires an Application.
func (o *Options) application(cmd *cobra.Command) (*app.Application, error) {
	cfg, err := app.Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if o.StorePath != "" {
		cfg.StorePath = o.StorePath
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if f := flags.Lookup("base-url"); f != nil && f.Changed {
		cfg.BaseURL = o.BaseURL
	}
	if f := flags.Lookup("headless"); f != nil && f.Changed {
		cfg.Browser.Headless = o.Headless
	}
	if f := flags.Lookup("virtual-authenticator"); f != nil && f.Changed {
		cfg.Browser.VirtualAuthenticator = o.VirtualKey
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, "casprobe")
	return app.NewApplication(cfg, logger, o.Extra...)
}

func printResult(w io.Writer, res *scenario.Result) {
	for _, s := range res.Steps {
		line := fmt.Sprintf("  %-8s %-26s %s", s.Status, s.Name, s.Duration.Round(time.Millisecond))
		if s.Error != "" {
			line += "  " + s.Error
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w, scenario.Describe(res))
}
