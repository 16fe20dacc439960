// Command casprobe runs browser-driven end-to-end scenarios against a CAS
// server and exits non-zero when a scenario fails.
// Usage: casprobe run [scenario] [--base-url https://localhost:8443/cas]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/raysh454/casprobe/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.NewRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "casprobe:", err)
		os.Exit(1)
	}
}
