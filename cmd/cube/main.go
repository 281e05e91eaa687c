// Command cube rewrites logical query plans into pushed-down SQL.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/yautze/cube/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := cli.NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	stop()
	os.Exit(cli.GetExitCode(err))
}
