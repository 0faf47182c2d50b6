package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
)

func newApp(stdout io.Writer) *cli.Command {
	opts := &options{}
	return &cli.Command{
		Name:   "gpuprims",
		Usage:  "Run parallel-primitive kernels on a compute device",
		Writer: stdout,
		Flags:  opts.flags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(ctx, cmd, opts, stdout)
		},
	}
}

func main() {
	app := newApp(os.Stdout)
	if err := app.Run(context.Background(), filterArgs(os.Args, app.Flags)); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}
