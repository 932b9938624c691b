package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/websites-starter/wsbuild/internal/build"
	"github.com/websites-starter/wsbuild/internal/orchestrator"
	"github.com/websites-starter/wsbuild/internal/tasks"
)

func (a *app) newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "watch",
		Aliases: []string{"w"},
		Short:   "Build everything, then rebuild on change",
		Long: `Run a full build, then watch the theme sources and rerun only the
affected tasks when a file changes.

With --sync the site is proxied on --port and every connected browser is
reloaded after a rebuild; style changes are injected without a page reload.

Examples:
  wsbuild watch                               # Rebuild on change
  wsbuild watch --sync                        # Proxy http://localhost/ on :3000
  wsbuild watch --sync=http://starter.test/   # Proxy another site
  wsbuild watch --save --log1                 # Keep outputs, log each stage`,
		Args: cobra.NoArgs,
		RunE: a.runWatch,
	}
}

func (a *app) runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := a.load(cmd)
	if err != nil {
		return err
	}

	builder, err := build.NewBuilder(cfg, logger)
	if err != nil {
		return err
	}
	runner := tasks.NewRunner(logger)
	builder.Register(runner)

	session, err := orchestrator.NewSession(cfg, runner, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return session.Run(ctx)
}
