package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mudler/LocalCircle/core/catchup"
	"github.com/mudler/LocalCircle/webui"
	"github.com/mudler/xlog"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the tick scheduler and the retention loop",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	sched, err := rt.scheduler()
	if err != nil {
		return err
	}
	retention, err := catchup.NewRetention(rt.engine.CatchUp(), rt.cfg.CatchUp.RetentionCron)
	if err != nil {
		return err
	}

	if report, err := rt.engine.Resume(ctx); err != nil {
		xlog.Error("Catch-up on start failed", "error", err)
	} else if report.Ran {
		xlog.Info("Caught up on start", "elapsed", report.Elapsed, "groups", len(report.Groups))
	}

	sched.Start(ctx)
	defer sched.Stop()
	retention.Start(ctx)
	defer retention.Stop()

	app := webui.NewApp(
		webui.WithEngine(rt.engine),
		webui.WithBroadcaster(rt.broadcaster),
		webui.WithGatherer(rt.registry),
		webui.WithApiKeys(rt.cfg.Server.APIKeys...),
	)

	errc := make(chan error, 1)
	go func() {
		xlog.Info("Listening", "address", rt.cfg.Server.Listen)
		errc <- app.Listen(rt.cfg.Server.Listen)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	xlog.Info("Shutting down")
	return app.Shutdown()
}

func tickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one scheduler tick and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				sched, err := rt.scheduler()
				if err != nil {
					return err
				}
				report, err := sched.Tick(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "private: %d, reactive: %d, groups: %d, reconciled: %d, skipped: %d\n",
					len(report.Private), len(report.Reactive), len(report.Groups), len(report.Reconciled), report.Skipped)
				return nil
			})
		},
	}
}

func catchUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catchup",
		Short: "Simulate what happened in the groups while the user was away",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				report, err := rt.engine.Resume(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !report.Ran {
					fmt.Fprintf(out, "Nothing to catch up (away for %s).\n", report.Elapsed)
					return nil
				}
				for _, g := range report.Groups {
					if g.Err != nil {
						fmt.Fprintf(out, "%s: skipped (%v)\n", g.GroupID, g.Err)
						continue
					}
					fmt.Fprintf(out, "%s: %d events, %d relationship changes\n", g.GroupID, len(g.Events), len(g.Changes))
					for _, e := range g.Events {
						fmt.Fprintf(out, "  - %s\n", e)
					}
				}
				return nil
			})
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete offline summaries older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				n, err := rt.engine.CatchUp().Sweep(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d summaries.\n", n)
				return nil
			})
		},
	}
}

func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) error) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}
