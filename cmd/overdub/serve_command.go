package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"overdub/internal/api"
	"overdub/internal/artifacts"
	"overdub/internal/daemon"
	"overdub/internal/dubbing"
	"overdub/internal/events"
	"overdub/internal/ipc"
	"overdub/internal/logging"
	"overdub/internal/notifications"
	"overdub/internal/preflight"
	"overdub/internal/queue"
	"overdub/internal/workflow"
)

func newServeCommand(cmdCtx *commandContext) *cobra.Command {
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the overdub daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !skipPreflight {
				results := preflight.RunAll(ctx, cfg)
				for _, result := range results {
					marker := "ok"
					if !result.Passed {
						marker = "FAIL"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", marker, result.Name, result.Detail)
				}
				if !preflight.AllPassed(results) {
					return fmt.Errorf("preflight checks failed; fix the issues above or rerun with --skip-preflight")
				}
			}

			logger, err := logging.NewForDir(cfg.Paths.LogDir, cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}

			store, err := queue.Open(cfg)
			if err != nil {
				return err
			}
			artifactStore, err := artifacts.New(cfg)
			if err != nil {
				store.Close()
				return err
			}

			bus := events.NewBus(0)
			notifier := notifications.NewService(cfg)
			jobs := api.NewJobService(cfg, store, artifactStore, bus, notifier, logger)
			stages := dubbing.Pipeline(cfg, artifactStore, logger)
			manager := workflow.NewManager(cfg, store, artifactStore, bus, notifier, logger, stages)

			d, err := daemon.New(cfg, store, logger, manager, jobs)
			if err != nil {
				store.Close()
				return err
			}
			defer d.Close()

			if err := d.Start(ctx); err != nil {
				return err
			}

			ipcServer, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logger)
			if err != nil {
				return err
			}
			ipcServer.Serve()
			defer ipcServer.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "overdub daemon listening on %s (socket %s)\n",
				d.APIAddr(), cfg.Paths.SocketPath)

			<-ctx.Done()
			fmt.Fprintln(cmd.OutOrStdout(), "shutting down")
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip environment checks before starting")
	return cmd
}
