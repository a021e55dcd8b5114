package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/adalundhe/relay/core/config"
	"github.com/spf13/cobra"
)

var serveWorkers int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the request-processing engine",
	Long: `Start the queue engine and process consultation requests until
interrupted. The config file is watched and reloaded on change.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&serveWorkers, "workers", 0, "worker count (0 uses the configured default)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	application, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer application.close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	watcher, err := config.NewWatcher(application.manager, application.logger)
	if err != nil {
		application.logger.Warn("config watch unavailable", "error", err)
	} else {
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	application.engine.Start(serveWorkers)
	application.logger.Info("relay serving",
		"config", configPath,
		"handlers", application.engine.HandlerTypes(),
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		application.logger.Info("shutting down", "signal", s.String())
	case <-ctx.Done():
	}
	return nil
}
