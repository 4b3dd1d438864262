package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/snapframe/snapframe/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and folder watch",
	Long: `Start the HTTP/websocket API server. When auto-scan is enabled the
drop folder watch starts immediately; otherwise watching can be toggled
through the API.

Examples:
  snapframe serve                          # Defaults from .snapframe.yml
  snapframe serve --port 8080              # Override the listen port
  snapframe serve --watch-path /mnt/card   # Override the drop folder`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 5000, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().StringP("watch-path", "w", "", "Drop folder to watch")
	serveCmd.Flags().Bool("auto-scan", true, "Start watching on boot")

	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("watch.auto_scan", serveCmd.Flags().Lookup("auto-scan"))
}

func runServe(cmd *cobra.Command, args []string) error {
	// Bound here, not in init: scan shares the watch.path key and the last
	// global binding would win for both commands.
	viper.BindPFlag("watch.path", cmd.Flags().Lookup("watch-path"))

	logger := newLogger()

	b, err := newBooth(logger)
	if err != nil {
		return err
	}

	srv := server.New(b.cfg, b.pipeline, b.processor, b.store, b.compositor, b.exporter, b.bus, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info(ctx, "shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(ctx, err, "shutdown error")
		}
		cancel()
	}()

	return srv.Start(ctx)
}
