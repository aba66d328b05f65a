package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-moments/internal/clustering"
	"github.com/kozaktomas/photo-moments/internal/config"
	"github.com/kozaktomas/photo-moments/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Photo Moments web server.
The server exposes the clustering job, streams clusters as they are computed
over server-sent events and saves clusters as PhotoPrism albums.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default WEB_PORT or 8080)")
	serveCmd.Flags().String("host", "", "Host to bind to (default WEB_HOST)")
	serveCmd.Flags().Int("stream-retries", 0, "How often a cluster stream resubscribes after a failed run (0 = until the retry window closes)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()
	defer a.logUsage()

	retry := clustering.RetryOptions{MaxRetries: uint64(max(mustGetInt(cmd, "stream-retries"), 0))}
	server := web.NewServer(cfg, a.organizer, retry)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error during shutdown")
		}
	}()

	log.Info().Msgf("Photo Moments listening on http://%s:%d", cfg.Web.Host, cfg.Web.Port)
	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
