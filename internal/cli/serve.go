package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sprite-ai/redline/internal/api"
	"github.com/sprite-ai/redline/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP server exposing the redline review engine.

Endpoints:
  GET  /health           Health check
  POST /api/occurrences  Find every occurrence of a string
  POST /api/word         Resolve the word at an offset
  POST /api/render       Split text into plain and highlighted segments
  POST /api/page         Map an offset to its page
  POST /api/detect       Run the local rule detector
  POST /api/analyze      Analyze an uploaded PDF via the service
  POST /api/generate     Generate a redacted PDF via the service
  GET  /api/ws           WebSocket for interactive review sessions`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("listen", "l", "", "address to listen on (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	listen, _ := cmd.Flags().GetString("listen")
	if listen == "" {
		listen = cfg.Listen
	}

	srv := api.New(listen,
		api.WithService(newClient()),
		api.WithUndoWindow(cfg.UndoWindow),
		api.WithMaxUpload(cfg.MaxUploadBytes),
		api.WithDenyList(cfg.DenyList),
		api.WithLogger(logging.Component("api")),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
