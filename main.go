/*
Package main is the entry point for the sgrchat service.

The default command starts the HTTP server, which relays chat turns to an
OpenAI-compatible agent backend and parses its streamed agent state into an
answer, a thoughts trace and follow-up questions. The replay command runs a
recorded SSE stream through the same parser.

The server follows these initialization steps:
1. Load configuration from environment variables
2. Initialize structured logging
3. Create the core server instance with dependencies
4. Set up HTTP middleware (logging, recovery, CORS)
5. Register API routes
6. Start the server with graceful shutdown support
*/
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"sgrchat/core"
	"sgrchat/parser"
)

func main() {
	root := &cobra.Command{
		Use:          "sgrchat",
		Short:        "Chat gateway for streaming SGR agents",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	})
	root.AddCommand(newReplayCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// serve runs the HTTP server until SIGINT or SIGTERM.
func serve(ctx context.Context) error {
	config := core.LoadConfig()

	logger := core.InitializeLogger(config)
	logger.Info("Starting sgrchat server")

	server, err := core.NewServer(config, logger)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	defer server.Close()

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server.RegisterRoutes(e)

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("port", config.Port).Info("Starting server")
		if err := e.Start(fmt.Sprintf(":%s", config.Port)); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("start server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")

	// In-flight streams get 30 seconds to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to gracefully shutdown server")
		return err
	}
	logger.Info("Server shutdown complete")
	return nil
}

func newReplayCommand() *cobra.Command {
	var (
		locale  string
		marker  string
		updates bool
	)

	cmd := &cobra.Command{
		Use:   "replay [file]",
		Short: "Parse a recorded agent SSE stream and print the final message",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open stream: %w", err)
				}
				defer f.Close()
				in = f
			}

			report, err := core.ReplayStream(in, cmd.OutOrStdout(), core.ReplayOptions{
				Locale:         parser.MatchLocale(locale, parser.Russian),
				TerminalMarker: marker,
				Updates:        updates,
			})
			if err != nil {
				return err
			}
			if !report.Completed {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: stream ended without [DONE]")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&locale, "locale", "ru", "Label locale (en, ru or an Accept-Language value)")
	cmd.Flags().StringVar(&marker, "marker", parser.DefaultTerminalMarker, "Terminal marker that freezes the answer, empty disables")
	cmd.Flags().BoolVar(&updates, "updates", false, "Print every intermediate update as a JSON line")
	return cmd
}
