package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	uimorn "github.com/venikman/ui-morn"
	"github.com/venikman/ui-morn/internal/presentation/tui"
	httpadapter "github.com/venikman/ui-morn/pkg/adapters/http"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts the engine and serves task streams under /v1, the MCP JSON-RPC
endpoint under /mcp, and /health, /info and /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Addr = addr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine, closeMirror, err := newEngine(ctx, cfg, logger)
		if err != nil {
			return err
		}

		var origins []string
		if o, _ := cmd.Flags().GetStringSlice("allow-origin"); len(o) > 0 {
			origins = o
		}
		handler := httpadapter.NewHandler(engine,
			httpadapter.WithHeartbeat(cfg.Stream.Heartbeat),
			httpadapter.WithGatherer(engine.Gatherer()),
			httpadapter.WithAllowedOrigins(origins...),
			httpadapter.WithLogger(logger),
		)
		srv := &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		if tui.IsTerminal(os.Stdout) {
			tui.PrintBanner(os.Stdout, uimorn.Version)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("server listening", "addr", cfg.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()

			// Workers end first so open task streams see their terminal event.
			errEngine := engine.Shutdown(shutdownCtx)
			errServer := srv.Shutdown(shutdownCtx)
			if errServer != nil {
				logger.Warn("graceful shutdown incomplete, closing connections", "error", errServer)
				errServer = srv.Close()
			}
			return errors.Join(errEngine, errServer, closeMirror())
		})

		if err := g.Wait(); err != nil {
			return err
		}
		logger.Info("server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Listen address (overrides config addr)")
	serveCmd.Flags().StringSlice("allow-origin", nil, "Allowed CORS origins (default: any)")
}
