package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cronos/internal/api"
	"cronos/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveAddr string

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session and messaging HTTP API",
	Long: `Starts the HTTP API on server.addr (or --addr).

Routes:
  GET    /healthz
  GET    /sessions
  POST   /sessions/:identity[?use_vpn=true]
  GET    /sessions/:identity/qr
  DELETE /sessions/:identity
  POST   /sessions/:identity/logout
  POST   /sessions/:identity/destroy
  PUT    /sessions/:identity/proxy
  POST   /sessions/:identity/proxy/rotate
  POST   /messages
  GET    /messages
  GET|POST|DELETE /proxies`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.close()

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	deps := api.Deps{
		Config:   cfg,
		Manager:  a.manager,
		Sender:   a.sender,
		Rotator:  a.rotator,
		Strategy: a.strategy,
		Logger:   logging.Get(logging.CategoryAPI),
	}
	if a.journal != nil {
		deps.History = a.journal
	}

	// Session creation blocks for up to the login wait plus navigation.
	writeTimeout := cfg.GetLoginWait() + cfg.GetNavigationTimeout() + 30*time.Second

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
	return nil
}
