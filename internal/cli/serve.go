package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpserver "lpar_inventory/internal/http"
	"lpar_inventory/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func NewServeCommand() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.log.Sync()
			if port == "" {
				port = e.cfg.AppPort
			}
			return runServe(cmd, e, port)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (defaults to APP_PORT)")
	return cmd
}

func runServe(cmd *cobra.Command, e *env, port string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gdb, err := e.open(cmd)
	if err != nil {
		return err
	}

	m := metrics.New(e.cfg.MetricsPrefix)
	if err := m.InstrumentDB(gdb); err != nil {
		return err
	}
	e.log.Info("Prometheus metrics initialized", zap.String("metrics_prefix", e.cfg.MetricsPrefix))

	if e.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpserver.NewRouter(gdb, e.log, m, e.cfg.JWTSecret),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		e.log.Info("Server listening", zap.String("port", port), zap.String("environment", e.cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	e.log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
