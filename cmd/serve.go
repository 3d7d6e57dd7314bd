package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crm-dedupe/internal/dashboard"
	"github.com/sells-group/crm-dedupe/internal/monitoring"
	"github.com/sells-group/crm-dedupe/internal/pipeline"
	"github.com/sells-group/crm-dedupe/internal/store"
)

var servePort int

// shutdownTimeout bounds how long in-flight uploads may finish on exit.
const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review dashboard API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort > 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		metrics := monitoring.NewMetrics()
		p, err := initPipeline(pipeline.WithRecorder(metrics))
		if err != nil {
			return err
		}

		checker := monitoring.NewChecker(
			monitoring.NewCollector(st),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
			monitoring.WithSnapshotMetrics(metrics),
		)
		go checker.Run(ctx)

		srv := newServer(p, st, metrics, checker)
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			return eris.Wrap(err, "server listen")
		}

		zap.L().Info("starting server", zap.String("addr", srv.Addr))
		return serveUntilDone(ctx, srv, ln, shutdownTimeout)
	},
}

// serveUntilDone serves on ln until ctx is cancelled, then drains in-flight
// requests for up to timeout. It returns only after Shutdown has finished.
func serveUntilDone(ctx context.Context, srv *http.Server, ln net.Listener, timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server serve")
	}
	<-done
	return nil
}

// newServer builds the dashboard HTTP server from the loaded config.
func newServer(p *pipeline.Pipeline, st store.Store, metrics *monitoring.Metrics, health dashboard.HealthSource) *http.Server {
	api := dashboard.New(p, st, metrics, dashboard.Options{
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxSessions:    cfg.Server.MaxSessions,
		ResultTTL:      time.Duration(cfg.Server.ResultTTLMins) * time.Minute,
		Encoding:       cfg.Dedupe.Encoding,
		Health:         health,
	})
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
