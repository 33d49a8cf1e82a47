// Command server runs jobtrail's ops/health HTTP surface alongside the
// Scheduler's periodic jobs, the long-running counterpart to the
// jobtrail CLI's one-shot commands. Replaces the teacher's cmd/api once
// its REST modules were retired (see DESIGN.md).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kazimov/jobtrail/internal/bootstrap"
	"github.com/kazimov/jobtrail/internal/config"
	"github.com/kazimov/jobtrail/internal/platform/httpserver"
	"github.com/kazimov/jobtrail/internal/platform/sentryreport"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bootstrap:", err)
		os.Exit(1)
	}
	defer c.Close()
	defer sentryreport.Flush(2 * time.Second)

	c.Scheduler.Run(ctx)

	engine := httpserver.New(c.Store, c.Log, cfg.Sentry.DSN != "")
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: engine,
	}

	go func() {
		c.Log.Info("ops server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.Log.Error("ops server failed", zap.Error(err))
			sentryreport.Report(err, map[string]string{"surface": "server"})
		}
	}()

	<-ctx.Done()
	c.Log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		c.Log.Error("graceful shutdown failed", zap.Error(err))
	}
}
