package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/streamcast/streamcast/internal/api"
	"github.com/streamcast/streamcast/internal/config"
	"github.com/streamcast/streamcast/internal/hub"
	"github.com/streamcast/streamcast/internal/metrics"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the broadcast server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath, port)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (defaults apply when empty)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override server.http_port")
	return cmd
}

func serve(configPath string, portOverride int) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if portOverride > 0 {
		cfg.Server.HTTPPort = portOverride
	}

	// A LevelVar so config reloads can flip the level at runtime.
	level := new(slog.LevelVar)
	level.Set(cfg.Server.Level())
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("streamcast starting",
		"http_port", cfg.Server.HTTPPort,
		"read_deadline", cfg.Server.ReadDeadline,
		"max_payload", cfg.Server.MaxPayload,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	h := hub.New(hub.Options{
		ReadDeadline: cfg.Server.ReadDeadline,
		MaxPayload:   cfg.Server.MaxPayload,
		Metrics:      m,
	})
	go h.Run(ctx)

	// Hot-reload: deadline, payload cap and log level follow the file;
	// the listen port needs a restart.
	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, func(next *config.Config) {
				level.Set(next.Server.Level())
				h.SetReadDeadline(next.Server.ReadDeadline)
				h.SetMaxPayload(next.Server.MaxPayload)
			})
			if err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: api.New(h, m, reg),
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("streamcast shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	return httpSrv.Shutdown(shutdownCtx)
}
