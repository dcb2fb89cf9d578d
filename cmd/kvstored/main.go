package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"kvstore/core"
	"kvstore/internal/server"
)

func main() {
	var (
		path          string
		addr          string
		cacheCapacity int
	)

	rootCmd := &cobra.Command{
		Use:          "kvstored",
		Short:        "Append-only key-value store server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stdout))
			registry := prometheus.NewRegistry()

			engine, err := core.Open(core.Options{
				Path:          path,
				CacheCapacity: cacheCapacity,
				Logger:        logger,
				Registerer:    registry,
			})
			if err != nil {
				return err
			}
			defer engine.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(logger, engine, addr)
			if err := srv.ListenAndServe(ctx); err != nil {
				level.Error(logger).Log("msg", "server failed", "err", err)
				return err
			}

			level.Info(logger).Log("msg", "server stopped")
			return nil
		},
	}

	rootCmd.Flags().StringVar(&path, "path", "data.log", "log file path")
	rootCmd.Flags().StringVar(&addr, "addr", "127.0.0.1:5000", "listen address")
	rootCmd.Flags().IntVar(&cacheCapacity, "cache-capacity", 1000, "recency cache capacity")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
