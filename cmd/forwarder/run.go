package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ads_forwarder/internal/app"
	"ads_forwarder/internal/config"
	"ads_forwarder/internal/logger"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 90 * time.Second

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the forwarding scheduler (and the admin bot when TELEGRAM_TOKEN is set)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Init()

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			application, err := app.New(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := application.Start(ctx); err != nil {
				application.Close(context.Background())
				return err
			}

			<-ctx.Done()
			logger.L().Info("Shutdown signal received, waiting for running cycles...")

			// 等待正在执行的周期结束（单个周期最长为目标数 × 发送超时）
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := application.Close(shutdownCtx); err != nil {
				logger.L().Errorf("Shutdown failed: %v", err)
				return err
			}
			logger.L().Info("Forwarder stopped")
			return nil
		},
	}
}
