/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/userhub-api/backend/config"
	"github.com/userhub-api/backend/internal/mq"
	"github.com/userhub-api/backend/internal/tasks"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Starts the background email worker",
	Long: `Starts the background email worker. It consumes send-email jobs
from the message broker and records task results in Redis. Usage:

	backend worker
`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.LoadConfig()
		log := slog.New(slog.NewTextHandler(os.Stderr, nil))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		backend, err := mq.NewBackend(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to broker: %v\n", err)
			os.Exit(1)
		}
		queue := mq.New(backend)
		defer queue.Close()

		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
		})
		defer rdb.Close()

		worker := tasks.NewWorker(queue, tasks.NewResultStore(rdb), log)
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "worker error: %v\n", err)
			os.Exit(1)
		}
		log.Info("email worker stopped")
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
