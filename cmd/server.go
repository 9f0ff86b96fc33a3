package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reelforge/app/config"
	"reelforge/app/database"
	"reelforge/app/logger"
	"reelforge/app/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the server",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		// Create the logger
		log := logger.New(cfg.Log)
		defer log.Sync()

		// Initialize the database
		if err := database.Init(cfg, log); err != nil {
			log.Fatalf("failed to initialize database: %v", err)
		}

		srv := server.New(cfg, log)

		// Start the server in a goroutine
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("shutdown signal received, stopping server...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Errorf("server shutdown failed: %v", err)
		}
		log.Info("server exited")
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
