package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fanout/flychat/internal/config"
	"github.com/fanout/flychat/internal/store"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "flychat",
		Short: "Room chat server with resumable streams",
		Long:  "flychat stores per-room message logs and fans new messages out to streaming clients, either through a GRIP proxy or by holding streams itself.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if configPath != "" {
				os.Setenv("FLYCHAT_CONFIG", configPath)
			}
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides FLYCHAT_CONFIG)")

	serveCmd := &cobra.Command{
		Use:     "serve",
		Short:   "Start the HTTP server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if port, _ := cmd.Flags().GetString("port"); port != "" {
				cfg.Port = port
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	serveCmd.Flags().String("port", "", "Listen port (overrides PORT)")
	rootCmd.AddCommand(serveCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply PostgreSQL schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is not set")
			}
			logger := newLogger(cfg)
			logger.Info().Msg("running database migrations...")
			if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
				return err
			}
			logger.Info().Msg("migrations completed")
			return nil
		},
	}
	rootCmd.AddCommand(migrateCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
