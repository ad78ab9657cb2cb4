package main

import (
	"context"
	"fmt"
	"os"

	"github.com/manslikestiffler/smart-granary/pkg/config"
	"github.com/spf13/cobra"
)

type contextKey string

const configKey contextKey = "config"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "smartgrain",
	Short: "Smart Granary - grain storage monitoring",
	Long: `Smart Granary monitors grain storage sensors: it buffers readings,
aggregates and analyzes them, raises threshold alerts and serves a realtime dashboard API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", getEnv("SMARTGRAIN_CONFIG", "."), "config directory or YAML file")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func configFrom(cmd *cobra.Command) *config.Config {
	return cmd.Context().Value(configKey).(*config.Config)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
