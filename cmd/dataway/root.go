package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dataway-dev/dataway/internal/logging"
)

var logger *zap.Logger

var rootFlags struct {
	profile string
	routes  string
}

var rootCmd = &cobra.Command{
	Use:   "dataway",
	Short: "Protocol-agnostic data access and authentication client",
	Long: `dataway resolves named logical calls to one of several wire protocols
(message-RPC over a persistent socket, REST over HTTP, or embedded SQL)
and manages the client's authentication session.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(logging.FromEnv())
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logging.Sync(logger)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.profile,
		"profile", getEnv("DATAWAY_PROFILE", "profile.json"), "path to the profile configuration")
	rootCmd.PersistentFlags().StringVar(&rootFlags.routes,
		"routes", os.Getenv("DATAWAY_ROUTES"), "route table path, overriding the profile")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
