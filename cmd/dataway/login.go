package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var loginFlags struct {
	user     string
	password string
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against the configured service",
	RunE:  runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().StringVar(&loginFlags.user, "user", os.Getenv("DATAWAY_USER"), "principal id")
	loginCmd.Flags().StringVar(&loginFlags.password, "password", os.Getenv("DATAWAY_PASSWORD"), "secret")
}

func runLogin(cmd *cobra.Command, args []string) error {
	if loginFlags.user == "" || loginFlags.password == "" {
		return fmt.Errorf("both --user and --password are required")
	}

	s, err := buildStack(logger)
	if err != nil {
		return err
	}
	defer s.close()

	ctx := cmd.Context()
	s.machine.Activate(ctx)

	if err := s.machine.Login(ctx, loginFlags.user, loginFlags.password); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	fmt.Printf("State: %s\n", s.machine.State())
	return nil
}
