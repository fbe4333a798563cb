package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the current session and clear stored credentials",
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, args []string) error {
	s, err := buildStack(logger)
	if err != nil {
		return err
	}
	defer s.close()

	ctx := cmd.Context()
	s.machine.Activate(ctx)

	if err := s.machine.Logout(ctx); err != nil {
		return err
	}

	fmt.Println("Logged out.")
	return nil
}
