package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dataway-dev/dataway/internal/adapter/wamp"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show resolved configuration and session state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := buildStack(logger)
	if err != nil {
		return err
	}
	defer s.close()

	ctx := cmd.Context()
	s.machine.Activate(ctx)

	fmt.Printf("Protocol:      %s\n", s.cfg.Data.Protocol)
	fmt.Printf("Routes:        %d\n", s.table.Len())
	fmt.Printf("State:         %s\n", s.machine.State())
	fmt.Printf("Authenticated: %v\n", s.machine.Authenticated())
	if principal := s.machine.Principal(); principal != "" {
		fmt.Printf("Principal:     %s\n", principal)
	}
	if a, ok := s.active.(*wamp.Adapter); ok {
		fmt.Printf("Connection:    %s\n", a.State())
	}
	return nil
}
