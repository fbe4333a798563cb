package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "List the configured route table",
	RunE:  runRoutes,
}

func init() {
	rootCmd.AddCommand(routesCmd)
}

func runRoutes(cmd *cobra.Command, args []string) error {
	s, err := buildStack(logger)
	if err != nil {
		return err
	}
	defer s.close()

	names := s.table.Names()
	if len(names) == 0 {
		fmt.Println("No routes configured.")
		return nil
	}

	fmt.Printf("%-28s  %-8s  %s\n", "ROUTE", "RETURN", "PROTOCOLS")
	for _, name := range names {
		entry, err := s.table.Lookup(name)
		if err != nil {
			return err
		}
		fmt.Printf("%-28s  %-8s  %s\n", name, entry.Return, strings.Join(entry.Protocols(), ", "))
	}
	return nil
}
