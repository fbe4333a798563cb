package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dataway-dev/dataway/internal/adapter"
)

var invokeFlags struct {
	args    []string
	timeout time.Duration
	login   bool
}

var invokeCmd = &cobra.Command{
	Use:   "invoke <route>",
	Short: "Invoke a logical route",
	Long: `Invoke a named route over the configured protocol. Arguments are
passed as repeated --arg key=value pairs; values parse as JSON where
possible and fall back to plain strings.`,
	Args: cobra.ExactArgs(1),
	RunE: runInvoke,
}

func init() {
	rootCmd.AddCommand(invokeCmd)

	invokeCmd.Flags().StringArrayVar(&invokeFlags.args, "arg", nil, "call argument as key=value (repeatable)")
	invokeCmd.Flags().DurationVar(&invokeFlags.timeout, "timeout", 30*time.Second, "call timeout")
	invokeCmd.Flags().BoolVar(&invokeFlags.login, "with-auth", false, "activate the authentication machine before calling")
}

func runInvoke(cmd *cobra.Command, cmdArgs []string) error {
	s, err := buildStack(logger)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := context.WithTimeout(cmd.Context(), invokeFlags.timeout)
	defer cancel()

	if invokeFlags.login {
		s.machine.Activate(ctx)
	} else {
		s.active.Configure(adapter.Anonymous())
	}

	callArgs, err := parseCallArgs(invokeFlags.args)
	if err != nil {
		return err
	}

	result, err := s.disp.Invoke(ctx, cmdArgs[0], callArgs)
	if err != nil {
		return err
	}

	if result == nil {
		return nil
	}
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Println(string(encoded))
	return nil
}

// parseCallArgs turns --arg key=value pairs into a call argument map.
func parseCallArgs(pairs []string) (map[string]any, error) {
	args := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --arg %q, want key=value", pair)
		}
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err == nil {
			args[key] = parsed
		} else {
			args[key] = value
		}
	}
	return args, nil
}
