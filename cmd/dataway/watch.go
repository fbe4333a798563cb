package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dataway-dev/dataway/internal/auth"
	"github.com/dataway-dev/dataway/internal/bus"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the session and print notifications until interrupted",
	Long: `Activate the authentication machine, keep credentials revalidated in
the background, and print every notification bus event as a JSON line.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	s, err := buildStack(logger)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	authSub := s.notifier.Subscribe(bus.ChannelAuth, bus.WithName("watch"))
	dataSub := s.notifier.Subscribe(bus.ChannelData, bus.WithName("watch"))

	s.machine.Activate(ctx)
	s.machine.StartRevalidation(ctx, auth.RevalidateInterval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-authSub.C():
			if !ok {
				return nil
			}
			printEvent(event)
		case event, ok := <-dataSub.C():
			if !ok {
				return nil
			}
			printEvent(event)
		}
	}
}

func printEvent(event bus.Event) {
	encoded, err := json.Marshal(map[string]any{
		"channel": event.Channel,
		"type":    event.Type,
		"data":    event.Data,
		"at":      event.At,
	})
	if err != nil {
		return
	}
	fmt.Println(string(encoded))
}
