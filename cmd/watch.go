package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the feeds continuously and print the board every cycle",
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	inst, err := buildInstance(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(inst.cfg.Interval())
	defer ticker.Stop()

	for {
		now := time.Now()
		snapshot := inst.poller.Poll(ctx)

		fmt.Printf("--- %s ---\n", now.Format("15:04:05"))
		for _, entry := range inst.board.Entries(snapshot, now) {
			fmt.Println(entry)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
