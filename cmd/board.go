package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Fetch the feeds once and print every monitored stop",
	RunE:  runBoard,
}

func runBoard(cmd *cobra.Command, args []string) error {
	inst, err := buildInstance(cmd.Context())
	if err != nil {
		return err
	}

	snapshot := inst.poller.Poll(cmd.Context())
	if snapshot == nil {
		return fmt.Errorf("no departures available")
	}

	for _, entry := range inst.board.Entries(snapshot, time.Now()) {
		fmt.Println(entry)
	}

	return nil
}
