package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	gtfsrt "transitboard.dev/gtfsrt"
	"transitboard.dev/gtfsrt/config"
)

var rootCmd = &cobra.Command{
	Use:          "transitboard",
	Short:        "GTFS realtime departure board",
	Long:         "Reconciles GTFS realtime feeds into per-stop departure boards",
	SilenceUsage: true,
}

var (
	configPath string
	verbose    bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "transitboard.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(boardCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func buildLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

type instance struct {
	cfg    *config.Config
	board  *gtfsrt.Board
	poller *gtfsrt.Poller
	logger *slog.Logger
}

// buildInstance wires a full departure board from the configuration
// file: feed client, optional schedule store, subscription registry,
// engine and poller.
func buildInstance(ctx context.Context) (*instance, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := buildLogger()

	registry := gtfsrt.NewRegistry()
	stops := make([]gtfsrt.MonitoredStop, 0, len(cfg.Departures))
	for _, dep := range cfg.Departures {
		stops = append(stops, gtfsrt.MonitoredStop{
			Name:        dep.Name,
			RouteID:     dep.Route,
			DirectionID: dep.DirectionID,
			StopID:      dep.StopID,
			ServiceType: dep.ServiceType,
			Icon:        dep.Icon,
			Limit:       dep.NextBusLimit,
		})
	}
	board := gtfsrt.NewBoard(stops, registry)

	var schedule *gtfsrt.ScheduleStore
	if cfg.StaticGTFSURL != "" {
		schedule = gtfsrt.NewScheduleStore(cfg.StaticGTFSURL, logger)
		// The archive loads in the background. Realtime polling
		// starts immediately; the fallback activates once the
		// load lands.
		schedule.LoadAsync(ctx)
	}

	feed := gtfsrt.NewFeedClient(cfg.APIKey, cfg.APIKeyHeader, logger)

	engine := gtfsrt.NewEngine(feed, schedule, registry, logger)
	engine.TripUpdateURL = cfg.TripUpdateURL
	engine.VehiclePositionURL = cfg.VehiclePositionURL
	engine.RouteDelimiter = cfg.RouteDelimiter
	engine.StaticFallback = cfg.EnableStaticFallback

	return &instance{
		cfg:    cfg,
		board:  board,
		poller: gtfsrt.NewPoller(engine, cfg.Interval(), logger),
		logger: logger,
	}, nil
}
