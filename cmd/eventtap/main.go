// eventtap connects to the event bus and streams matching events to console.
// Usage: go run ./cmd/eventtap --config configs/eventtap.example.yaml --channel agent-events
//
// The auth token can be supplied through the config file or the
// EVENTTAP_TOKEN environment variable referenced from it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haroon-aygtc/synapse-realtime/internal/config"
	"github.com/haroon-aygtc/synapse-realtime/internal/event"
	"github.com/haroon-aygtc/synapse-realtime/internal/realtime"
	"github.com/haroon-aygtc/synapse-realtime/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/eventtap.example.yaml", "path to config file")
	channel := flag.String("channel", "", "channel to tap (empty subscribes to every channel)")
	filterJSON := flag.String("filter", "", "exact-match filter as JSON, e.g. '{\"type\":\"AGENT_CREATED\"}'")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		return
	}

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var filter map[string]any
	if *filterJSON != "" {
		if err := json.Unmarshal([]byte(*filterJSON), &filter); err != nil {
			logger.Error("failed to parse filter", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	client := realtime.New(cfg.Realtime(), realtime.WithLogger(logger))

	channels := []event.Channel{
		event.ChannelAgentEvents,
		event.ChannelWorkflowEvents,
		event.ChannelToolEvents,
		event.ChannelSystemEvents,
		event.ChannelNotifications,
		event.ChannelCustom,
	}
	if *channel != "" {
		channels = []event.Channel{event.Channel(*channel)}
	}
	for _, ch := range channels {
		client.Subscribe(ch, filter, func(e *event.Event) {
			printEvent(e, *verbose)
		})
	}

	client.OnStatusChange(func(s realtime.State) {
		logger.Info("connection state changed", "state", string(s))
	})

	logger.Info("connecting", "url", cfg.Server.URL)
	if err := client.Connect(ctx, cfg.Auth.Token, cfg.Auth.OrganizationID); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m := client.Metrics()
				logger.Info("stats",
					"state", string(m.State),
					"avg_latency", m.AverageLatency,
					"received", m.EventsReceived,
					"dispatched", m.EventsDispatched,
					"queue_depth", m.QueueDepth,
					"active_streams", m.ActiveStreams,
					"reconnects", m.Reconnects,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	client.Disconnect()
	logger.Info("shutdown complete")
}

func printEvent(e *event.Event, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(e, "", "  ")
		fmt.Printf("[EVENT] %s\n", data)
		return
	}

	if e.Type == event.TypeStreamCompleted {
		fmt.Printf("[STREAM DONE] channel=%s correlation=%s id=%s\n",
			e.Channel, e.Metadata.CorrelationID, e.ID)
		return
	}
	if e.IsChunk() {
		fmt.Printf("[CHUNK] channel=%s stream=%s index=%d end=%t\n",
			e.Channel, e.Stream.StreamID, e.Stream.ChunkIndex, e.Stream.End)
		return
	}
	fmt.Printf("[EVENT] channel=%s type=%s id=%s priority=%s\n",
		e.Channel, e.Type, e.ID, e.Priority)
}
