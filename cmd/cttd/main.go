// Command cttd runs the CTT reconciliation daemon: one positional
// argument naming the configuration file (spec.md §6).
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/NCAR/ctt-server/internal/changelog"
	"github.com/NCAR/ctt-server/internal/config"
	"github.com/NCAR/ctt-server/internal/mutation"
	"github.com/NCAR/ctt-server/internal/reconcile"
	"github.com/NCAR/ctt-server/internal/scheduler"
	"github.com/NCAR/ctt-server/internal/storage/sqlite"
	"github.com/NCAR/ctt-server/internal/topology"
)

// digestPeriodMultiple is the small integer multiple of poll_interval
// the changelog digest period uses, per spec.md §4.4.
const digestPeriodMultiple = 5

// eventChannelCapacity is the Changelog Aggregator's bounded channel
// size (spec.md §4.4).
const eventChannelCapacity = 5

var rootCmd = &cobra.Command{
	Use:   "cttd <config.yaml>",
	Short: "cttd - cluster ticket tracker daemon",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(args[0])
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		// Configuration error: fail fast with a descriptive message and
		// non-zero exit (spec.md §7 kind 5).
		return err
	}

	store, err := sqlite.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("cttd: error closing database: %v", err)
		}
	}()

	resolver, err := topology.New(cfg.Cluster)
	if err != nil {
		return fmt.Errorf("building topology resolver: %w", err)
	}

	sched, err := scheduler.New(cfg.Scheduler)
	if err != nil {
		return fmt.Errorf("building scheduler adapter: %w", err)
	}
	rebuildSched := func() (scheduler.Adapter, error) {
		return scheduler.New(cfg.Scheduler)
	}

	var sink changelog.ChatSink
	if cfg.Slack.Token != "" {
		sink = changelog.NewSlackSink(cfg.Slack.Token, cfg.Slack.Channel)
	} else {
		sink = changelog.LogSink{}
	}
	events := changelog.New(sink, eventChannelCapacity, cfg.PollInterval()*digestPeriodMultiple)

	mutations := mutation.New(store, resolver, sched, events)
	engine := reconcile.New(store, resolver, sched, mutations, cfg.PollInterval(), rebuildSched)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		events.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		engine.Run(ctx)
	}()

	log.Printf("cttd: started (poll_interval=%s db=%s)", cfg.PollInterval(), cfg.DB)
	<-ctx.Done()
	log.Printf("cttd: shutdown signal received, draining")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Printf("cttd: clean shutdown")
	case <-time.After(30 * time.Second):
		log.Printf("cttd: shutdown drain timed out after 30s")
	}
	return nil
}
