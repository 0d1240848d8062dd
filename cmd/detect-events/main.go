// detect-events diffs two license snapshots and emits typed events as
// JSON. Dates default to the two most recent snapshots in the store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/consciousfounders/dental-leads-etl/internal/config"
	"github.com/consciousfounders/dental-leads-etl/internal/domain"
	"github.com/consciousfounders/dental-leads-etl/internal/events"
	"github.com/consciousfounders/dental-leads-etl/internal/snapshot"
)

func main() {
	var (
		sourceType   = flag.String("source-type", "tx_license", "Source type to diff")
		currentDate  = flag.String("current-date", "", "Current snapshot date (YYYY-MM-DD)")
		previousDate = flag.String("previous-date", "", "Previous snapshot date (YYYY-MM-DD)")
		types        = flag.String("types", "", "Comma-separated professional types (default: all configured)")
		output       = flag.String("output", "", "Output JSON file")
		configPath   = flag.String("config", "config/config.yaml", "Config file path")
	)
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	source, err := cfg.Source(*sourceType)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx := context.Background()
	store, err := snapshot.NewStore(ctx, cfg)
	if err != nil {
		log.Fatalf("snapshot store: %v", err)
	}

	curr, prev := resolveDates(ctx, store, source.StateCode, *currentDate, *previousDate)
	fmt.Printf("Comparing: %s -> %s\n", prev, curr)

	var ptypes []string
	if *types != "" {
		for _, t := range strings.Split(*types, ",") {
			if t = strings.TrimSpace(t); t != "" {
				ptypes = append(ptypes, t)
			}
		}
	}

	detector := events.NewDetector(store, source)
	evts, err := detector.DetectAll(ctx, curr, prev, ptypes)
	if err != nil {
		log.Fatalf("detect: %v", err)
	}

	byType := make(map[domain.EventType]int)
	for _, e := range evts {
		byType[e.EventType]++
	}
	fmt.Printf("Detected %d events\n", len(evts))
	for t, n := range byType {
		fmt.Printf("  %s: %d\n", t, n)
	}

	if *output != "" {
		data, err := json.MarshalIndent(evts, "", "  ")
		if err != nil {
			log.Fatalf("marshal events: %v", err)
		}
		if err := os.WriteFile(*output, data, 0o644); err != nil {
			log.Fatalf("write events: %v", err)
		}
		fmt.Printf("Saved %d events to %s\n", len(evts), *output)
	}
}

// resolveDates fills missing dates from the store's snapshot listing:
// newest for current, second newest for previous. With fewer than two
// snapshots the previous falls back to the current date, which yields
// an empty diff instead of an error.
func resolveDates(ctx context.Context, store snapshot.Store, state, curr, prev string) (string, string) {
	if curr != "" && prev != "" {
		return curr, prev
	}
	dates, err := store.ListDates(ctx, state)
	if err != nil {
		log.Fatalf("list snapshot dates: %v", err)
	}
	if curr == "" {
		if len(dates) == 0 {
			log.Fatalf("no snapshots found for state %s", state)
		}
		curr = dates[len(dates)-1]
	}
	if prev == "" {
		if len(dates) >= 2 {
			prev = dates[len(dates)-2]
		} else {
			prev = curr
		}
	}
	return curr, prev
}
