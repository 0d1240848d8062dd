// quarantine isolates a bad data load: cancels its pending exports and
// optionally reverses already-sent ones.
//
// Usage:
//
//	quarantine --load-id abc123 --reason "Corrupt source file"
//	quarantine --load-id abc123 --reason "Bad data" --reverse-exports
//	quarantine --list-quarantined
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/consciousfounders/dental-leads-etl/internal/config"
	"github.com/consciousfounders/dental-leads-etl/internal/destination"
	"github.com/consciousfounders/dental-leads-etl/internal/pkg/logger"
	"github.com/consciousfounders/dental-leads-etl/internal/quarantine"
	"github.com/consciousfounders/dental-leads-etl/internal/repository/postgres"
)

func main() {
	var (
		loadID          = flag.String("load-id", "", "Load ID to quarantine")
		reason          = flag.String("reason", "", "Reason for quarantine")
		reverseExports  = flag.Bool("reverse-exports", false, "Attempt to reverse sent exports")
		listQuarantined = flag.Bool("list-quarantined", false, "List all quarantined loads")
		output          = flag.String("output", "", "Output JSON file for results")
		configPath      = flag.String("config", "config/config.yaml", "Config file path")
	)
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	svc := quarantine.NewService(
		postgres.NewLoadRepo(db),
		postgres.NewExportRepo(db),
		destination.NewRegistry(cfg),
		cfg.Destinations,
	)
	ctx := context.Background()

	if *listQuarantined {
		listLoads(ctx, svc)
		return
	}
	if *loadID == "" || *reason == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger.Info("quarantine run", "run_id", uuid.NewString(), "load_id", *loadID)
	res, err := svc.Quarantine(ctx, *loadID, *reason, *reverseExports)
	if err != nil {
		log.Fatalf("quarantine: %v", err)
	}

	fmt.Printf("Load %s quarantined\n", res.LoadID)
	fmt.Printf("  Exports cancelled: %d\n", res.ExportsCancelled)
	fmt.Printf("  Exports reversed: %d\n", res.ExportsReversed)
	fmt.Printf("  Failed reversals: %d\n", res.ExportsFailedReversal)
	for _, f := range res.ReversalFailures {
		fmt.Printf("    [MANUAL FOLLOW-UP] %s (%s): %s\n", f.ExportID, f.Destination, f.Reason)
	}

	if *output != "" {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			log.Fatalf("marshal result: %v", err)
		}
		if err := os.WriteFile(*output, data, 0o644); err != nil {
			log.Fatalf("write result: %v", err)
		}
	}
}

func listLoads(ctx context.Context, svc *quarantine.Service) {
	loads, err := svc.ListQuarantined(ctx)
	if err != nil {
		log.Fatalf("list quarantined: %v", err)
	}
	if len(loads) == 0 {
		fmt.Println("No quarantined loads found.")
		return
	}
	fmt.Println("Quarantined Loads")
	fmt.Println("================================================================================")
	for _, l := range loads {
		fmt.Printf("\nLoad ID: %s\n", l.LoadID)
		if l.QuarantinedAt != nil {
			fmt.Printf("  Quarantined: %s\n", l.QuarantinedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("  Reason: %s\n", l.QuarantineReason)
		fmt.Printf("  Source: %s - %s\n", l.SourceType, l.SourceFile)
		fmt.Printf("  Exports cancelled: %d\n", l.ExportsCancelled)
		fmt.Printf("  Exports reversed: %d\n", l.ExportsReversed)
	}
}
