// export-queue manages the outbound export queue.
//
// Usage:
//
//	export-queue queue --source golden_records.csv --destination ghl [--load-id abc123]
//	export-queue approve --destination ghl [--auto | --min-confidence 80]
//	export-queue send --destination ghl [--limit 100] [--dry-run]
//	export-queue status
//	export-queue suppress --email a@b.com [--destination instantly] [--reason opt-out]
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/consciousfounders/dental-leads-etl/internal/config"
	"github.com/consciousfounders/dental-leads-etl/internal/destination"
	"github.com/consciousfounders/dental-leads-etl/internal/domain"
	"github.com/consciousfounders/dental-leads-etl/internal/pkg/distlock"
	"github.com/consciousfounders/dental-leads-etl/internal/pkg/logger"
	"github.com/consciousfounders/dental-leads-etl/internal/queue"
	"github.com/consciousfounders/dental-leads-etl/internal/repository/postgres"
	"github.com/consciousfounders/dental-leads-etl/internal/snapshot"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	cmd, args := os.Args[1], os.Args[2:]

	cfg, err := config.LoadFromEnv("config/config.yaml")
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

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}

	svc := queue.NewService(
		postgres.NewExportRepo(db),
		postgres.NewSuppressionRepo(db),
		destination.NewRegistry(cfg),
		destination.NewRateLimiter(rdb),
		cfg.Destinations,
		cfg.Send.Concurrency,
	)
	svc.SetLockFactory(func(key string) distlock.Lock {
		return distlock.New(rdb, db, key, 10*time.Minute)
	})

	logger.Info("export-queue run", "run_id", uuid.NewString(), "command", cmd)
	ctx := context.Background()

	switch cmd {
	case "queue":
		cmdQueue(ctx, svc, args)
	case "approve":
		cmdApprove(ctx, svc, args)
	case "send":
		cmdSend(ctx, svc, args)
	case "status":
		cmdStatus(ctx, svc, cfg)
	case "suppress":
		cmdSuppress(ctx, svc, args)
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: export-queue <queue|approve|send|status|suppress> [flags]")
	os.Exit(2)
}

func cmdQueue(ctx context.Context, svc *queue.Service, args []string) {
	fs := flag.NewFlagSet("queue", flag.ExitOnError)
	source := fs.String("source", "", "Candidate file (.csv or .json)")
	dest := fs.String("destination", "", "Destination name")
	loadID := fs.String("load-id", "", "Data load ID for quarantine traceability")
	fs.Parse(args)
	if *source == "" || *dest == "" {
		fs.Usage()
		os.Exit(2)
	}

	candidates, err := readCandidates(*source)
	if err != nil {
		log.Fatalf("read candidates: %v", err)
	}
	fmt.Printf("Queuing %d records from %s to %s\n", len(candidates), *source, *dest)

	res, err := svc.Enqueue(ctx, candidates, domain.Destination(*dest), *loadID)
	if err != nil {
		log.Fatalf("enqueue: %v", err)
	}
	fmt.Println("\nResults:")
	fmt.Printf("  Queued: %d\n", res.Queued)
	fmt.Printf("  Auto-approved: %d\n", res.AutoApproved)
	fmt.Printf("  Suppressed: %d\n", res.Suppressed)
	fmt.Printf("  Skipped: %d\n", res.Skipped)
}

func cmdApprove(ctx context.Context, svc *queue.Service, args []string) {
	fs := flag.NewFlagSet("approve", flag.ExitOnError)
	dest := fs.String("destination", "", "Destination name")
	auto := fs.Bool("auto", false, "Approve using the destination's confidence floor")
	minConf := fs.Int("min-confidence", 0, "Manual confidence floor")
	ids := fs.String("ids", "", "Comma-separated export IDs")
	approver := fs.String("approver", "manual-cli", "Approver name for the audit trail")
	fs.Parse(args)

	var (
		n   int
		err error
	)
	if *auto {
		if *dest == "" {
			log.Fatal("--auto requires --destination")
		}
		n, err = svc.AutoApprove(ctx, domain.Destination(*dest))
	} else {
		f := queue.ApproveFilter{
			Destination:   domain.Destination(*dest),
			MinConfidence: *minConf,
		}
		if *ids != "" {
			f.ExportIDs = strings.Split(*ids, ",")
		}
		n, err = svc.Approve(ctx, f, *approver)
	}
	if err != nil {
		log.Fatalf("approve: %v", err)
	}
	fmt.Printf("Approved %d exports\n", n)
}

func cmdSend(ctx context.Context, svc *queue.Service, args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	dest := fs.String("destination", "", "Destination name")
	limit := fs.Int("limit", 100, "Max exports per pass")
	dryRun := fs.Bool("dry-run", false, "Report without sending")
	fs.Parse(args)
	if *dest == "" {
		fs.Usage()
		os.Exit(2)
	}

	res, err := svc.Send(ctx, domain.Destination(*dest), *limit, *dryRun)
	if err != nil {
		log.Fatalf("send: %v", err)
	}
	if res.DryRun {
		fmt.Printf("[DRY RUN] %d exports ready for %s\n", res.Ready, *dest)
		return
	}
	fmt.Printf("Sent: %d, Failed: %d, Rate limited: %d\n", res.Sent, res.Failed, res.RateLimited)
}

func cmdStatus(ctx context.Context, svc *queue.Service, cfg *config.Config) {
	st, err := svc.Status(ctx)
	if err != nil {
		log.Fatalf("status: %v", err)
	}
	fmt.Println("============================================================")
	fmt.Println("Export Queue Status")
	fmt.Println("============================================================")
	fmt.Printf("Total in queue: %d\n", st.TotalInQueue)
	fmt.Printf("Pending approval: %d\n", st.PendingApproval)
	fmt.Printf("Ready to send: %d\n", st.ReadyToSend)
	fmt.Printf("Sent today: %d\n", st.SentToday)
	fmt.Printf("Sent all-time: %d\n", st.SentAllTime)
	if len(st.ByDestination) > 0 {
		fmt.Println("\nBy Destination:")
		for dest, counts := range st.ByDestination {
			name := string(dest)
			if dc, err := cfg.Destination(dest); err == nil && dc.DisplayName != "" {
				name = dc.DisplayName
			}
			fmt.Printf("  %s:\n", name)
			for status, n := range counts {
				if n > 0 {
					fmt.Printf("    %s: %d\n", status, n)
				}
			}
		}
	}
}

func cmdSuppress(ctx context.Context, svc *queue.Service, args []string) {
	fs := flag.NewFlagSet("suppress", flag.ExitOnError)
	email := fs.String("email", "", "Email to block")
	license := fs.String("license-number", "", "License number to block")
	npi := fs.String("npi", "", "NPI to block")
	dest := fs.String("destination", "", "Scope to one destination (default: global)")
	reason := fs.String("reason", "manual", "Reason for the block")
	fs.Parse(args)

	if err := svc.AddSuppression(ctx, *email, *license, *npi, domain.Destination(*dest), *reason); err != nil {
		log.Fatalf("suppress: %v", err)
	}
	fmt.Println("Suppression added")
}

// readCandidates loads export candidates from a JSON array or a CSV
// whose headers become the payload. Recognized CSV columns also fill
// the typed candidate fields.
func readCandidates(path string) ([]domain.ExportCandidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".json") {
		var out []domain.ExportCandidate
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return out, nil
	}

	ds, err := snapshot.ParseCSV(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := make([]domain.ExportCandidate, 0, ds.RowCount())
	for i := 0; i < ds.RowCount(); i++ {
		payload := make(map[string]string, len(ds.Headers()))
		for _, h := range ds.Headers() {
			payload[h] = ds.Value(i, h)
		}
		c := domain.ExportCandidate{
			ProviderID:    payload["provider_id"],
			Email:         payload["email"],
			LicenseNumber: payload["license_number"],
			NPI:           payload["npi"],
			Payload:       payload,
		}
		if conf, err := strconv.Atoi(payload["match_confidence"]); err == nil {
			c.MatchConfidence = conf
		}
		out = append(out, c)
	}
	return out, nil
}
