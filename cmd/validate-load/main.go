// validate-load runs the validation gate over one CSV load and exits 0
// only when the load passed. With DATABASE_URL set the load is also
// registered so a later quarantine can find it.
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
	"github.com/consciousfounders/dental-leads-etl/internal/domain"
	"github.com/consciousfounders/dental-leads-etl/internal/pkg/logger"
	"github.com/consciousfounders/dental-leads-etl/internal/repository/postgres"
	"github.com/consciousfounders/dental-leads-etl/internal/snapshot"
	"github.com/consciousfounders/dental-leads-etl/internal/validation"
)

func main() {
	var (
		file       = flag.String("file", "", "Path to CSV file to validate")
		sourceType = flag.String("source-type", "", "Type of data source (tx_license, wa_license, co_license, npi)")
		previous   = flag.String("previous", "", "Path to previous CSV file for comparison")
		loadID     = flag.String("load-id", "", "Load ID (generated if not provided)")
		output     = flag.String("output", "", "Output JSON file for results")
		quiet      = flag.Bool("quiet", false, "Only output errors")
		configPath = flag.String("config", "config/config.yaml", "Config file path")
	)
	flag.Parse()

	if *file == "" || *sourceType == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger.Info("validation run starting", "run_id", uuid.NewString(), "file", *file, "source_type", *sourceType)

	ds := readCSV(*file)
	var prev *snapshot.Dataset
	if *previous != "" {
		prev = readCSV(*previous)
	}

	engine := validation.NewEngine(cfg.Sources)
	result, err := engine.Validate(validation.Request{
		Dataset:    ds,
		SourceType: *sourceType,
		Previous:   prev,
		LoadID:     *loadID,
		SourceFile: *file,
	})
	if err != nil {
		log.Fatalf("validate: %v", err)
	}

	if !*quiet {
		printResult(result)
	}
	if *output != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatalf("marshal results: %v", err)
		}
		if err := os.WriteFile(*output, data, 0o644); err != nil {
			log.Fatalf("write results: %v", err)
		}
		fmt.Printf("Results saved to: %s\n", *output)
	}

	registerLoad(cfg, result)

	if !result.Passed {
		os.Exit(1)
	}
}

func readCSV(path string) *snapshot.Dataset {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}
	ds, err := snapshot.ParseCSV(data)
	if err != nil {
		log.Fatalf("parse %s: %v", path, err)
	}
	return ds
}

// registerLoad records the load in the registry when a database is
// configured. Validation itself does not need the database.
func registerLoad(cfg *config.Config, result *domain.LoadValidationResult) {
	if cfg.Database.URL == "" {
		return
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Warn("load not registered", "error", err.Error())
		return
	}
	defer db.Close()

	status := domain.LoadValidated
	if !result.Passed {
		status = domain.LoadPending
	}
	err = postgres.NewLoadRepo(db).Register(context.Background(), &domain.Load{
		LoadID:           result.LoadID,
		SourceType:       result.SourceType,
		SourceFile:       result.SourceFile,
		Status:           status,
		RowCount:         result.RowCount,
		RowCountPrevious: result.RowCountPrevious,
	})
	if err != nil {
		logger.Warn("load not registered", "load_id", result.LoadID, "error", err.Error())
		return
	}
	logger.Info("load registered", "load_id", result.LoadID, "status", string(status))
}

func printResult(r *domain.LoadValidationResult) {
	verdict := "FAILED"
	if r.Passed {
		verdict = "PASSED"
	}
	fmt.Println("============================================================")
	fmt.Printf("Validation Results: %s\n", verdict)
	fmt.Println("============================================================")
	fmt.Printf("Load ID: %s\n", r.LoadID)
	fmt.Printf("Source: %s\n", r.SourceType)
	fmt.Printf("File: %s\n", r.SourceFile)
	fmt.Printf("Row count: %d\n", r.RowCount)
	if r.RowCountPrevious != nil {
		line := fmt.Sprintf("Previous: %d", *r.RowCountPrevious)
		if r.RowCountDeltaPct != nil {
			line += fmt.Sprintf(" (%+.1f%%)", *r.RowCountDeltaPct*100)
		}
		fmt.Println(line)
	}
	if len(r.Errors) > 0 {
		fmt.Println("\nERRORS:")
		for _, e := range r.Errors {
			fmt.Printf("  [FAIL] %s: %s\n", e.RuleName, e.Message)
		}
	}
	if len(r.Warnings) > 0 {
		fmt.Println("\nWARNINGS:")
		for _, w := range r.Warnings {
			fmt.Printf("  [WARN] %s: %s\n", w.RuleName, w.Message)
		}
	}
}
