package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vanshika/payrecon/backend/internal/generator"
	"github.com/vanshika/payrecon/backend/internal/ingest"
)

func main() {
	cfg := generator.DefaultConfig()
	var (
		profiles      = flag.Int("profiles", cfg.NumProfiles, "number of customer profiles to generate")
		transactions  = flag.Int("transactions", cfg.NumTransactions, "number of statement rows to generate")
		refundChance  = flag.Float64("refund-chance", cfg.RefundChance, "probability that a row refunds an earlier payment")
		failureChance = flag.Float64("failure-chance", cfg.FailureChance, "probability that a payment is declined")
		feeChance     = flag.Float64("fee-chance", cfg.FeeChance, "probability that a row is an acquiring fee")
		guestChance   = flag.Float64("guest-chance", cfg.GuestEmailChance, "probability that a payment carries no e-mail")
		currency      = flag.String("currency", cfg.Currency, "statement currency")
		start         = flag.String("start", "", "first statement day, YYYY-MM-DD (default: days ago from today)")
		days          = flag.Int("days", cfg.Days, "number of days the statement covers")
		seed          = flag.Int64("seed", cfg.Seed, "random seed for deterministic generation")
		outputDir     = flag.String("output-dir", "data", "directory to write statement.csv, profiles.json and orders.json")
		writeStdout   = flag.Bool("stdout", false, "write only the statement CSV to stdout instead of files")
	)
	flag.Parse()

	genCfg := generator.Config{
		NumProfiles:      *profiles,
		NumTransactions:  *transactions,
		RefundChance:     clampProbability(*refundChance),
		FailureChance:    clampProbability(*failureChance),
		FeeChance:        clampProbability(*feeChance),
		GuestEmailChance: clampProbability(*guestChance),
		Currency:         *currency,
		Days:             *days,
		Seed:             *seed,
	}
	if *start != "" {
		t, err := time.Parse(time.DateOnly, *start)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -start: %v\n", err)
			os.Exit(1)
		}
		genCfg.Start = t
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dataset, err := generator.New(genCfg).Generate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generation failed: %v\n", err)
		os.Exit(1)
	}

	if *writeStdout {
		if err := ingest.WriteCSV(os.Stdout, dataset.Rows, generator.StatementHeaders); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write statement to stdout: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := generator.WriteDataset(dataset, *outputDir); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write dataset: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "Generated %d statement rows, %d profiles and %d orders into %s\n",
		len(dataset.Rows), len(dataset.Profiles), len(dataset.Orders), *outputDir)
}

func clampProbability(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
