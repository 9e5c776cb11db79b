// Command eval scores worksheet extraction against hand-checked golden
// records, for tuning the row policy.
//
// Usage:
//
//	go run ./cmd/eval --golden ./testdata/week12.csv ./testdata/week12.pdf
//	go run ./cmd/eval --config ./policy.yaml --golden week12.csv --output report.json week12.pdf
//
// The golden file uses the records CSV layout written by the export
// endpoint, so an exported sheet can be corrected by hand and reused.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/brunobiangulo/worksheet"
	"github.com/brunobiangulo/worksheet/eval"
)

func main() {
	var (
		goldenPath = flag.String("golden", "", "Path to golden records CSV (default: <document>.golden.csv)")
		configPath = flag.String("config", "", "Path to config file (JSON or YAML)")
		tolerance  = flag.Float64("tolerance", -1, "Row clustering tolerance override")
		outputFile = flag.String("output", "", "Path to write JSON report")
		verbose    = flag.Bool("v", false, "Log progress to stderr")
	)
	flag.Parse()
	if flag.NArg() == 0 {
		log.Fatal("usage: eval [flags] <document> [document...]")
	}
	if *goldenPath != "" && flag.NArg() > 1 {
		log.Fatal("--golden applies to a single document")
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := worksheet.DefaultConfig()
	if *configPath != "" {
		loaded, err := worksheet.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
		cfg = loaded
	}
	if *tolerance >= 0 {
		cfg.RowTolerance = *tolerance
	}
	cfg.DisableStore = true

	engine, err := worksheet.New(cfg)
	if err != nil {
		log.Fatalf("creating engine: %v", err)
	}
	defer engine.Close()

	evaluator := eval.NewEvaluator(engine)
	ctx := context.Background()

	var reports []*eval.Report
	failed := 0
	for _, doc := range flag.Args() {
		gp := *goldenPath
		if gp == "" {
			gp = strings.TrimSuffix(doc, filepath.Ext(doc)) + ".golden.csv"
		}
		golden, err := eval.LoadGolden(gp)
		if err != nil {
			log.Fatalf("%s: %v", doc, err)
		}

		report, err := evaluator.Run(ctx, doc, golden)
		if err != nil {
			log.Fatalf("%s: %v", doc, err)
		}
		fmt.Println(eval.FormatReport(report))
		if !report.Passed() {
			failed++
		}
		reports = append(reports, report)
	}

	if *outputFile != "" {
		data, err := json.MarshalIndent(reports, "", "  ")
		if err != nil {
			log.Fatalf("encoding report: %v", err)
		}
		if err := os.WriteFile(*outputFile, data, 0o644); err != nil {
			log.Fatalf("writing report: %v", err)
		}
		fmt.Printf("Report written to %s\n", *outputFile)
	}

	if failed > 0 {
		fmt.Printf("%d of %d documents differ from their golden records\n", failed, len(reports))
		os.Exit(1)
	}
}
