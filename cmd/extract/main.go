// Command extract reads one worksheet and prints its records, material
// consumption and patch consumption.
//
// Usage:
//
//	go run ./cmd/extract week12.pdf
//	go run ./cmd/extract -json week12.pdf > week12.json
//	go run ./cmd/extract -xlsx week12.xlsx -store week12.pdf
//	go run ./cmd/extract -csv materials week12.pdf
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/brunobiangulo/worksheet"
	"github.com/brunobiangulo/worksheet/export"
	"github.com/brunobiangulo/worksheet/pipeline"
	"github.com/brunobiangulo/worksheet/record"
	"github.com/brunobiangulo/worksheet/summary"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to config file (JSON or YAML)")
		format     = flag.String("format", "", "Input format override: pdf, xlsx, docx, csv, txt")
		tolerance  = flag.Float64("tolerance", -1, "Row clustering tolerance (default from config)")
		asJSON     = flag.Bool("json", false, "Print the full result as JSON")
		csvTable   = flag.String("csv", "", "Print one table as CSV: records, materials, patches")
		xlsxOut    = flag.String("xlsx", "", "Also write an XLSX workbook to this path")
		keep       = flag.Bool("store", false, "Keep the extraction in the history database")
		dbPath     = flag.String("db", "", "Path to SQLite database (with -store)")
		force      = flag.Bool("force", false, "Reprocess even if the document was stored before")
		customer   = flag.String("customer", "", "Only show records whose customer fuzzily matches")
		scrapOnly  = flag.Bool("scrap", false, "Only show scrap records")
		verbose    = flag.Bool("v", false, "Log progress to stderr")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <worksheet>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
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
	cfg.DisableStore = !*keep
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	engine, err := worksheet.New(cfg)
	if err != nil {
		log.Fatalf("creating engine: %v", err)
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var opts []worksheet.ExtractOption
	if *format != "" {
		opts = append(opts, worksheet.WithFormat(*format))
	}
	if *force {
		opts = append(opts, worksheet.WithForce())
	}

	ex, err := engine.ExtractFile(ctx, flag.Arg(0), opts...)
	if err != nil {
		log.Fatalf("extracting %s: %v", flag.Arg(0), err)
	}

	f := summary.Filter{Customer: *customer, ScrapOnly: *scrapOnly}
	if !f.IsZero() {
		res := pipeline.Assemble(f.Apply(ex.Records))
		res.Pages, res.Skipped = ex.Pages, ex.Skipped
		ex.Result = *res
	}

	if *xlsxOut != "" {
		if err := writeWorkbook(*xlsxOut, &ex.Result); err != nil {
			log.Fatalf("writing %s: %v", *xlsxOut, err)
		}
	}

	switch {
	case *asJSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(ex); err != nil {
			log.Fatal(err)
		}
	case *csvTable != "":
		table, err := export.ParseTable(*csvTable)
		if err != nil {
			log.Fatal(err)
		}
		if err := export.WriteCSV(os.Stdout, &ex.Result, table); err != nil {
			log.Fatal(err)
		}
	default:
		printReport(os.Stdout, ex)
	}
}

func writeWorkbook(path string, res *pipeline.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.WriteXLSX(f, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printReport(out io.Writer, ex *worksheet.Extraction) {
	header := fmt.Sprintf("%s (%s, %d pages)", ex.Filename, ex.Format, ex.Pages)
	if ex.ID != "" {
		header += " id=" + ex.ID
	}
	if ex.Reused {
		header += " [from history]"
	}
	fmt.Fprintln(out, header)
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tPAGE\tCUSTOMER\tSIZE\tTREAD\tWIDTH\tPATCHES\tSCRAP\t")
	for _, r := range ex.Records {
		scrap := ""
		if r.IsScrap {
			scrap = "yes"
		}
		if r.Ambiguous {
			scrap += "?"
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			r.Sequence, r.Page, r.Customer, r.TireSize, r.TreadCode, r.Width, r.Patches, scrap)
	}
	tw.Flush()

	fmt.Fprintln(out, "\nMaterials")
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SIZE\tTREAD\tWIDTH\tCOUNT\t")
	for _, g := range ex.MaterialGroups {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t\n", g.TireSize, g.TreadCode, g.Width, g.Count)
	}
	tw.Flush()

	fmt.Fprintln(out, "\nPatches")
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tCOUNT\t")
	for _, g := range ex.PatchGroups {
		fmt.Fprintf(tw, "%s\t%d\t\n", g.PatchCode, g.Count)
	}
	tw.Flush()

	t := ex.Totals
	fmt.Fprintf(out, "\n%d rows: %d production, %d scrap, %d ambiguous; %d material pieces, %d patch pieces\n",
		t.Rows, t.ProductionRows, t.ScrapRows, t.AmbiguousRows, t.MaterialPieces, t.PatchPieces)
	if len(ex.Skipped) > 0 {
		fmt.Fprint(out, "skipped:")
		for _, why := range []record.Rejection{
			record.RejectHeader, record.RejectShort, record.RejectPage, record.RejectNoSize, record.RejectScrapRow,
		} {
			if n := ex.Skipped[why]; n > 0 {
				fmt.Fprintf(out, " %s=%d", why, n)
			}
		}
		fmt.Fprintln(out)
	}
}
