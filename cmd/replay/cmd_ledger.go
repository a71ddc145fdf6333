package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/dustin/go-humanize"

	"provenance/api/internal/store"
)

func (a *app) cmdLedger(args []string) int {
	flags := flag.NewFlagSet("ledger", flag.ContinueOnError)
	flags.SetOutput(a.stderr)
	path := flags.String("ledger", envOr("PROVENANCE_LEDGER", defaultLedger), "SQLite ledger path")
	documentID := flags.String("document", "", "only list reports for this document")
	limit := flags.Int("limit", 50, "maximum reports to list")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	ledger, err := store.OpenLedger(*path)
	if err != nil {
		return a.errorf("ledger: %v", err)
	}
	defer ledger.Close()

	summaries, err := ledger.ListReports(context.Background(), *documentID, *limit)
	if err != nil {
		return a.errorf("ledger: %v", err)
	}

	if *jsonOut {
		if err := a.printJSON(summaries); err != nil {
			return a.errorf("ledger: %v", err)
		}
		return 0
	}
	if len(summaries) == 0 {
		fmt.Fprintln(a.stdout, "no reports")
		return 0
	}
	for _, s := range summaries {
		fmt.Fprintf(a.stdout, "%-28s %-24s tiles=%-4d authors=%-3d length=%-8d %s\n",
			s.ID, s.DocumentID, s.TileCount, s.AuthorCount, s.FinalLength, humanize.Time(s.CreatedAt))
	}
	return 0
}
