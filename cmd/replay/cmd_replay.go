package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	appsvc "provenance/api/internal/app"
	"provenance/api/internal/changelog"
	"provenance/api/internal/export"
	"provenance/api/internal/replay"
	"provenance/api/internal/store"
	"provenance/api/internal/util"
)

func (a *app) cmdReplay(args []string) int {
	defaults := replay.DefaultOptions()
	flags := flag.NewFlagSet("replay", flag.ContinueOnError)
	flags.SetOutput(a.stderr)
	in := flags.String("in", "", "changelog file (array or {changelog, userMap})")
	usersPath := flags.String("users", "", "user map JSON file")
	out := flags.String("out", "", "write result JSON to this file")
	documentID := flags.String("document", "", "document id for the ledger (default: input file name)")
	minPaste := flags.Int("min-paste-len", defaults.MinPasteLen, "minimum insert length classified as a paste")
	maxRecent := flags.Int("max-recent-deletes", defaults.MaxRecentDeletes, "deleted spans remembered for internal paste detection")
	tileGap := flags.Int64("tile-gap-ms", defaults.TileGap.Milliseconds(), "same-author gap that still extends a tile")
	ledgerPath := flags.String("ledger", "", "save the report to this SQLite ledger")
	htmlPath := flags.String("html", "", "render the HTML report to this file")
	verbose := flags.Bool("verbose", false, "log skipped changelog entries")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if *in == "" {
		return a.errorf("replay: -in is required")
	}
	if *minPaste < 0 || *maxRecent < 0 || *tileGap < 0 {
		return a.errorf("replay: thresholds must be >= 0")
	}

	raw, err := os.ReadFile(*in)
	if err != nil {
		return a.errorf("replay: %v", err)
	}
	rawChangelog, rawUsers, err := changelog.SplitExport(raw)
	if err != nil {
		return a.errorf("replay: %v", err)
	}
	if *usersPath != "" {
		if rawUsers, err = os.ReadFile(*usersPath); err != nil {
			return a.errorf("replay: %v", err)
		}
	}

	opts := defaults
	opts.MinPasteLen = *minPaste
	opts.MaxRecentDeletes = *maxRecent
	opts.TileGap = time.Duration(*tileGap) * time.Millisecond
	if *verbose {
		opts.Logger = log.New(a.stderr, "", 0)
	}

	result, err := replay.Replay(rawChangelog, changelog.DecodeUsers(rawUsers), opts)
	if err != nil {
		return a.errorf("replay: %v", err)
	}

	doc := strings.TrimSpace(*documentID)
	if doc == "" {
		doc = strings.TrimSuffix(filepath.Base(*in), filepath.Ext(*in))
	}
	reportID := ""
	createdAt := time.Now().UTC()
	if *ledgerPath != "" {
		if reportID, err = saveToLedger(*ledgerPath, doc, rawChangelog, rawUsers, opts, result, createdAt); err != nil {
			return a.errorf("replay: %v", err)
		}
	}

	if *htmlPath != "" {
		html, err := export.RenderReportHTML(export.BuildTemplateData(export.Request{
			ReportID:    reportID,
			DocumentID:  doc,
			CreatedAt:   createdAt,
			Format:      export.FormatHTML,
			Result:      result,
			IncludeText: true,
		}))
		if err != nil {
			return a.errorf("replay: render html: %v", err)
		}
		if err := os.WriteFile(*htmlPath, []byte(html), 0o644); err != nil {
			return a.errorf("replay: %v", err)
		}
	}

	if *out == "" {
		if err := a.printJSON(result); err != nil {
			return a.errorf("replay: %v", err)
		}
		return 0
	}

	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return a.errorf("replay: marshal result: %v", err)
	}
	if err := os.WriteFile(*out, payload, 0o644); err != nil {
		return a.errorf("replay: %v", err)
	}
	a.printSummary(doc, reportID, result)
	return 0
}

func saveToLedger(path, documentID string, rawChangelog, rawUsers json.RawMessage, opts replay.Options, result replay.Result, createdAt time.Time) (string, error) {
	ledger, err := store.OpenLedger(path)
	if err != nil {
		return "", err
	}
	defer ledger.Close()

	fingerprint, optionsJSON, err := appsvc.Fingerprint(rawChangelog, rawUsers, opts)
	if err != nil {
		return "", err
	}
	ctx := context.Background()
	if existing, err := ledger.FindByFingerprint(ctx, documentID, fingerprint); err == nil {
		return existing.ID, nil
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	report := appsvc.BuildReport(util.NewID("rpt"), documentID, fingerprint, optionsJSON, resultJSON, result)
	report.CreatedAt = createdAt
	if err := ledger.SaveReport(ctx, report); err != nil {
		return "", err
	}
	return report.ID, nil
}

func (a *app) printSummary(documentID, reportID string, result replay.Result) {
	fmt.Fprintf(a.stdout, "document: %s\n", documentID)
	if reportID != "" {
		fmt.Fprintf(a.stdout, "report:   %s\n", reportID)
	}
	fmt.Fprintf(a.stdout, "records:  %s (%d skipped)\n", humanize.Comma(int64(result.Meta.Records)), result.Meta.Skipped)
	fmt.Fprintf(a.stdout, "tiles:    %d\n", len(result.Tiles))
	fmt.Fprintf(a.stdout, "length:   %s chars\n", humanize.Comma(int64(result.Meta.FinalLength)))
	report := appsvc.BuildReport("", documentID, "", nil, nil, result)
	for _, total := range report.Totals {
		fmt.Fprintf(a.stdout, "  %-20s chars=%-8d external=%-8d internal=%-8d tiles=%d\n",
			total.Author, total.TotalChars, total.ExternalChars, total.InternalChars, total.Tiles)
	}
}
