// Command provenance replays editor changelogs offline and keeps a local
// ledger of the resulting authorship reports.
package main

import (
	"fmt"
	"os"
)

const version = "0.4.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	a := newApp(os.Stdout, os.Stderr)
	switch os.Args[1] {
	case "--help", "-h", "help":
		printUsage()
	case "--version", "-v", "version":
		fmt.Println("provenance", version)
	case "replay":
		os.Exit(a.cmdReplay(os.Args[2:]))
	case "ledger", "ls":
		os.Exit(a.cmdLedger(os.Args[2:]))
	default:
		fmt.Fprintf(os.Stderr, "provenance: unknown command %q\n", os.Args[1])
		fmt.Fprintln(os.Stderr, "Run 'provenance --help' for usage.")
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`provenance - authorship attribution for editor changelogs

Usage:
  provenance <command> [flags]

Commands:
  replay -in FILE           Replay a changelog and print the result
      [-users FILE]         User map JSON ({"id":{"name":...}})
      [-out FILE]           Write the result JSON here instead of stdout
      [-document ID]        Document id recorded in the ledger
      [-min-paste-len N]    Minimum insert length to classify as a paste
      [-max-recent-deletes N]
      [-tile-gap-ms N]      Same-author gap that still extends a tile
      [-ledger PATH]        Save the report to a SQLite ledger
      [-html FILE]          Render the HTML report
  ledger [-document ID]     List reports saved in the ledger
  version                   Print the version

Aliases:
  ls = ledger

Environment:
  PROVENANCE_LEDGER   Default ledger path (default: provenance.db)

The input file may be a bare changelog array or {"changelog":[...],"userMap":{...}}.
`)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
