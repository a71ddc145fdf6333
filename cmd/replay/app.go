package main

import (
	"encoding/json"
	"fmt"
	"io"
)

const defaultLedger = "provenance.db"

// app carries the output streams shared by all subcommands.
type app struct {
	stdout io.Writer
	stderr io.Writer
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr}
}

func (a *app) errorf(format string, args ...any) int {
	fmt.Fprintf(a.stderr, "provenance: "+format+"\n", args...)
	return 1
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
