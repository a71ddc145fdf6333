package replay

import (
	"encoding/json"

	"provenance/api/internal/changelog"
)

// Totals is one author's aggregate over the coalesced tiles.
type Totals struct {
	Author string `json:"author"`
	Stats
	Tiles int `json:"tiles"`
}

// Rollup sums tile stats per author id.
func Rollup(tiles []Tile) map[string]Totals {
	totals := make(map[string]Totals)
	for _, tile := range tiles {
		entry, ok := totals[tile.AuthorID]
		if !ok {
			entry.Author = tile.Author
		}
		entry.Stats.add(tile.Stats)
		entry.Tiles++
		totals[tile.AuthorID] = entry
	}
	return totals
}

// Run replays a decoded log.
func Run(log changelog.Log, users changelog.UserMap, opts Options) Result {
	session := NewSession(opts, users)
	for _, record := range log.Records {
		session.Apply(record)
	}
	result := session.Finish()
	result.Meta.Skipped += log.Skipped
	if opts.Logger != nil && log.Skipped > 0 {
		opts.Logger.Printf("replay: skipped %d malformed changelog entries", log.Skipped)
	}
	return result
}

// Replay decodes raw and runs it. The only error is changelog.ErrNotArray,
// reported before any replay work happens.
func Replay(raw json.RawMessage, users changelog.UserMap, opts Options) (Result, error) {
	log, err := changelog.Decode(raw)
	if err != nil {
		return Result{}, err
	}
	return Run(log, users, opts), nil
}
