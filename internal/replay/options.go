package replay

import (
	"log"
	"time"
)

// Defaults for the replay thresholds.
const (
	DefaultMinPasteLen      = 25
	DefaultMaxRecentDeletes = 10
	DefaultTileGap          = 60 * time.Second
	DefaultCoalesceGap      = 5 * time.Minute
	DefaultMaxIndexDistance = 200
)

// Options tunes a replay. Start from DefaultOptions; the zero value disables
// coalescing across intervening deletions and uses no paste threshold.
type Options struct {
	// MinPasteLen is the normalized length at which an insert is considered
	// for paste classification.
	MinPasteLen int
	// MaxRecentDeletes bounds the recent-deletion ring.
	MaxRecentDeletes int
	// TileGap closes the open tile when the same author pauses longer than this.
	TileGap  time.Duration
	Coalesce CoalesceOptions

	// CutPasteMinLen enables the short cut-and-paste check: a below-threshold
	// insert at least this long that equals a recent deletion is internal.
	// Zero disables it.
	CutPasteMinLen int
	// LabelOrganicTyping reports below-threshold inserts as organic instead of
	// leaving them unclassified.
	LabelOrganicTyping bool
	// FlagCrossAuthorDeletes marks deletions that removed another author's text.
	FlagCrossAuthorDeletes bool

	// RevertFlushesTile closes the open tile before a revert is applied.
	RevertFlushesTile bool
	// RevertClearsRecentDeletes empties the recent-deletion ring on revert.
	RevertClearsRecentDeletes bool

	// IncludeChars adds the final per-character attribution to the result.
	IncludeChars bool

	// Logger receives diagnostics about skipped entries. Nil is silent.
	Logger *log.Logger
}

// CoalesceOptions tunes the second pass that merges nearby tiles.
type CoalesceOptions struct {
	MaxGap                    time.Duration
	MaxIndexDistance          int
	AllowInterveningDeletions bool
}

func DefaultOptions() Options {
	return Options{
		MinPasteLen:      DefaultMinPasteLen,
		MaxRecentDeletes: DefaultMaxRecentDeletes,
		TileGap:          DefaultTileGap,
		Coalesce:         DefaultCoalesceOptions(),
	}
}

func DefaultCoalesceOptions() CoalesceOptions {
	return CoalesceOptions{
		MaxGap:                    DefaultCoalesceGap,
		MaxIndexDistance:          DefaultMaxIndexDistance,
		AllowInterveningDeletions: true,
	}
}

func (o Options) sanitized() Options {
	o.MinPasteLen = max(0, o.MinPasteLen)
	o.MaxRecentDeletes = max(0, o.MaxRecentDeletes)
	o.CutPasteMinLen = max(0, o.CutPasteMinLen)
	if o.TileGap < 0 {
		o.TileGap = 0
	}
	if o.Coalesce.MaxGap < 0 {
		o.Coalesce.MaxGap = 0
	}
	o.Coalesce.MaxIndexDistance = max(0, o.Coalesce.MaxIndexDistance)
	return o
}

func (o Options) classifier() Classifier {
	return Classifier{
		MinPasteLen:        o.MinPasteLen,
		CutPasteMinLen:     o.CutPasteMinLen,
		LabelOrganicTyping: o.LabelOrganicTyping,
	}
}
