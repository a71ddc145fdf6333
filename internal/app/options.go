package app

import (
	"encoding/json"
	"fmt"
	"time"

	"provenance/api/internal/auth"
	"provenance/api/internal/replay"
)

// ReplayOptionsInput overrides the configured replay thresholds for one
// request. Nil fields keep the configured value.
type ReplayOptionsInput struct {
	MinPasteLen               *int   `json:"minPasteLen,omitempty"`
	MaxRecentDeletes          *int   `json:"maxRecentDeletes,omitempty"`
	TileGapMs                 *int64 `json:"tileGapMs,omitempty"`
	CoalesceGapMs             *int64 `json:"coalesceGapMs,omitempty"`
	MaxIndexDistance          *int   `json:"maxIndexDistance,omitempty"`
	AllowInterveningDeletions *bool  `json:"allowInterveningDeletions,omitempty"`
	CutPasteMinLen            *int   `json:"cutPasteMinLen,omitempty"`
	LabelOrganicTyping        *bool  `json:"labelOrganicTyping,omitempty"`
	FlagCrossAuthorDeletes    *bool  `json:"flagCrossAuthorDeletes,omitempty"`
	RevertFlushesTile         *bool  `json:"revertFlushesTile,omitempty"`
	RevertClearsRecentDeletes *bool  `json:"revertClearsRecentDeletes,omitempty"`
	IncludeChars              *bool  `json:"includeChars,omitempty"`
}

// optionsRecord is the persisted and fingerprinted form of replay.Options.
type optionsRecord struct {
	MinPasteLen               int   `json:"minPasteLen"`
	MaxRecentDeletes          int   `json:"maxRecentDeletes"`
	TileGapMs                 int64 `json:"tileGapMs"`
	CoalesceGapMs             int64 `json:"coalesceGapMs"`
	MaxIndexDistance          int   `json:"maxIndexDistance"`
	AllowInterveningDeletions bool  `json:"allowInterveningDeletions"`
	CutPasteMinLen            int   `json:"cutPasteMinLen"`
	LabelOrganicTyping        bool  `json:"labelOrganicTyping"`
	FlagCrossAuthorDeletes    bool  `json:"flagCrossAuthorDeletes"`
	RevertFlushesTile         bool  `json:"revertFlushesTile"`
	RevertClearsRecentDeletes bool  `json:"revertClearsRecentDeletes"`
	IncludeChars              bool  `json:"includeChars"`
}

func (in ReplayOptionsInput) apply(base replay.Options) (replay.Options, error) {
	opts := base
	invalid := map[string]string{}

	setInt := func(name string, value *int, target *int) {
		if value == nil {
			return
		}
		if *value < 0 {
			invalid[name] = "must be >= 0"
			return
		}
		*target = *value
	}
	setMillis := func(name string, value *int64, target *time.Duration) {
		if value == nil {
			return
		}
		if *value < 0 {
			invalid[name] = "must be >= 0"
			return
		}
		*target = time.Duration(*value) * time.Millisecond
	}
	setBool := func(value *bool, target *bool) {
		if value != nil {
			*target = *value
		}
	}

	setInt("minPasteLen", in.MinPasteLen, &opts.MinPasteLen)
	setInt("maxRecentDeletes", in.MaxRecentDeletes, &opts.MaxRecentDeletes)
	setMillis("tileGapMs", in.TileGapMs, &opts.TileGap)
	setMillis("coalesceGapMs", in.CoalesceGapMs, &opts.Coalesce.MaxGap)
	setInt("maxIndexDistance", in.MaxIndexDistance, &opts.Coalesce.MaxIndexDistance)
	setBool(in.AllowInterveningDeletions, &opts.Coalesce.AllowInterveningDeletions)
	setInt("cutPasteMinLen", in.CutPasteMinLen, &opts.CutPasteMinLen)
	setBool(in.LabelOrganicTyping, &opts.LabelOrganicTyping)
	setBool(in.FlagCrossAuthorDeletes, &opts.FlagCrossAuthorDeletes)
	setBool(in.RevertFlushesTile, &opts.RevertFlushesTile)
	setBool(in.RevertClearsRecentDeletes, &opts.RevertClearsRecentDeletes)
	setBool(in.IncludeChars, &opts.IncludeChars)

	if len(invalid) > 0 {
		return replay.Options{}, validationError("Invalid replay options", invalid)
	}
	return opts, nil
}

func recordOptions(opts replay.Options) optionsRecord {
	return optionsRecord{
		MinPasteLen:               opts.MinPasteLen,
		MaxRecentDeletes:          opts.MaxRecentDeletes,
		TileGapMs:                 opts.TileGap.Milliseconds(),
		CoalesceGapMs:             opts.Coalesce.MaxGap.Milliseconds(),
		MaxIndexDistance:          opts.Coalesce.MaxIndexDistance,
		AllowInterveningDeletions: opts.Coalesce.AllowInterveningDeletions,
		CutPasteMinLen:            opts.CutPasteMinLen,
		LabelOrganicTyping:        opts.LabelOrganicTyping,
		FlagCrossAuthorDeletes:    opts.FlagCrossAuthorDeletes,
		RevertFlushesTile:         opts.RevertFlushesTile,
		RevertClearsRecentDeletes: opts.RevertClearsRecentDeletes,
		IncludeChars:              opts.IncludeChars,
	}
}

// Fingerprint identifies a replay by its raw inputs and effective options. It
// also returns the options in the form stored alongside a report.
func Fingerprint(rawChangelog, rawUsers json.RawMessage, opts replay.Options) (string, json.RawMessage, error) {
	optionsJSON, err := json.Marshal(recordOptions(opts))
	if err != nil {
		return "", nil, fmt.Errorf("marshal options: %w", err)
	}
	return auth.Fingerprint(rawChangelog, nonEmptyJSON(rawUsers), optionsJSON), optionsJSON, nil
}
