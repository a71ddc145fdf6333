package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Replay.MinPasteLen != 25 || cfg.Replay.MaxRecentDeletes != 10 {
		t.Fatalf("unexpected replay defaults %+v", cfg.Replay)
	}
	if cfg.Replay.TileGap != time.Minute || cfg.Replay.Coalesce.MaxGap != 5*time.Minute {
		t.Fatalf("unexpected gaps %+v", cfg.Replay)
	}
	if !cfg.Replay.Coalesce.AllowInterveningDeletions {
		t.Fatal("expected intervening deletions allowed by default")
	}
	if cfg.MaxOperations != 500000 {
		t.Fatalf("unexpected max operations %d", cfg.MaxOperations)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PROVENANCE_MIN_PASTE_LEN", "40")
	t.Setenv("PROVENANCE_TILE_GAP_MS", "1500")
	t.Setenv("PROVENANCE_COALESCE_INDEX_DISTANCE", "nope")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("PROVENANCE_CACHE_TTL_SECONDS", "60")

	cfg := Load()
	if cfg.Replay.MinPasteLen != 40 {
		t.Fatalf("expected min paste len 40, got %d", cfg.Replay.MinPasteLen)
	}
	if cfg.Replay.TileGap != 1500*time.Millisecond {
		t.Fatalf("unexpected tile gap %v", cfg.Replay.TileGap)
	}
	if cfg.Replay.Coalesce.MaxIndexDistance != 200 {
		t.Fatalf("invalid value should fall back, got %d", cfg.Replay.Coalesce.MaxIndexDistance)
	}
	if !cfg.MinIOUseSSL || cfg.CacheTTL != time.Minute {
		t.Fatalf("unexpected overrides %+v", cfg)
	}
}
