package replay

import (
	"sort"
	"time"
)

// Coalesce merges nearby tiles of the same author. Tiles are walked in start
// order; the next tile joins the accumulator when it is by the same author,
// starts within MaxGap after the accumulator's last segment, begins within
// MaxIndexDistance of the accumulator's last insert index, and no other
// author's tile starts strictly between the two starts. Deletions in that
// window block the merge only when AllowInterveningDeletions is false.
//
// The input is not modified. Every returned tile has its text and stats
// rebuilt from its segments.
func Coalesce(tiles []Tile, deletions []Deletion, opts CoalesceOptions) []Tile {
	if len(tiles) == 0 {
		return make([]Tile, 0)
	}
	ordered := append([]Tile(nil), tiles...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	var deletedAt []time.Time
	if !opts.AllowInterveningDeletions {
		deletedAt = make([]time.Time, len(deletions))
		for i, d := range deletions {
			deletedAt[i] = d.Timestamp
		}
		sort.Slice(deletedAt, func(i, j int) bool { return deletedAt[i].Before(deletedAt[j]) })
	}

	blocked := func(authorID string, lo, hi time.Time) bool {
		first := sort.Search(len(ordered), func(i int) bool { return ordered[i].Timestamp.After(lo) })
		for i := first; i < len(ordered) && ordered[i].Timestamp.Before(hi); i++ {
			if ordered[i].AuthorID != authorID {
				return true
			}
		}
		if deletedAt != nil {
			i := sort.Search(len(deletedAt), func(i int) bool { return deletedAt[i].After(lo) })
			if i < len(deletedAt) && deletedAt[i].Before(hi) {
				return true
			}
		}
		return false
	}

	merged := make([]Tile, 0, len(ordered))
	cur := ordered[0]
	cur.Segments = append([]Segment(nil), cur.Segments...)

	for _, next := range ordered[1:] {
		gap := next.Timestamp.Sub(cur.LastTime())
		sameAuthor := cur.AuthorID == next.AuthorID
		closeInTime := gap >= 0 && gap <= opts.MaxGap
		closeInSpace := abs(cur.LastIndex()-next.FirstIndex()) <= opts.MaxIndexDistance

		if sameAuthor && closeInTime && closeInSpace && !blocked(cur.AuthorID, cur.Timestamp, next.Timestamp) {
			cur.Segments = append(cur.Segments, next.Segments...)
			continue
		}
		merged = append(merged, buildTile(cur.AuthorID, cur.Author, cur.Timestamp, cur.Segments))
		cur = next
		cur.Segments = append([]Segment(nil), next.Segments...)
	}
	merged = append(merged, buildTile(cur.AuthorID, cur.Author, cur.Timestamp, cur.Segments))
	return merged
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
