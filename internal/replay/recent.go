package replay

// RecentDeletes is a bounded FIFO of normalized, recently deleted text.
type RecentDeletes struct {
	capacity int
	items    []string
}

func NewRecentDeletes(capacity int) *RecentDeletes {
	return &RecentDeletes{capacity: max(0, capacity), items: make([]string, 0, max(0, capacity))}
}

// Push normalizes text and appends it, evicting the oldest entry when full.
// Text that normalizes to "" is ignored and Push reports false.
func (r *RecentDeletes) Push(text string) bool {
	normalized := Normalize(text)
	if normalized == "" || r.capacity == 0 {
		return false
	}
	if len(r.items) == r.capacity {
		copy(r.items, r.items[1:])
		r.items = r.items[:len(r.items)-1]
	}
	r.items = append(r.items, normalized)
	return true
}

// Contains reports whether an already normalized string is an exact entry.
func (r *RecentDeletes) Contains(normalized string) bool {
	for _, item := range r.items {
		if item == normalized {
			return true
		}
	}
	return false
}

// Items returns the entries, oldest first.
func (r *RecentDeletes) Items() []string {
	return append([]string(nil), r.items...)
}

func (r *RecentDeletes) Len() int { return len(r.items) }

func (r *RecentDeletes) Clear() { r.items = r.items[:0] }
