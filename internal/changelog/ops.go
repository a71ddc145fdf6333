// Package changelog decodes the revision changelog exported by the document
// host into typed operations.
package changelog

import "time"

// Op is one decoded changelog operation. The set of implementations is closed:
// Insert, Delete, Multi, Replace and Revert.
type Op interface {
	isOp()
}

// Insert places Text before the 1-based index Before.
type Insert struct {
	Before int
	Text   []rune
}

// Delete removes the inclusive 1-based range [Start, End].
type Delete struct {
	Start int
	End   int
}

// Multi applies Ops in order with the enclosing record's timestamp and author.
type Multi struct {
	Ops []Op
}

// Replace is applied exactly like Multi.
type Replace struct {
	Ops []Op
}

// Revert empties the document and then applies Ops in order.
type Revert struct {
	Ops []Op
}

func (Insert) isOp()  {}
func (Delete) isOp()  {}
func (Multi) isOp()   {}
func (Replace) isOp() {}
func (Revert) isOp()  {}

// Record is a top-level changelog entry.
type Record struct {
	Op        Op
	Timestamp time.Time
	AuthorID  string
}

// UserInfo is the userMap entry for one author.
type UserInfo struct {
	Name      string `json:"name,omitempty"`
	Anonymous bool   `json:"anonymous,omitempty"`
}

// AnonymousName is shown for authors flagged anonymous in the userMap.
const AnonymousName = "Anonymous"

// UserMap resolves author ids to display names.
type UserMap map[string]UserInfo

// DisplayName returns the name to show for authorID.
func (m UserMap) DisplayName(authorID string) string {
	info, ok := m[authorID]
	if !ok {
		return authorID
	}
	if info.Anonymous {
		return AnonymousName
	}
	if info.Name != "" {
		return info.Name
	}
	return authorID
}
