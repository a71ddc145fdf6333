package replay

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// PasteKind is the provenance of an inserted span. The empty kind means the
// insert was not classified and is encoded as JSON null.
type PasteKind string

const (
	PasteNone     PasteKind = ""
	PasteOrganic  PasteKind = "organic"
	PasteInternal PasteKind = "internal"
	PasteExternal PasteKind = "external"
)

func (k PasteKind) MarshalJSON() ([]byte, error) {
	if k == PasteNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(k))
}

func (k *PasteKind) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*k = PasteNone
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*k = PasteKind(value)
	return nil
}

// Normalize lowercases s, collapses whitespace runs to one space and trims.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Classifier decides where an inserted span came from.
type Classifier struct {
	MinPasteLen        int
	CutPasteMinLen     int
	LabelOrganicTyping bool
}

// Classify returns the paste kind of inserted given the document text as it
// was before the insert and the recent deletions. cutPaste is true only when
// the short cut-and-paste check matched.
func (c Classifier) Classify(inserted, preInsert string, recent *RecentDeletes) (kind PasteKind, cutPaste bool) {
	t := Normalize(inserted)
	length := utf8.RuneCountInString(t)
	if length < c.MinPasteLen {
		if c.CutPasteMinLen > 0 && length >= c.CutPasteMinLen && recent.Contains(t) {
			return PasteInternal, true
		}
		if c.LabelOrganicTyping {
			return PasteOrganic, false
		}
		return PasteNone, false
	}
	if strings.Contains(Normalize(preInsert), t) {
		return PasteInternal, false
	}
	if recent.Contains(t) {
		return PasteInternal, false
	}
	return PasteExternal, false
}
