package export

import (
	"html"
	"strings"

	"provenance/api/internal/replay"
)

// SegmentsToHTML renders tile segments as escaped spans classed by paste
// kind. Unclassified segments are emitted as bare text.
func SegmentsToHTML(segments []replay.Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		text := escapeText(seg.Text)
		if text == "" {
			continue
		}
		class := segmentClass(seg)
		if class == "" {
			b.WriteString(text)
			continue
		}
		b.WriteString(`<span class="`)
		b.WriteString(class)
		b.WriteString(`" title="`)
		b.WriteString(seg.Timestamp.UTC().Format("2006-01-02 15:04:05"))
		b.WriteString(`">`)
		b.WriteString(text)
		b.WriteString("</span>")
	}
	return b.String()
}

func segmentClass(seg replay.Segment) string {
	var class string
	switch seg.Paste {
	case replay.PasteExternal:
		class = "paste-external"
	case replay.PasteInternal:
		class = "paste-internal"
	case replay.PasteOrganic:
		class = "organic"
	default:
		return ""
	}
	if seg.CutPaste {
		class += " cut-paste"
	}
	return class
}

func escapeText(s string) string {
	return strings.ReplaceAll(html.EscapeString(s), "\n", "<br>")
}
