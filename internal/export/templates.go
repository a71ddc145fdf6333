package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"provenance/api/internal/replay"
)

//go:embed templates/*.html
var templateFS embed.FS

var reportTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"comma": func(n int) string { return humanize.Comma(int64(n)) },
		"ago":   humanize.Time,
		"formatDate": func(t time.Time, layout string) string {
			return t.UTC().Format(layout)
		},
		"percent": percent,
	}

	templateContent, err := templateFS.ReadFile("templates/report.html")
	if err != nil {
		reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}
	reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for report template rendering.
type TemplateData struct {
	Title       string
	ReportID    string
	DocumentID  string
	CreatedAt   time.Time
	Meta        replay.Meta
	Authors     []TemplateAuthor
	Tiles       []TemplateTile
	Deletions   []TemplateDeletion
	FinalText   string
	IncludeText bool
}

type TemplateAuthor struct {
	AuthorID string
	Name     string
	Tiles    int
	Stats    replay.Stats
}

type TemplateTile struct {
	Title     string
	Author    string
	Started   time.Time
	Ended     time.Time
	BodyHTML  template.HTML
	Stats     replay.Stats
	HasPastes bool
}

type TemplateDeletion struct {
	Author      string
	At          time.Time
	Text        string
	Range       [2]int
	CrossAuthor bool
}

// BuildTemplateData projects a replay result into template rows. Authors are
// ordered by contributed characters, largest first.
func BuildTemplateData(req Request) TemplateData {
	result := req.Result
	data := TemplateData{
		Title:       fmt.Sprintf("Authorship report for %s", req.DocumentID),
		ReportID:    req.ReportID,
		DocumentID:  req.DocumentID,
		CreatedAt:   req.CreatedAt,
		Meta:        result.Meta,
		Authors:     make([]TemplateAuthor, 0, len(result.TotalsByUser)),
		Tiles:       make([]TemplateTile, 0, len(result.Tiles)),
		Deletions:   make([]TemplateDeletion, 0, len(result.Deletions)),
		FinalText:   result.FinalText,
		IncludeText: req.IncludeText,
	}
	if req.DocumentID == "" {
		data.Title = "Authorship report"
	}

	for authorID, totals := range result.TotalsByUser {
		data.Authors = append(data.Authors, TemplateAuthor{
			AuthorID: authorID,
			Name:     totals.Author,
			Tiles:    totals.Tiles,
			Stats:    totals.Stats,
		})
	}
	sort.Slice(data.Authors, func(i, j int) bool {
		if data.Authors[i].Stats.TotalChars != data.Authors[j].Stats.TotalChars {
			return data.Authors[i].Stats.TotalChars > data.Authors[j].Stats.TotalChars
		}
		return data.Authors[i].AuthorID < data.Authors[j].AuthorID
	})

	for _, tile := range result.Tiles {
		data.Tiles = append(data.Tiles, TemplateTile{
			Title:     tile.Title,
			Author:    tile.Author,
			Started:   tile.Timestamp,
			Ended:     tile.LastTimestamp,
			BodyHTML:  template.HTML(SegmentsToHTML(tile.Segments)),
			Stats:     tile.Stats,
			HasPastes: tile.Stats.ExternalChars > 0 || tile.Stats.InternalChars > 0,
		})
	}

	for _, del := range result.Deletions {
		data.Deletions = append(data.Deletions, TemplateDeletion{
			Author:      del.Author,
			At:          del.Timestamp,
			Text:        del.Text,
			Range:       del.Range,
			CrossAuthor: del.CrossAuthor != nil && *del.CrossAuthor,
		})
	}
	return data
}

// RenderReportHTML renders the report template with provided data.
func RenderReportHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func percent(part, total int) string {
	if total <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(part)*100/float64(total))
}

const fallbackTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.Title}}</title></head>
<body>
  <h1>{{.Title}}</h1>
  <ul>{{range .Authors}}<li>{{.Name}}: {{comma .Stats.TotalChars}} chars</li>{{end}}</ul>
  {{range .Tiles}}<div class="tile"><h3>{{.Title}} · {{.Author}}</h3><p>{{.BodyHTML}}</p></div>{{end}}
</body>
</html>`
