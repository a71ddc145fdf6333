package export

import (
	"context"
	"fmt"
)

type renderer func(ctx context.Context, html, title string) (*Result, error)

// Service renders reports. PDF and DOCX conversion shell out to headless
// Chrome and pandoc respectively.
type Service struct {
	pdf  renderer
	docx renderer
}

func NewService() *Service {
	return &Service{pdf: exportPDF, docx: exportDOCX}
}

// Export generates an export in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	data := BuildTemplateData(req)
	html, err := RenderReportHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	title := "provenance-" + req.DocumentID
	if req.ReportID != "" {
		title += "-" + req.ReportID
	}

	switch req.Format {
	case "", FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return s.pdf(ctx, html, title)
	case FormatDOCX:
		return s.docx(ctx, html, title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}
