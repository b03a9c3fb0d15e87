// Package export renders pre-visit reports as JSON, Markdown or HTML.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/zatekoja/patientinsights/internal/domain/entities"
)

// Format is an output encoding for a report.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// ParseFormat accepts json, markdown (or md) and html. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("unsupported report format %q", s)
}

// ContentType returns the HTTP media type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "application/json"
	}
}

// Write renders report to w in the given format.
func Write(w io.Writer, report *entities.PreVisitReport, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case FormatMarkdown:
		_, err := io.WriteString(w, Markdown(report))
		return err
	case FormatHTML:
		page, err := HTML(report)
		if err != nil {
			return err
		}
		_, err = w.Write(page)
		return err
	}
	return fmt.Errorf("unsupported report format %q", format)
}

// markdown renders GFM tables. Raw HTML in the source is escaped, since
// narrative text comes from a model.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

var pageTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 50rem; margin: 2rem auto; padding: 0 1rem; line-height: 1.5; color: #1f2933; }
table { border-collapse: collapse; width: 100%; margin: 1rem 0; }
th, td { border: 1px solid #cbd2d9; padding: 0.4rem 0.6rem; text-align: left; vertical-align: top; }
th { background: #f0f4f8; }
blockquote { border-left: 4px solid #9fb3c8; margin: 1rem 0; padding: 0.2rem 1rem; color: #486581; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// HTML renders the Markdown form of the report into a standalone page.
func HTML(report *entities.PreVisitReport) ([]byte, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(Markdown(report)), &body); err != nil {
		return nil, fmt.Errorf("failed to render report html: %w", err)
	}

	var page bytes.Buffer
	err := pageTemplate.Execute(&page, struct {
		Title string
		Body  template.HTML
	}{
		Title: reportTitle,
		Body:  template.HTML(body.String()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render report page: %w", err)
	}
	return page.Bytes(), nil
}
