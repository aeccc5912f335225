// Package mdadapter renders the download page shown for missing or expired links.
package mdadapter

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"

	_ "embed"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"go.abhg.dev/goldmark/frontmatter"
)

const defaultTitle = "Not found"

var (
	//go:embed templates/notfound.md
	notFoundContent []byte

	//go:embed templates/layout.html
	layoutContent string
)

type Frontmatter struct {
	Title string `yaml:"title"`
}

type pageContext struct {
	Title   string
	Content template.HTML
}

type mdAdapter struct {
	md     goldmark.Markdown
	layout *template.Template
	source []byte
	log    *slog.Logger
}

func NewMDAdapter(log *slog.Logger) (*mdAdapter, error) {
	return NewMDAdapterWithSource(notFoundContent, log)
}

// NewMDAdapterWithSource renders source instead of the embedded page.
func NewMDAdapterWithSource(source []byte, log *slog.Logger) (*mdAdapter, error) {
	layout, err := template.New("layout").Parse(layoutContent)
	if err != nil {
		return nil, fmt.Errorf("cannot parse layout: %w", err)
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			&frontmatter.Extender{},
			NewFileExtension(),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)

	return &mdAdapter{
		md:     md,
		layout: layout,
		source: source,
		log:    log.With(slog.String("item", "MDAdapter")),
	}, nil
}

// NotFoundPage renders the page for the requested file name.
func (a *mdAdapter) NotFoundPage(name string) (string, error) {
	pc := parser.NewContext()
	pc.Set(FileNameKey, name)

	var body bytes.Buffer
	if err := a.md.Convert(a.source, &body, parser.WithContext(pc)); err != nil {
		return "", fmt.Errorf("cannot convert markdown: %w", err)
	}

	title := defaultTitle
	if data := frontmatter.Get(pc); data != nil {
		var fm Frontmatter
		if err := data.Decode(&fm); err != nil {
			a.log.Warn("Cannot decode frontmatter", slog.Any("error", err))
		} else if fm.Title != "" {
			title = fm.Title
		}
	}

	var page bytes.Buffer
	if err := a.layout.Execute(&page, &pageContext{Title: title, Content: template.HTML(body.String())}); err != nil {
		return "", fmt.Errorf("cannot execute layout: %w", err)
	}

	return page.String(), nil
}
