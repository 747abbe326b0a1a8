package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
)

// ErrUnsupported is returned for files whose format cannot be imported.
var ErrUnsupported = errors.New("unsupported file format")

// Document is extracted text ready to become a note.
type Document struct {
	Title   string
	Content string
}

// DetectFormat maps a file name to its format by extension.
func DetectFormat(name string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return FormatMarkdown, true
	case ".txt", ".text":
		return FormatText, true
	case ".html", ".htm":
		return FormatHTML, true
	case ".pdf":
		return FormatPDF, true
	}
	return "", false
}

// Extract converts data to a Document. The title falls back to the file
// name without its extension.
func Extract(format Format, name string, data []byte) (Document, error) {
	var (
		doc Document
		err error
	)
	switch format {
	case FormatMarkdown:
		doc = extractMarkdown(data)
	case FormatText:
		doc = Document{Content: string(data)}
	case FormatHTML:
		doc, err = extractHTML(data)
	case FormatPDF:
		doc, err = extractPDF(data)
	default:
		return Document{}, fmt.Errorf("%w: %q", ErrUnsupported, format)
	}
	if err != nil {
		return Document{}, err
	}
	doc.Content = strings.TrimSpace(doc.Content)
	if doc.Title == "" {
		base := filepath.Base(name)
		doc.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return doc, nil
}

// extractMarkdown keeps the source as is and takes the first level-one
// heading as the title.
func extractMarkdown(data []byte) Document {
	content := string(data)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return Document{Title: strings.TrimSpace(line[2:]), Content: content}
		}
	}
	return Document{Content: content}
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"pre": true, "blockquote": true, "section": true, "article": true,
}

func extractHTML(data []byte) (Document, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return Document{}, fmt.Errorf("parsing html: %w", err)
	}

	var doc Document
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "head":
				findTitle(n, &doc)
				return
			case "script", "style", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
				if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
					b.WriteByte(' ')
				}
				b.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] && b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
	}
	walk(root)
	doc.Content = b.String()
	return doc, nil
}

func findTitle(n *html.Node, doc *Document) {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		doc.Title = strings.TrimSpace(n.FirstChild.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		findTitle(c, doc)
	}
}

// extractPDF recovers from reader panics, which malformed content streams
// can trigger.
func extractPDF(data []byte) (doc Document, err error) {
	defer func() {
		if p := recover(); p != nil {
			doc, err = Document{}, fmt.Errorf("extracting pdf text: %v", p)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Document{}, fmt.Errorf("opening pdf: %w", err)
	}
	text, err := r.GetPlainText()
	if err != nil {
		return Document{}, fmt.Errorf("extracting pdf text: %w", err)
	}
	content, err := io.ReadAll(text)
	if err != nil {
		return Document{}, fmt.Errorf("reading pdf text: %w", err)
	}
	return Document{Content: string(content)}, nil
}
