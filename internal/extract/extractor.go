package extract

import (
	"bytes"
	"errors"
	"net/url"
	"strings"

	readability "codeberg.org/readeck/go-readability/v2"
)

// ErrNoContent is returned when a page yields no readable article text.
var ErrNoContent = errors.New("no readable content")

// Extractor isolates the main article text of an HTML page.
// Implementations must be safe for concurrent use.
type Extractor interface {
	Extract(input []byte, pageURL string) (Document, error)
}

// Readability runs Mozilla's Readability algorithm and falls back to the
// DOM walker when it finds nothing.
type Readability struct {
	// DisableFallback skips the DOM walker.
	DisableFallback bool
}

func (r Readability) Extract(input []byte, pageURL string) (Document, error) {
	parsed, _ := url.Parse(pageURL)
	article, err := readability.FromReader(bytes.NewReader(input), parsed)
	if err == nil && article.Node != nil {
		var buf bytes.Buffer
		if rerr := article.RenderText(&buf); rerr == nil && strings.TrimSpace(buf.String()) != "" {
			return Document{Title: strings.TrimSpace(article.Title()), Text: buf.String()}, nil
		}
	}
	if r.DisableFallback {
		return Document{}, ErrNoContent
	}
	return HeuristicExtractor{}.Extract(input, pageURL)
}

// HeuristicExtractor uses FromHTML, which prefers <main>/<article> and
// skips navigation and consent banners.
type HeuristicExtractor struct{}

func (HeuristicExtractor) Extract(input []byte, _ string) (Document, error) {
	doc := FromHTML(input)
	if strings.TrimSpace(doc.Text) == "" {
		return Document{}, ErrNoContent
	}
	return doc, nil
}
