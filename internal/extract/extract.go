package extract

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// Document is the readable content of one page.
type Document struct {
	Title string
	Text  string
}

// FromHTML walks the parsed tree and keeps block text from the content root:
// <main>, else <article>, else <body>. Script, style and page chrome
// (nav, footer, aside, consent banners) are skipped. Paragraph-level
// elements end with a blank line so Clean can join them later.
func FromHTML(input []byte) Document {
	root, err := html.Parse(bytes.NewReader(input))
	if err != nil || root == nil {
		return Document{}
	}
	doc := Document{Title: strings.TrimSpace(titleOf(root))}

	content := firstElement(root, "main")
	if content == nil {
		content = firstElement(root, "article")
	}
	if content == nil {
		content = firstElement(root, "body")
	}
	if content == nil {
		return doc
	}
	var b strings.Builder
	walkText(&b, content, false)
	doc.Text = tidyLines(b.String())
	return doc
}

func titleOf(root *html.Node) string {
	head := firstElement(root, "head")
	if head == nil {
		return ""
	}
	t := firstElement(head, "title")
	if t == nil || t.FirstChild == nil {
		return ""
	}
	return t.FirstChild.Data
}

func firstElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && strings.EqualFold(n.Data, tag) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := firstElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func walkText(b *strings.Builder, n *html.Node, pre bool) {
	var name string
	if n.Type == html.ElementNode {
		if isChrome(n) {
			return
		}
		name = strings.ToLower(n.Data)
		switch name {
		case "script", "style", "noscript", "nav", "footer", "aside", "iframe", "header", "form":
			return
		case "pre":
			pre = true
			b.WriteString("\n")
		case "br", "hr", "ul", "ol", "li", "tr":
			b.WriteString("\n")
		case "p", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote":
			b.WriteString("\n")
		}
	}
	if n.Type == html.TextNode {
		data := n.Data
		if !pre {
			data = strings.NewReplacer("\r", " ", "\n", " ").Replace(data)
		}
		b.WriteString(data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(b, c, pre)
	}
	switch name {
	case "p", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote", "pre":
		b.WriteString("\n\n")
	case "li", "tr":
		b.WriteString("\n")
	}
}

var chromeMarkers = []string{"cookie", "consent", "gdpr", "newsletter-signup", "share-buttons"}

// isChrome reports whether id/class/role attributes mark the element as a
// banner or widget rather than article content.
func isChrome(n *html.Node) bool {
	for _, attr := range n.Attr {
		key := strings.ToLower(attr.Key)
		if key != "id" && key != "class" && key != "role" && key != "aria-label" {
			continue
		}
		val := strings.ToLower(attr.Val)
		if key == "role" && (val == "navigation" || val == "banner" || val == "contentinfo") {
			return true
		}
		for _, m := range chromeMarkers {
			if strings.Contains(val, m) {
				return true
			}
		}
	}
	return false
}

// tidyLines trims each line and keeps at most one blank line in a row.
func tidyLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			if len(out) > 0 && out[len(out)-1] == "" {
				continue
			}
			out = append(out, "")
			continue
		}
		out = append(out, strings.TrimLeft(line, " \t"))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
