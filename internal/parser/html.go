package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/rohmanhakim/pod-crawler/pkg/urlutil"
)

/*
HTML parsing: visible text plus absolute outbound links.

Pure function, no I/O. Malformed HTML never raises; the tokenizer's
best-effort tree is used as-is and a hopeless document yields empty
structures. rel="nofollow" is deliberately ignored — every link is
extracted. <base href> is honored for resolution.
*/

// ParseResult is the parser's output for one document.
type ParseResult struct {
	Text  string
	Links []string
}

// skippedTags subtrees contribute no visible text.
var skippedTags = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"template": {},
	"iframe":   {},
	"head":     {},
}

// blockTags force a line boundary around their content.
var blockTags = map[string]struct{}{
	"address": {}, "article": {}, "aside": {}, "blockquote": {}, "br": {},
	"dd": {}, "div": {}, "dl": {}, "dt": {}, "fieldset": {}, "figcaption": {},
	"figure": {}, "footer": {}, "form": {}, "h1": {}, "h2": {}, "h3": {},
	"h4": {}, "h5": {}, "h6": {}, "header": {}, "hr": {}, "li": {}, "main": {},
	"nav": {}, "ol": {}, "p": {}, "pre": {}, "section": {}, "table": {},
	"td": {}, "th": {}, "tr": {}, "ul": {},
}

// Parse extracts visible text and the set of absolute, normalized http(s)
// links from htmlContent, resolving relative hrefs against finalURL (or the
// document's <base href> when present).
func Parse(htmlContent string, finalURL string) ParseResult {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return ParseResult{}
	}
	base := resolveBase(doc, finalURL)
	return ParseResult{
		Text:  extractText(doc),
		Links: extractLinks(doc, base),
	}
}

// resolveBase returns the URL hrefs resolve against: the document's
// <base href> if present (itself resolved against finalURL), else finalURL.
func resolveBase(doc *goquery.Document, finalURL string) string {
	href, ok := doc.Find("base[href]").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return finalURL
	}
	resolved := urlutil.Resolve(finalURL, href)
	if resolved == "" {
		return finalURL
	}
	return resolved
}

func extractLinks(doc *goquery.Document, base string) []string {
	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		abs := urlutil.Resolve(base, href)
		if abs == "" {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})
	return links
}

func extractText(doc *goquery.Document) string {
	var sb strings.Builder
	for _, root := range doc.Nodes {
		walkText(root, &sb)
	}
	return collapseWhitespace(sb.String())
}

func walkText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		if _, skip := skippedTags[n.Data]; skip {
			return
		}
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		return
	}

	_, block := blockTags[n.Data]
	if n.Type == html.ElementNode && block {
		sb.WriteByte('\n')
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walkText(child, sb)
	}
	if n.Type == html.ElementNode && block {
		sb.WriteByte('\n')
	}
}

// collapseWhitespace trims each line and drops empty ones, so block
// boundaries become single newlines and inline runs keep single spaces.
func collapseWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
