package fetcher

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"

	"github.com/nao1215/sitegraph/internal/model"
)

// Parser extracts links, images and titles from an HTML document.
type Parser struct {
	// baseURL resolves relative references. A <base href> in the document
	// replaces it for the elements that follow.
	baseURL *url.URL
}

// ParseResult contains everything extracted from one document, in
// document order. Links are deduplicated; images and titles are not,
// the link graph does that.
type ParseResult struct {
	// Links are the absolute targets of <a href> elements.
	Links []string

	// Images are the <img> elements with a src.
	Images []model.Image

	// Titles are the texts of <title> and <h1> elements.
	Titles []string
}

// NewParser creates a parser resolving relative references against baseURL.
func NewParser(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u}, nil
}

// Parse reads an HTML document from content.
func (p *Parser) Parse(content io.Reader) (*ParseResult, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	result := &ParseResult{}
	seenLinks := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "base":
				p.setBase(getAttr(n, "href"))

			case "title", "h1":
				if title := normalizeText(textContent(n)); title != "" {
					result.Titles = append(result.Titles, title)
				}

			case "a":
				if link := p.resolveURL(getAttr(n, "href")); link != "" && !seenLinks[link] {
					seenLinks[link] = true
					result.Links = append(result.Links, link)
				}

			case "img":
				if src := p.resolveURL(getAttr(n, "src")); src != "" {
					result.Images = append(result.Images, model.Image{
						Link: src,
						Alt:  normalizeText(getAttr(n, "alt")),
					})
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return result, nil
}

func (p *Parser) setBase(href string) {
	if href == "" {
		return
	}
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return
	}
	p.baseURL = p.baseURL.ResolveReference(u)
}

// resolveURL resolves href against the base URL. Script, mail, phone and
// inline data references resolve to "".
func (p *Parser) resolveURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" {
		return ""
	}

	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return p.baseURL.ResolveReference(u).String()
}

// textContent concatenates all text below n.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// normalizeText collapses whitespace and converts s to NFC so visually
// identical titles compare equal.
func normalizeText(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
