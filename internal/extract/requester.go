package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/rsm23/netflix-home-auto-confirm/internal/model"
)

// DefaultRequesterMarkers introduce the "requested by" line of the notification.
var DefaultRequesterMarkers = []string{"demande effectuée par", "requested by"}

// Requester returns the normalised text of the first table cell, across HTML
// parts in order, whose lowercase text contains one of markers. Plain-text
// parts are never consulted.
func Requester(parts []model.ContentPart, markers []string) (string, bool) {
	if len(markers) == 0 {
		markers = DefaultRequesterMarkers
	}
	htmlDocs, _ := bucket(parts)
	for _, doc := range htmlDocs {
		root, err := html.Parse(strings.NewReader(doc))
		if err != nil {
			continue
		}
		if txt, ok := findCell(root, markers); ok {
			return txt, true
		}
	}
	return "", false
}

// findCell visits nodes in document order, so an enclosing cell is checked
// before the cells nested inside it.
func findCell(n *html.Node, markers []string) (string, bool) {
	if n.Type == html.ElementNode && (n.DataAtom == atom.Td || n.DataAtom == atom.Th) {
		if txt := cellText(n); txt != "" && containsAny(strings.ToLower(txt), markers) {
			return txt, true
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if txt, ok := findCell(c, markers); ok {
			return txt, true
		}
	}
	return "", false
}

// cellText joins the cell's text nodes with single spaces.
func cellText(n *html.Node) string {
	var words []string
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			words = append(words, strings.Fields(n.Data)...)
		case html.ElementNode:
			if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(words, " ")
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" && strings.Contains(s, m) {
			return true
		}
	}
	return false
}
