package extractor

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

var jsonLDSelector = cascadia.MustCompile(`script[type="application/ld+json"]`)

// structuredData parses each JSON-LD block independently. A block that is
// empty or not valid JSON is dropped without affecting the others.
func structuredData(root *html.Node) []any {
	blocks := []any{}
	for i, node := range cascadia.QueryAll(root, jsonLDSelector) {
		raw := strings.TrimSpace(nodeText(node))
		if raw == "" {
			continue
		}
		var block any
		if err := json.Unmarshal([]byte(raw), &block); err != nil {
			slog.Debug("dropping invalid JSON-LD block", "index", i, "error", err)
			continue
		}
		if block == nil {
			continue
		}
		blocks = append(blocks, block)
	}
	return blocks
}

// nodeText concatenates the raw text children of n. Script contents are
// parsed as a single raw text node, but this tolerates split nodes too.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}
