// Package acquisition fetches program pages and turns them into raw JSON
// documents that the file corpus source indexes alongside the seed data.
package acquisition

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

var hiddenElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

// ExtractVisibleText returns the text of an HTML page with script, style and
// noscript content removed and all whitespace runs collapsed to one space.
func ExtractVisibleText(r io.Reader) (string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hiddenElements[strings.ToLower(n.Data)] {
			return
		}
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " "), nil
}

// FindPlanLinks returns candidate study-plan links from an HTML page: every
// href pointing at a PDF, then every href mentioning "plan" or "учеб".
// Links are resolved against base and deduplicated, first occurrence wins.
func FindPlanLinks(r io.Reader, base string) ([]string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing base url %q: %w", base, err)
	}

	var hrefs []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if strings.EqualFold(a.Key, "href") {
					if v := strings.TrimSpace(a.Val); v != "" {
						hrefs = append(hrefs, v)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	var candidates []string
	for _, h := range hrefs {
		if isPDF(h) {
			candidates = append(candidates, h)
		}
	}
	for _, h := range hrefs {
		lower := strings.ToLower(h)
		if strings.Contains(lower, "plan") || strings.Contains(lower, "учеб") {
			candidates = append(candidates, h)
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, h := range candidates {
		abs := resolve(baseURL, h)
		if abs == "" {
			continue
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	}
	return out, nil
}

func isPDF(href string) bool {
	if u, err := url.Parse(href); err == nil {
		return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
	}
	return strings.HasSuffix(strings.ToLower(href), ".pdf")
}

// resolve makes href absolute against base, dropping fragments and
// non-navigable schemes.
func resolve(base *url.URL, href string) string {
	if strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	u := base.ResolveReference(ref)
	u.Fragment = ""
	return u.String()
}
