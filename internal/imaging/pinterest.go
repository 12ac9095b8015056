package imaging

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// extractPinterestImage finds the pin image in a Pinterest page.
//
// The og:image meta tag is preferred; otherwise the first <img> whose class
// list contains "mainImage" is used. Relative URLs are resolved against base.
func extractPinterestImage(r io.Reader, base string) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse pinterest page: %w", err)
	}

	var ogImage, mainImage string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				if ogImage == "" && (attr(n, "property") == "og:image" || attr(n, "name") == "og:image") {
					ogImage = attr(n, "content")
				}
			case "img":
				if mainImage == "" && hasClass(n, "mainImage") {
					mainImage = attr(n, "src")
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	found := ogImage
	if found == "" {
		found = mainImage
	}
	if found == "" {
		return "", fmt.Errorf("could not find image URL in pinterest page %s", base)
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return found, nil
	}
	ref, err := url.Parse(found)
	if err != nil {
		return "", fmt.Errorf("invalid pinterest image URL %q: %w", found, err)
	}
	return baseURL.ResolveReference(ref).String(), nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}
