package extractor

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// coverImagePriority orders candidate sources from most to least preferred.
const (
	coverOpenGraph = iota
	coverTwitter
	coverLinkRel
	coverNone
)

// coverImageURL scans document HTML for a representative image. It prefers
// Open Graph over Twitter card over legacy image_src link tags, resolves
// relative references against the page URL, and ignores non-http(s) schemes.
func coverImageURL(doc string, pageURL *url.URL) string {
	best := coverNone
	found := ""

	tokenizer := html.NewTokenizer(strings.NewReader(doc))
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}

		token := tokenizer.Token()
		candidate, priority := classifyImageTag(token)
		if candidate == "" || priority >= best {
			continue
		}
		best = priority
		found = candidate
		if best == coverOpenGraph {
			break
		}
	}

	return resolveImageURL(found, pageURL)
}

func classifyImageTag(token html.Token) (string, int) {
	switch token.Data {
	case "meta":
		var property, name, content string
		for _, attr := range token.Attr {
			switch attr.Key {
			case "property":
				property = strings.ToLower(attr.Val)
			case "name":
				name = strings.ToLower(attr.Val)
			case "content":
				content = attr.Val
			}
		}
		if content == "" {
			return "", coverNone
		}
		if property == "og:image" || property == "og:image:url" {
			return content, coverOpenGraph
		}
		if name == "twitter:image" || name == "twitter:image:src" {
			return content, coverTwitter
		}
	case "link":
		var rel, href string
		for _, attr := range token.Attr {
			switch attr.Key {
			case "rel":
				rel = strings.ToLower(attr.Val)
			case "href":
				href = attr.Val
			}
		}
		if rel == "image_src" && href != "" {
			return href, coverLinkRel
		}
	}
	return "", coverNone
}

func resolveImageURL(raw string, pageURL *url.URL) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if pageURL != nil {
		ref = pageURL.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}
