package rss

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

var imgSrcPattern = regexp.MustCompile(`(?i)<img[^>]+src\s*=\s*["']([^"']+)["']`)

// extractImage walks the enclosure, the feed image and the first embedded
// <img>. An empty result leaves the fallback to the upserter.
func extractImage(entry *gofeed.Item, link string) string {
	for _, enc := range entry.Enclosures {
		if enc == nil || enc.URL == "" || !isImageEnclosure(enc) {
			continue
		}
		if u := resolveURL(link, enc.URL); u != "" {
			return u
		}
	}

	if entry.Image != nil && entry.Image.URL != "" {
		if u := resolveURL(link, strings.TrimSpace(entry.Image.URL)); u != "" {
			return u
		}
	}

	for _, html := range []string{entry.Content, entry.Description} {
		if src := firstImageSrc(html); src != "" {
			return resolveURL(link, src)
		}
	}

	return ""
}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".avif"}

// isImageEnclosure accepts a declared image type, or an untyped enclosure
// whose path carries an image extension.
func isImageEnclosure(enc *gofeed.Enclosure) bool {
	if enc.Type != "" {
		return strings.HasPrefix(strings.ToLower(enc.Type), "image/")
	}

	path := enc.URL
	if u, err := url.Parse(enc.URL); err == nil {
		path = u.Path
	}
	path = strings.ToLower(path)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func firstImageSrc(html string) string {
	if !strings.Contains(strings.ToLower(html), "<img") {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err == nil {
		if src, ok := doc.Find("img[src]").First().Attr("src"); ok && strings.TrimSpace(src) != "" {
			return strings.TrimSpace(src)
		}
	}

	if m := imgSrcPattern.FindStringSubmatch(html); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// resolveURL makes src absolute relative to the article link. Values that
// cannot be made absolute are dropped.
func resolveURL(base, src string) string {
	ref, err := url.Parse(src)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}

	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return ""
	}
	return b.ResolveReference(ref).String()
}

// plainText strips markup from feed HTML and collapses whitespace.
func plainText(html string) string {
	if html == "" {
		return ""
	}
	text := html
	if strings.Contains(html, "<") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
			text = doc.Text()
		}
	}
	return strings.Join(strings.Fields(text), " ")
}
