package dom

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/product-info-extractor/internal/models"
	"github.com/maltedev/product-info-extractor/internal/profile"
)

// ProductInfoFromHTML applies the same first-non-empty-match rule as
// ProductInfoScript to a static HTML document.
func ProductInfoFromHTML(html string, selectors map[string][]string) (map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	out := make(map[string]string, len(selectors))
	for field, list := range selectors {
		for _, sel := range list {
			var found string
			doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
				found = readField(field, s)
				return found == ""
			})
			if found != "" {
				out[field] = found
				break
			}
		}
	}
	return out, nil
}

func readField(field string, s *goquery.Selection) string {
	if field == profile.FieldMainImage {
		for _, attr := range []string{"src", "data-src", "data-original-src"} {
			if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}
	if field == profile.FieldDimensions {
		return lineText(s)
	}
	return strings.TrimSpace(s.Text())
}

// lineText renders each text run under s on its own line, so size and
// stock labels in separate elements stay apart the way innerText keeps
// them.
func lineText(s *goquery.Selection) string {
	var lines []string
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, c *goquery.Selection) {
			switch goquery.NodeName(c) {
			case "#text":
				for _, l := range strings.Split(c.Text(), "\n") {
					if l = strings.TrimSpace(l); l != "" {
						lines = append(lines, l)
					}
				}
			case "script", "style":
			default:
				walk(c)
			}
		})
	}
	walk(s)
	return strings.Join(lines, "\n")
}

// ImagesFromHTML collects image candidates from static HTML. Sources are
// resolved against pageURL; sizes come from the width and height
// attributes when present.
func ImagesFromHTML(html, pageURL string) []models.ImageCandidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	base, _ := url.Parse(pageURL)

	var out []models.ImageCandidate
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src := firstAttr(s, "src", "data-src", "data-original-src")
		src = resolve(base, src)
		if !strings.HasPrefix(src, "http") {
			return
		}
		alt, _ := s.Attr("alt")
		out = append(out, models.ImageCandidate{
			URL:    src,
			Alt:    alt,
			Width:  numericAttr(s, "width"),
			Height: numericAttr(s, "height"),
		})
	})

	if og, ok := doc.Find(`meta[property="og:image"]`).First().Attr("content"); ok && og != "" {
		out = append(out, models.ImageCandidate{URL: resolve(base, og), Alt: "og:image"})
	}
	return out
}

// PageTitle returns the <title> text of an HTML document.
func PageTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func firstAttr(s *goquery.Selection, attrs ...string) string {
	for _, a := range attrs {
		if v, ok := s.Attr(a); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func numericAttr(s *goquery.Selection, attr string) float64 {
	v, ok := s.Attr(attr)
	if !ok {
		return 0
	}
	n, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(v), "px"), 64)
	if err != nil {
		return 0
	}
	return n
}

func resolve(base *url.URL, ref string) string {
	if ref == "" || base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
