package dom

import (
	"fmt"
	"sort"
	"strings"

	"github.com/maltedev/product-info-extractor/internal/browser"
	"github.com/maltedev/product-info-extractor/internal/models"
)

var productImageKeywords = []string{
	"product", "item", "main", "hero", "zoom", "large", "detail",
	"gallery", "model", "packshot", "thumbnail", "swatch",
}

var excludedImageKeywords = []string{
	"logo", "icon", "badge", "banner", "advertisement", "sprite", "button",
	"arrow", "star", "rating", "social", "payment", "footer", "noimage",
	"placeholder", "empty", "stylitics",
}

// ExtractImages harvests image candidates from the live page and ranks them.
// If the in-page evaluation fails the page HTML is parsed instead.
func ExtractImages(page browser.Page) (models.ImageSet, error) {
	raw, err := page.Evaluate(ImagesScript, nil)
	if err != nil {
		html, cerr := page.Content()
		if cerr != nil {
			return models.ImageSet{}, fmt.Errorf("failed to extract images: %w", err)
		}
		return RankImages(ImagesFromHTML(html, page.URL())), nil
	}

	var candidates []models.ImageCandidate
	if err := decode(raw, &candidates); err != nil {
		return models.ImageSet{}, fmt.Errorf("failed to decode images: %w", err)
	}
	return RankImages(candidates), nil
}

// RankImages filters candidates by keyword and orders the survivors by
// pixel area, largest first.
func RankImages(candidates []models.ImageCandidate) models.ImageSet {
	filtered := make([]models.ImageCandidate, 0, len(candidates))
	for _, c := range candidates {
		if isProductImage(c) {
			filtered = append(filtered, c)
		}
	}

	sorted := append([]models.ImageCandidate(nil), filtered...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Area() > sorted[j].Area()
	})

	set := models.ImageSet{
		TotalCount:  len(filtered),
		Grouped:     map[string][]string{"product": urls(filtered)},
		HighResTop3: urls(sorted[:min(3, len(sorted))]),
		AllImages:   urls(candidates),
	}

	switch {
	case len(sorted) > 0:
		set.MainImage = sorted[0].URL
	case len(filtered) > 0:
		set.MainImage = filtered[0].URL
	case len(candidates) > 0:
		set.MainImage = candidates[0].URL
	}

	return set
}

func isProductImage(c models.ImageCandidate) bool {
	u := strings.ToLower(c.URL)
	a := strings.ToLower(c.Alt)
	for _, k := range excludedImageKeywords {
		if strings.Contains(u, k) || strings.Contains(a, k) {
			return false
		}
	}
	for _, k := range productImageKeywords {
		if strings.Contains(u, k) || strings.Contains(a, k) {
			return true
		}
	}
	return false
}

func urls(cs []models.ImageCandidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.URL)
	}
	return out
}
