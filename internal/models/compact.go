package models

import (
	"regexp"
	"strings"
)

const inStockMarker = "In Stock"

var numericSize = regexp.MustCompile(`^\d+(\.\d+)?$`)

// CompactResult is the minimal projection of a RawProductRecord.
type CompactResult struct {
	Product  CompactProduct `json:"product"`
	ImageURL string         `json:"image_url"`
}

type CompactProduct struct {
	Name     string           `json:"name"`
	Price    string           `json:"price,omitempty"`
	InStock  bool             `json:"in_stock"`
	Variants []CompactVariant `json:"variants,omitempty"`
	Sizes    []CompactSize    `json:"sizes,omitempty"`
}

type CompactVariant struct {
	Color     string        `json:"color"`
	ColorCode string        `json:"color_code,omitempty"`
	ImageURL  string        `json:"image_url,omitempty"`
	Sizes     []CompactSize `json:"sizes"`
}

type CompactSize struct {
	Size    string `json:"size"`
	InStock bool   `json:"in_stock"`
}

// Compact keeps name, price, availability and the main image. Variants are
// projected when present, otherwise the flat size list is. When no sizes
// exist at all, a dimensions text mentioning "In Stock" is parsed as a last
// resort.
func Compact(full *RawProductRecord) CompactResult {
	out := CompactResult{
		Product: CompactProduct{
			Name:    full.Product.Name,
			Price:   full.Product.Price,
			InStock: full.Product.InStock,
		},
		ImageURL: full.Images.MainImage,
	}

	sizes := full.Product.Sizes
	if len(sizes) == 0 && strings.Contains(full.Product.Dimensions, inStockMarker) {
		sizes = ParseDimensionsStock(full.Product.Dimensions)
	}

	if len(full.Product.Variants) > 0 {
		out.Product.Variants = make([]CompactVariant, 0, len(full.Product.Variants))
		for _, v := range full.Product.Variants {
			vs := v.Sizes
			if vs == nil {
				vs = sizes
			}
			out.Product.Variants = append(out.Product.Variants, CompactVariant{
				Color:     v.Color,
				ColorCode: v.ColorCode,
				ImageURL:  v.ImageURL,
				Sizes:     compactSizes(vs),
			})
		}
	} else if len(sizes) > 0 {
		out.Product.Sizes = compactSizes(sizes)
	}

	return out
}

func compactSizes(sizes []Size) []CompactSize {
	out := make([]CompactSize, 0, len(sizes))
	for _, s := range sizes {
		out = append(out, CompactSize{Size: s.Size, InStock: s.IsInStock()})
	}
	return out
}

// ParseDimensionsStock reads alternating lines of a numeric size optionally
// followed by an "In Stock" line.
func ParseDimensionsStock(text string) []Size {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}

	sizes := []Size{}
	for i := 0; i < len(lines); i++ {
		if !numericSize.MatchString(lines[i]) {
			continue
		}
		inStock := i+1 < len(lines) && lines[i+1] == inStockMarker
		s := Size{Size: lines[i], Available: inStock}
		if inStock {
			s.StockText = inStockMarker
			i++
		}
		sizes = append(sizes, s)
	}
	return sizes
}
