package models

import (
	"encoding/json"
	"time"
)

// RawProductRecord is the full result of one successful extraction attempt.
type RawProductRecord struct {
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
	Site      string    `json:"site"`
	Product   Product   `json:"product"`
	Images    ImageSet  `json:"images"`
}

// Product holds the textual fields read from the page plus any hook enrichment.
// Extra carries hook-specific keys and is flattened into the product object
// when marshalled.
type Product struct {
	Name         string         `json:"name"`
	Price        string         `json:"price,omitempty"`
	StockText    string         `json:"stock_text"`
	InStock      bool           `json:"in_stock"`
	Description  string         `json:"description,omitempty"`
	Dimensions   string         `json:"dimensions,omitempty"`
	MainImage    string         `json:"main_image,omitempty"`
	Variants     []Variant      `json:"variants"`
	Sizes        []Size         `json:"sizes"`
	CurrentColor string         `json:"current_color,omitempty"`
	Extra        map[string]any `json:"-"`
}

type productAlias Product

// MarshalJSON merges Extra into the product object. Declared fields win on
// key collisions.
func (p Product) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(productAlias(p))
	if err != nil {
		return nil, err
	}
	if len(p.Extra) == 0 {
		return base, nil
	}

	merged := make(map[string]any, len(p.Extra)+10)
	for k, v := range p.Extra {
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// Variant is one purchasable colour with its own sizes, stock and imagery.
type Variant struct {
	Color     string `json:"color"`
	ColorCode string `json:"color_code,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	Price     string `json:"price,omitempty"`
	InStock   *bool  `json:"in_stock,omitempty"`
	Sizes     []Size `json:"sizes"`
}

// Size is a single size option. Sources report availability either as
// Available or as InStock.
type Size struct {
	Size      string `json:"size"`
	Available bool   `json:"available"`
	InStock   *bool  `json:"in_stock,omitempty"`
	StockText string `json:"stock_text,omitempty"`
}

// IsInStock reports whether either availability field is set.
func (s Size) IsInStock() bool {
	if s.Available {
		return true
	}
	return s.InStock != nil && *s.InStock
}

// ImageCandidate is one image harvested from the page.
type ImageCandidate struct {
	URL    string  `json:"url"`
	Alt    string  `json:"alt"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area is the pixel area used for ranking.
func (c ImageCandidate) Area() float64 {
	return c.Width * c.Height
}

// ImageSet is the ranked view over a page's images.
type ImageSet struct {
	MainImage   string              `json:"main_product_image"`
	TotalCount  int                 `json:"total_count"`
	Grouped     map[string][]string `json:"grouped"`
	HighResTop3 []string            `json:"high_resolution_recommended"`
	AllImages   []string            `json:"all_images"`
}

// ErrorPayload is the caller-visible failure object.
type ErrorPayload struct {
	Error     string    `json:"error"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
}

// Clone returns a deep copy so hooks can work on a record without
// mutating the one they were handed.
func (r *RawProductRecord) Clone() *RawProductRecord {
	if r == nil {
		return nil
	}
	out := *r

	out.Product.Variants = cloneVariants(r.Product.Variants)
	out.Product.Sizes = cloneSizes(r.Product.Sizes)
	if r.Product.Extra != nil {
		out.Product.Extra = make(map[string]any, len(r.Product.Extra))
		for k, v := range r.Product.Extra {
			out.Product.Extra[k] = v
		}
	}

	if r.Images.Grouped != nil {
		out.Images.Grouped = make(map[string][]string, len(r.Images.Grouped))
		for k, v := range r.Images.Grouped {
			out.Images.Grouped[k] = append([]string(nil), v...)
		}
	}
	out.Images.HighResTop3 = append([]string(nil), r.Images.HighResTop3...)
	out.Images.AllImages = append([]string(nil), r.Images.AllImages...)
	return &out
}

func cloneVariants(in []Variant) []Variant {
	if in == nil {
		return nil
	}
	out := make([]Variant, len(in))
	for i, v := range in {
		out[i] = v
		out[i].Sizes = cloneSizes(v.Sizes)
		if v.InStock != nil {
			b := *v.InStock
			out[i].InStock = &b
		}
	}
	return out
}

func cloneSizes(in []Size) []Size {
	if in == nil {
		return nil
	}
	out := make([]Size, len(in))
	copy(out, in)
	for i := range out {
		if in[i].InStock != nil {
			b := *in[i].InStock
			out[i].InStock = &b
		}
	}
	return out
}
