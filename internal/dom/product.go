package dom

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/maltedev/product-info-extractor/internal/browser"
	"github.com/maltedev/product-info-extractor/internal/profile"
)

// Negative phrases are checked before positive ones.
var (
	outOfStockPhrases = []string{"unavailable", "sold out", "out of stock", "품절", "일시 품절"}
	inStockPhrases    = []string{"in stock", "available", "add to bag", "add to cart", "장바구니"}
)

// ProductInfo holds the textual fields of a product page.
type ProductInfo struct {
	Name        string
	Price       string
	StockText   string
	InStock     bool
	Description string
	Dimensions  string
	MainImage   string
}

// ExtractProductInfo reads each field with its ordered selectors. If the
// in-page evaluation fails the page HTML is parsed instead.
func ExtractProductInfo(page browser.Page, selectors map[string][]string) (ProductInfo, error) {
	raw, err := page.Evaluate(ProductInfoScript, selectors)
	if err != nil {
		html, cerr := page.Content()
		if cerr != nil {
			return ProductInfo{}, fmt.Errorf("failed to extract product info: %w", err)
		}
		fields, perr := ProductInfoFromHTML(html, selectors)
		if perr != nil {
			return ProductInfo{}, fmt.Errorf("failed to extract product info: %w", perr)
		}
		return NewProductInfo(fields), nil
	}

	fields := map[string]string{}
	if err := decode(raw, &fields); err != nil {
		return ProductInfo{}, fmt.Errorf("failed to decode product info: %w", err)
	}
	return NewProductInfo(fields), nil
}

// NewProductInfo builds ProductInfo from raw field texts, classifying the
// stock text and normalizing the price.
func NewProductInfo(fields map[string]string) ProductInfo {
	stock := fields[profile.FieldStock]
	return ProductInfo{
		Name:        fields[profile.FieldName],
		Price:       NormalizePrice(fields[profile.FieldPrice]),
		StockText:   stock,
		InStock:     ClassifyStock(stock),
		Description: fields[profile.FieldDescription],
		Dimensions:  fields[profile.FieldDimensions],
		MainImage:   fields[profile.FieldMainImage],
	}
}

// ClassifyStock reports availability from free text. Any negative phrase
// wins over any positive phrase, so a page reading both "Add to Cart" and
// "Out of Stock" is classified as unavailable.
func ClassifyStock(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range outOfStockPhrases {
		if strings.Contains(lower, k) {
			return false
		}
	}
	for _, k := range inStockPhrases {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// NormalizePrice collapses newlines and runs of whitespace.
func NormalizePrice(price string) string {
	return strings.Join(strings.Fields(price), " ")
}

// decode converts an evaluation result into out.
func decode(v any, out any) error {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
