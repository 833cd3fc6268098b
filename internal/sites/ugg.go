package sites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/maltedev/product-info-extractor/internal/browser"
	"github.com/maltedev/product-info-extractor/internal/models"
	"github.com/maltedev/product-info-extractor/internal/profile"
	"github.com/maltedev/product-info-extractor/internal/ratelimit"
)

const (
	uggVariantBatch    = 3
	uggBatchPause      = 100 * time.Millisecond
	uggFetchRetries    = 1
	uggVariationPath   = "/Product-Variation"
	uggSliderPath      = "/Component-GetSliderImages"
	uggIncludeImages   = "&includeImages=true"
	uggReadySelector   = "h1, .product-detail"
	uggReadySelectorTO = 10 * time.Second
)

var (
	uggCDNs          = []string{"dms.deckers.com", "deckers.coremedia.cloud"}
	uggImageExcluded = []string{"stylitics", "noimagelarge"}

	uggPrice       = regexp.MustCompile(`\$\d+(\.\d+)?`)
	uggFirstImage  = regexp.MustCompile(`_1\.(png|jpg|webp)`)
	uggSecondImage = regexp.MustCompile(`_2\.(png|jpg|webp)`)
	uggNumbered    = regexp.MustCompile(`_\d+\.(png|jpg|webp)`)
)

var errVariantPayload = errors.New("variant payload is not JSON")

// UGG loads on "load" because the site never goes network-idle, then
// reconciles per-colour stock through the storefront's variation endpoint.
func UGG(pacer *ratelimit.Pacer, logger *slog.Logger) *profile.Profile {
	hooks := newUGGHooks(pacer, logger)
	return &profile.Profile{
		Name:    "ugg",
		Domains: []string{"ugg.com"},
		Load: profile.LoadPolicy{
			WaitUntil:     browser.WaitLoad,
			Timeout:       navigationTimeout,
			ReadySelector: uggReadySelector,
			ReadyTimeout:  uggReadySelectorTO,
		},
		Selectors: map[string][]string{
			profile.FieldName:        {"h1"},
			profile.FieldPrice:       {".product-detail .price", ".product-primary-attributes .price"},
			profile.FieldDescription: {".product-description", "#collapsible-details-1"},
			profile.FieldMainImage:   {".product-detail .primary-image", ".product-primary-attributes img"},
			profile.FieldStock:       {".add-to-cart", ".btn-primary"},
		},
		Enricher:      hooks,
		PostProcessor: hooks,
	}
}

type uggHooks struct {
	pacer  *ratelimit.Pacer
	logger *slog.Logger
}

func newUGGHooks(pacer *ratelimit.Pacer, logger *slog.Logger) *uggHooks {
	if pacer == nil {
		pacer = ratelimit.NewPacer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &uggHooks{pacer: pacer, logger: logger.With("component", "ugg")}
}

// Enrich reads the selected colour and the main product's size buttons.
func (h *uggHooks) Enrich(_ context.Context, page browser.Page) (profile.Enrichment, error) {
	raw, err := page.Evaluate(uggSelectionScript, nil)
	if err != nil {
		return profile.Enrichment{}, fmt.Errorf("failed to read selection: %w", err)
	}
	doc, err := evalJSON(raw)
	if err != nil {
		return profile.Enrichment{}, err
	}

	var sizes []models.Size
	doc.Get("sizes").ForEach(func(_, v gjson.Result) bool {
		sizes = append(sizes, models.Size{
			Size:      v.Get("size").String(),
			Available: v.Get("available").Bool(),
		})
		return true
	})

	return profile.Enrichment{
		CurrentColor: doc.Get("current_color").String(),
		Sizes:        sizes,
	}, nil
}

// PostProcess cleans the price, picks the CDN hero image and replaces the
// variants with per-colour data from the variation endpoint.
func (h *uggHooks) PostProcess(ctx context.Context, page browser.Page, rec *models.RawProductRecord) (*models.RawProductRecord, error) {
	rec.Product.Price = cleanPrice(rec.Product.Price)

	if best := bestCDNImage(rec.Images.AllImages); best != "" {
		rec.Images.MainImage = best
	}

	variants, err := h.reconcileVariants(ctx, page)
	if err != nil {
		h.logger.Warn("site-specific variant extraction failed", "error", err)
		return rec, nil
	}
	if variants != nil {
		rec.Product.Variants = variants
	}
	return rec, nil
}

type swatch struct {
	Title string
	URL   string
}

// reconcileVariants returns nil when the page shows no swatches.
func (h *uggHooks) reconcileVariants(ctx context.Context, page browser.Page) ([]models.Variant, error) {
	rawContainer, err := page.Evaluate(uggContainerScript, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to locate swatch container: %w", err)
	}
	container, _ := rawContainer.(string)
	if container == "" {
		container = ".product-detail"
	}

	rawSwatches, err := page.Evaluate(uggSwatchScript, container)
	if err != nil {
		return nil, fmt.Errorf("failed to list swatches: %w", err)
	}
	swatches, err := parseSwatches(rawSwatches)
	if err != nil {
		return nil, err
	}
	if len(swatches) == 0 {
		return nil, nil
	}

	h.logger.Debug("reconciling variants", "container", container, "swatches", len(swatches))

	results := make([]*models.Variant, len(swatches))
	for start := 0; start < len(swatches); start += uggVariantBatch {
		end := min(start+uggVariantBatch, len(swatches))

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				results[i] = h.fetchVariant(ctx, page, swatches[i])
				return nil
			})
		}
		_ = g.Wait()

		if end < len(swatches) {
			if err := h.pacer.Wait(ctx, uggBatchPause); err != nil {
				return nil, err
			}
		}
	}

	variants := make([]models.Variant, 0, len(results))
	for _, v := range results {
		if v != nil {
			variants = append(variants, *v)
		}
	}
	return variants, nil
}

// fetchVariant returns nil when the swatch cannot be resolved after the
// retry or its payload carries no variation attributes.
func (h *uggHooks) fetchVariant(ctx context.Context, page browser.Page, s swatch) *models.Variant {
	variationURL, imagesURL, err := variantURLs(page.URL(), s.URL)
	if err != nil {
		h.logger.Debug("skipping swatch", "color", s.Title, "error", err)
		return nil
	}

	var lastErr error
	for try := 0; try <= uggFetchRetries; try++ {
		if ctx.Err() != nil {
			return nil
		}
		variation, images, err := fetchPair(page, variationURL, imagesURL)
		if err != nil {
			lastErr = err
			continue
		}
		v, ok := parseVariant(s.Title, variation, images)
		if !ok {
			return nil
		}
		return &v
	}

	h.logger.Debug("variant fetch failed", "color", s.Title, "url", variationURL, "error", lastErr)
	return nil
}

func fetchPair(page browser.Page, variationURL, imagesURL string) (string, string, error) {
	raw, err := page.Evaluate(uggFetchPairScript, map[string]any{
		"variation": variationURL,
		"images":    imagesURL,
	})
	if err != nil {
		return "", "", err
	}
	doc, err := evalJSON(raw)
	if err != nil {
		return "", "", err
	}
	variation := doc.Get("variation").String()
	images := doc.Get("images").String()
	if !gjson.Valid(variation) || !gjson.Valid(images) {
		return "", "", errVariantPayload
	}
	return variation, images, nil
}

// variantURLs resolves a swatch URL against the page and derives the
// slider-image endpoint from it.
func variantURLs(pageURL, swatchURL string) (string, string, error) {
	ref, err := url.Parse(swatchURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid swatch url: %w", err)
	}
	if base, err := url.Parse(pageURL); err == nil && base.Host != "" {
		ref = base.ResolveReference(ref)
	}
	if !ref.IsAbs() {
		return "", "", fmt.Errorf("swatch url %q is not absolute", swatchURL)
	}

	variation := ref.String()
	images := strings.Replace(variation, uggVariationPath, uggSliderPath, 1) + uggIncludeImages
	return variation, images, nil
}

// parseVariant decodes the variation and slider-image payloads. ok is false
// when the variation payload has no variation attributes.
func parseVariant(color, variation, images string) (models.Variant, bool) {
	product := gjson.Get(variation, "product")
	attrs := product.Get("variationAttributes")
	if !attrs.Exists() {
		return models.Variant{}, false
	}

	sizes := []models.Size{}
	if attr, ok := sizeAttribute(attrs); ok {
		attr.Get("values").ForEach(func(_, v gjson.Result) bool {
			size := v.Get("displayValue").String()
			if size == "" {
				size = v.Get("id").String()
			}
			sizes = append(sizes, models.Size{Size: size, Available: sizeAvailable(v)})
			return true
		})
	}

	v := models.Variant{
		Color:    color,
		ImageURL: sliderImage(gjson.Get(images, "images")),
		Price:    product.Get("price.sales.formatted").String(),
		Sizes:    sizes,
	}
	if avail := product.Get("available"); avail.Exists() {
		b := avail.Bool()
		v.InStock = &b
	}
	return v, true
}

func sizeAttribute(attrs gjson.Result) (gjson.Result, bool) {
	var found gjson.Result
	attrs.ForEach(func(_, a gjson.Result) bool {
		id := a.Get("id").String()
		if id == "" {
			id = a.Get("attributeId").String()
		}
		if id == "size" || id == "Size" || strings.Contains(strings.ToLower(a.Get("displayName").String()), "size") {
			found = a
			return false
		}
		return true
	})
	return found, found.Exists()
}

// sizeAvailable accepts the shapes the storefront uses: a boolean or string
// selectable flag, or an availability object.
func sizeAvailable(v gjson.Result) bool {
	sel := v.Get("selectable")
	if sel.Type == gjson.True || (sel.Type == gjson.String && sel.Str == "true") {
		return true
	}
	avail := v.Get("availability")
	if !avail.IsObject() {
		return false
	}
	return avail.Get("type").String() == "instock" || strings.Contains(avail.Get("status").String(), "IN")
}

func sliderImage(images gjson.Result) string {
	if large := images.Get("pdpSliderLarge"); large.Exists() {
		return large.Get("0.url").String()
	}
	if images.IsArray() {
		return images.Get("0.url").String()
	}
	return ""
}

func parseSwatches(raw any) ([]swatch, error) {
	doc, err := evalJSON(raw)
	if err != nil {
		return nil, err
	}
	var out []swatch
	doc.ForEach(func(_, s gjson.Result) bool {
		if u := s.Get("url").String(); u != "" {
			out = append(out, swatch{Title: s.Get("title").String(), URL: u})
		}
		return true
	})
	return out, nil
}

func cleanPrice(price string) string {
	if m := uggPrice.FindString(price); m != "" {
		return m
	}
	return price
}

// bestCDNImage picks the highest scoring image served from the brand CDN.
// Ties keep page order.
func bestCDNImage(all []string) string {
	var candidates []string
	for _, img := range all {
		if isCDNImage(img) {
			candidates = append(candidates, img)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return imageScore(candidates[i]) > imageScore(candidates[j])
	})
	return candidates[0]
}

func isCDNImage(img string) bool {
	for _, x := range uggImageExcluded {
		if strings.Contains(img, x) {
			return false
		}
	}
	for _, cdn := range uggCDNs {
		if strings.Contains(img, cdn) {
			return true
		}
	}
	return false
}

func imageScore(img string) int {
	score := 0
	if uggFirstImage.MatchString(img) {
		score += 10
	}
	if uggSecondImage.MatchString(img) {
		score += 5
	}
	if uggNumbered.MatchString(img) {
		score += 2
	}
	if strings.Contains(img, "large") || strings.Contains(img, "hero") || strings.Contains(img, "primary") {
		score++
	}
	return score
}

// evalJSON re-encodes an evaluation result so it can be queried with gjson.
func evalJSON(raw any) (gjson.Result, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to encode evaluation result: %w", err)
	}
	return gjson.ParseBytes(data), nil
}
