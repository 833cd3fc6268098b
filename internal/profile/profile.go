package profile

import (
	"context"
	"strings"
	"time"

	"github.com/maltedev/product-info-extractor/internal/browser"
	"github.com/maltedev/product-info-extractor/internal/models"
)

// Logical fields read by the product info primitive.
const (
	FieldName        = "name"
	FieldPrice       = "price"
	FieldStock       = "stock_text"
	FieldDescription = "description"
	FieldDimensions  = "dimensions"
	FieldMainImage   = "main_image"
)

// BaseName is the generic profile used when no domain matches.
const BaseName = "base"

const (
	defaultWaitUntil = browser.WaitNetworkIdle
	defaultTimeout   = 30 * time.Second
	defaultReadyWait = 10 * time.Second
)

// LoadPolicy describes how a page of this site is navigated.
type LoadPolicy struct {
	WaitUntil     string        `yaml:"wait_until"`
	Timeout       time.Duration `yaml:"timeout"`
	ReadySelector string        `yaml:"ready_selector"`
	ReadyTimeout  time.Duration `yaml:"ready_timeout"`
}

// Profile is the per-domain extraction configuration. Profiles are shared
// between concurrent extractions and must not be mutated after registration.
type Profile struct {
	Name       string
	Domains    []string
	Load       LoadPolicy
	Selectors  map[string][]string
	Locale     string
	TimezoneID string

	Enricher      VariantEnricher
	PostProcessor PostProcessor
}

// Enrichment is what a VariantEnricher contributes to the record.
type Enrichment struct {
	Variants     []models.Variant
	Sizes        []models.Size
	CurrentColor string
	Extra        map[string]any
}

// VariantEnricher runs concurrently with the DOM primitives against the
// same page.
type VariantEnricher interface {
	Enrich(ctx context.Context, page browser.Page) (Enrichment, error)
}

// PostProcessor runs after the record is assembled and returns the record
// to use instead. It receives a copy and may modify it freely.
type PostProcessor interface {
	PostProcess(ctx context.Context, page browser.Page, rec *models.RawProductRecord) (*models.RawProductRecord, error)
}

// Noop implements both hooks without touching anything.
type Noop struct{}

func (Noop) Enrich(context.Context, browser.Page) (Enrichment, error) {
	return Enrichment{}, nil
}

func (Noop) PostProcess(_ context.Context, _ browser.Page, rec *models.RawProductRecord) (*models.RawProductRecord, error) {
	return rec, nil
}

// Matches reports whether host contains one of the profile's domains.
func (p *Profile) Matches(host string) bool {
	if host == "" {
		return false
	}
	host = strings.ToLower(host)
	for _, d := range p.Domains {
		if d != "" && strings.Contains(host, strings.ToLower(d)) {
			return true
		}
	}
	return false
}

// SelectorsFor returns the ordered selectors for a field.
func (p *Profile) SelectorsFor(field string) []string {
	return p.Selectors[field]
}

// VariantHook returns the profile's enricher or a no-op.
func (p *Profile) VariantHook() VariantEnricher {
	if p.Enricher == nil {
		return Noop{}
	}
	return p.Enricher
}

// PostHook returns the profile's post processor or nil.
func (p *Profile) PostHook() PostProcessor {
	return p.PostProcessor
}

// Overrides is the fingerprint adjustment requested by the profile.
func (p *Profile) Overrides() browser.ContextOverrides {
	return browser.ContextOverrides{Locale: p.Locale, TimezoneID: p.TimezoneID}
}

// normalized fills in load policy defaults on a copy.
func (p *Profile) normalized() *Profile {
	cp := *p
	if cp.Load.WaitUntil == "" {
		cp.Load.WaitUntil = defaultWaitUntil
	}
	if cp.Load.Timeout <= 0 {
		cp.Load.Timeout = defaultTimeout
	}
	if cp.Load.ReadySelector != "" && cp.Load.ReadyTimeout <= 0 {
		cp.Load.ReadyTimeout = defaultReadyWait
	}
	if cp.Selectors == nil {
		cp.Selectors = map[string][]string{}
	}
	return &cp
}

// Default is the in-memory profile used when not even the base profile is
// available.
func Default() *Profile {
	return &Profile{
		Name: "default",
		Load: LoadPolicy{WaitUntil: defaultWaitUntil, Timeout: defaultTimeout},
		Selectors: map[string][]string{
			FieldName:  {"h1"},
			FieldPrice: {".price"},
			FieldStock: {".stock"},
		},
	}
}
