// Package sites holds the built-in site profiles.
package sites

import (
	"log/slog"
	"time"

	"github.com/maltedev/product-info-extractor/internal/browser"
	"github.com/maltedev/product-info-extractor/internal/profile"
	"github.com/maltedev/product-info-extractor/internal/ratelimit"
)

const navigationTimeout = 30 * time.Second

// Builtin returns the compiled-in profiles in resolution order. The base
// profile is last; the registry only falls back to it.
func Builtin(pacer *ratelimit.Pacer, logger *slog.Logger) []*profile.Profile {
	return []*profile.Profile{
		UGG(pacer, logger),
		Chanel(),
		Weverse(),
		Base(),
	}
}

// Register adds every built-in profile to reg.
func Register(reg *profile.Registry, pacer *ratelimit.Pacer, logger *slog.Logger) {
	for _, p := range Builtin(pacer, logger) {
		reg.Register(p)
	}
}

// Base is the generic profile for unknown domains.
func Base() *profile.Profile {
	return &profile.Profile{
		Name: profile.BaseName,
		Load: profile.LoadPolicy{WaitUntil: browser.WaitNetworkIdle, Timeout: navigationTimeout},
		Selectors: map[string][]string{
			profile.FieldName:  {"h1"},
			profile.FieldPrice: {".price", "[itemprop='price']"},
			profile.FieldStock: {".stock", ".availability"},
		},
	}
}

func Chanel() *profile.Profile {
	return &profile.Profile{
		Name:    "chanel",
		Domains: []string{"chanel.com"},
		Load:    profile.LoadPolicy{WaitUntil: browser.WaitNetworkIdle, Timeout: navigationTimeout},
		Selectors: map[string][]string{
			profile.FieldName:        {"h1", ".product-title"},
			profile.FieldPrice:       {".product-price", ".price"},
			profile.FieldDescription: {".product-description", ".product-details"},
			profile.FieldMainImage:   {".product-image img", "#main-image"},
			profile.FieldStock:       {".add-to-cart", ".availability"},
		},
	}
}

func Weverse() *profile.Profile {
	return &profile.Profile{
		Name:    "weverse",
		Domains: []string{"weverse.io", "shop.weverse.io"},
		Load:    profile.LoadPolicy{WaitUntil: browser.WaitNetworkIdle, Timeout: navigationTimeout},
		Selectors: map[string][]string{
			profile.FieldName:        {"h1", "[class*='ProductName']"},
			profile.FieldPrice:       {"[class*='Price']", ".price"},
			profile.FieldDescription: {"[class*='Description']", ".details"},
			profile.FieldMainImage:   {"[class*='MainImage'] img", ".product-main-image img"},
			profile.FieldStock:       {"[class*='BuyButton']", ".btn-buy"},
		},
	}
}
