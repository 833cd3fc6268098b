package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maltedev/product-info-extractor/internal/browser"
	"github.com/maltedev/product-info-extractor/internal/dom"
	"github.com/maltedev/product-info-extractor/internal/models"
	"github.com/maltedev/product-info-extractor/internal/profile"
	"github.com/maltedev/product-info-extractor/internal/ratelimit"
)

// Titles containing any of these are challenge or denial pages.
var blockedTitlePhrases = []string{"just a moment", "cloudflare", "access denied"}

const antiBotCookie = "datadome"

// Sessions is the part of the browser session the extractor drives.
type Sessions interface {
	Init() error
	NewIsolatedContext(o browser.ContextOverrides) (browser.Context, error)
}

// Resolver maps a URL to its site profile.
type Resolver interface {
	Resolve(rawURL string) *profile.Profile
}

type Settings struct {
	MaxAttempts   int
	BackoffStep   time.Duration
	PreNavMin     time.Duration
	PreNavMax     time.Duration
	Settle        time.Duration
	AfterScroll   time.Duration
	SnippetLength int
	Humanize      browser.HumanizeOptions
}

func DefaultSettings() Settings {
	return Settings{
		MaxAttempts:   3,
		BackoffStep:   5 * time.Second,
		PreNavMin:     2 * time.Second,
		PreNavMax:     5 * time.Second,
		Settle:        5 * time.Second,
		AfterScroll:   1500 * time.Millisecond,
		SnippetLength: 1000,
		Humanize:      browser.DefaultHumanizeOptions(),
	}
}

// Extractor runs the bounded attempt loop for one URL at a time. It is safe
// for concurrent use; concurrent calls share the browser but not contexts.
type Extractor struct {
	sessions Sessions
	profiles Resolver
	pacer    *ratelimit.Pacer
	settings Settings
	logger   *slog.Logger
	now      func() time.Time
}

func New(sessions Sessions, profiles Resolver, pacer *ratelimit.Pacer, settings Settings, logger *slog.Logger) *Extractor {
	if pacer == nil {
		pacer = ratelimit.NewPacer()
	}
	if settings.MaxAttempts < 1 {
		settings.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		sessions: sessions,
		profiles: profiles,
		pacer:    pacer,
		settings: settings,
		logger:   logger.With("component", "extractor"),
		now:      time.Now,
	}
}

// Extract returns the raw record for rawURL. A record with an empty name is
// only returned once every attempt has been used.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (*models.RawProductRecord, error) {
	if err := e.sessions.Init(); err != nil {
		if !errors.Is(err, browser.ErrLaunch) {
			err = fmt.Errorf("%w: %v", browser.ErrLaunch, err)
		}
		return nil, err
	}

	p := e.profiles.Resolve(rawURL)
	log := e.logger.With("url", rawURL, "profile", p.Name)

	var lastErr error
	for attempt := 1; attempt <= e.settings.MaxAttempts; attempt++ {
		final := attempt == e.settings.MaxAttempts

		rec, err := e.attempt(ctx, log.With("attempt", attempt), rawURL, p, final)
		if err == nil {
			if rec.Product.Name == "" {
				log.Warn("final extraction empty")
			}
			return rec, nil
		}

		attemptErr := &AttemptError{Attempt: attempt, Err: err}
		lastErr = attemptErr
		log.Warn("attempt failed", "attempt", attempt, "error", err)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("extraction cancelled: %w", ctxErr)
		}
		if !attemptErr.Retryable() {
			return nil, fmt.Errorf("extraction failed: %w", attemptErr)
		}
		if !final {
			backoff := time.Duration(attempt) * e.settings.BackoffStep
			log.Info("retrying with fresh context", "wait", backoff)
			if err := e.pacer.Wait(ctx, backoff); err != nil {
				return nil, fmt.Errorf("extraction cancelled: %w", err)
			}
		}
	}

	return nil, fmt.Errorf("extraction failed after %d attempts: %w", e.settings.MaxAttempts, lastErr)
}

// attempt runs one isolated navigation and extraction. The page and context
// are closed on every return path.
func (e *Extractor) attempt(ctx context.Context, log *slog.Logger, rawURL string, p *profile.Profile, final bool) (*models.RawProductRecord, error) {
	bctx, err := e.sessions.NewIsolatedContext(p.Overrides())
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := bctx.Close(); err != nil {
			log.Debug("failed to close context", "error", err)
		}
	}()

	page, err := bctx.NewPage()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Debug("failed to close page", "error", err)
		}
	}()

	if err := e.pacer.Jitter(ctx, e.settings.PreNavMin, e.settings.PreNavMax); err != nil {
		return nil, err
	}

	log.Info("navigating", "wait_until", p.Load.WaitUntil)
	status, err := page.Goto(rawURL, browser.GotoOptions{WaitUntil: p.Load.WaitUntil, Timeout: p.Load.Timeout})
	if err != nil {
		if !errors.Is(err, browser.ErrNavigationTimeout) {
			return nil, err
		}
		log.Warn("navigation timed out, continuing with partial page", "timeout", p.Load.Timeout)
	}

	if err := e.pacer.Wait(ctx, e.settings.Settle); err != nil {
		return nil, err
	}
	if err := browser.HumanizeInteraction(ctx, page, e.pacer, e.settings.Humanize); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("human interaction simulation failed", "error", err)
	}
	e.logAntiBotCookies(log, bctx)

	if blocked := e.classify(page, status); blocked != nil {
		log.Warn("access blocked", "status", blocked.Status, "title", blocked.Title, "snippet", blocked.Snippet)
		return nil, blocked
	}

	if err := e.pacer.Wait(ctx, e.settings.AfterScroll); err != nil {
		return nil, err
	}
	if p.Load.ReadySelector != "" {
		if err := page.WaitForSelector(p.Load.ReadySelector, p.Load.ReadyTimeout); err != nil {
			log.Warn("ready selector not found", "selector", p.Load.ReadySelector, "error", err)
		}
	}

	var (
		images models.ImageSet
		info   dom.ProductInfo
		enrich profile.Enrichment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		images, err = dom.ExtractImages(page)
		return err
	})
	g.Go(func() error {
		var err error
		info, err = dom.ExtractProductInfo(page, p.Selectors)
		return err
	})
	g.Go(func() error {
		en, err := runEnricher(gctx, p.VariantHook(), page)
		if err != nil {
			log.Warn("variant hook failed", "error", err)
			return nil
		}
		enrich = en
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if info.Name == "" && !final {
		return nil, ErrEmptyExtraction
	}

	rec := e.assemble(rawURL, p, images, info, enrich)

	if post := p.PostHook(); post != nil {
		out, err := runPostProcessor(ctx, post, page, rec.Clone())
		switch {
		case err != nil:
			log.Warn("post-extraction hook failed", "error", err)
		case out != nil:
			rec = out
		}
	}

	log.Info("extraction succeeded", "name", rec.Product.Name, "in_stock", rec.Product.InStock,
		"images", rec.Images.TotalCount, "variants", len(rec.Product.Variants))
	return rec, nil
}

func (e *Extractor) classify(page browser.Page, status int) *BlockedError {
	var html string
	title, err := page.Title()
	if err != nil {
		html, _ = page.Content()
		title = dom.PageTitle(html)
	}

	if !isBlocked(status, title) {
		return nil
	}

	if html == "" {
		html, _ = page.Content()
	}
	return &BlockedError{Status: status, Title: title, Snippet: truncate(html, e.settings.SnippetLength)}
}

func isBlocked(status int, title string) bool {
	if status == 403 {
		return true
	}
	lower := strings.ToLower(title)
	for _, phrase := range blockedTitlePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func (e *Extractor) logAntiBotCookies(log *slog.Logger, bctx browser.Context) {
	cookies, err := bctx.Cookies()
	if err != nil {
		log.Debug("failed to read cookies", "error", err)
		return
	}
	for _, c := range cookies {
		if strings.Contains(strings.ToLower(c.Name), antiBotCookie) {
			log.Info("anti-bot cookie present", "cookie", c.Name, "domain", c.Domain)
			return
		}
	}
}

func (e *Extractor) assemble(rawURL string, p *profile.Profile, images models.ImageSet, info dom.ProductInfo, enrich profile.Enrichment) *models.RawProductRecord {
	if images.MainImage == "" && info.MainImage != "" {
		images.MainImage = info.MainImage
	}

	variants := enrich.Variants
	if variants == nil {
		variants = []models.Variant{}
	}
	sizes := enrich.Sizes
	if sizes == nil {
		sizes = []models.Size{}
	}

	return &models.RawProductRecord{
		URL:       rawURL,
		Timestamp: e.now().UTC(),
		Site:      p.Name,
		Product: models.Product{
			Name:         info.Name,
			Price:        info.Price,
			StockText:    info.StockText,
			InStock:      info.InStock,
			Description:  info.Description,
			Dimensions:   info.Dimensions,
			MainImage:    info.MainImage,
			Variants:     variants,
			Sizes:        sizes,
			CurrentColor: enrich.CurrentColor,
			Extra:        enrich.Extra,
		},
		Images: images,
	}
}

func runEnricher(ctx context.Context, hook profile.VariantEnricher, page browser.Page) (en profile.Enrichment, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrHook, r)
		}
	}()
	en, err = hook.Enrich(ctx, page)
	if err != nil {
		return profile.Enrichment{}, fmt.Errorf("%w: %v", ErrHook, err)
	}
	return en, nil
}

func runPostProcessor(ctx context.Context, hook profile.PostProcessor, page browser.Page, rec *models.RawProductRecord) (out *models.RawProductRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: panic: %v", ErrHook, r)
		}
	}()
	out, err = hook.PostProcess(ctx, page, rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHook, err)
	}
	return out, nil
}

// truncate keeps the first n characters of s.
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
