package browser

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

var (
	// ErrLaunch is returned when the browser process cannot be started.
	ErrLaunch = errors.New("browser launch failed")
	// ErrNavigationTimeout is returned by Page.Goto when the wait strategy
	// did not complete in time. The page may still hold a partial DOM.
	ErrNavigationTimeout = errors.New("navigation timeout")
	// ErrNotInitialized is returned when a context is requested before Init.
	ErrNotInitialized = errors.New("browser session not initialized")
)

// Wait strategies understood by Page.Goto.
const (
	WaitLoad             = "load"
	WaitDOMContentLoaded = "domcontentloaded"
	WaitNetworkIdle      = "networkidle"
	WaitCommit           = "commit"
)

// GotoOptions controls a single navigation.
type GotoOptions struct {
	WaitUntil string
	Timeout   time.Duration
}

// Cookie is the subset of a browser cookie the extractor inspects.
type Cookie struct {
	Name   string
	Value  string
	Domain string
}

// Page is the capability surface the extractor needs from a browser tab.
// Evaluate takes a serializable function source plus one serializable
// argument and returns a serializable value.
type Page interface {
	Goto(url string, opts GotoOptions) (status int, err error)
	URL() string
	Title() (string, error)
	Content() (string, error)
	Evaluate(script string, arg any) (any, error)
	MouseMove(x, y float64, steps int) error
	WaitForSelector(selector string, timeout time.Duration) error
	Close() error
}

// Context is an isolated browsing context with its own cookie jar and cache.
type Context interface {
	NewPage() (Page, error)
	Cookies() ([]Cookie, error)
	Close() error
}

// ContextOverrides lets a site profile adjust the fingerprint of one context.
type ContextOverrides struct {
	Locale     string
	TimezoneID string
}

type Proxy struct {
	Server   string
	Username string
	Password string
}

type Options struct {
	Headless          bool
	Timeout           time.Duration
	ViewportWidth     int
	ViewportHeight    int
	DeviceScaleFactor float64
	AcceptLanguage    string
	TimezoneID        string
	Locale            string
	Proxy             Proxy
	ExtraArgs         []string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:          true,
		Timeout:           30 * time.Second,
		ViewportWidth:     1440,
		ViewportHeight:    900,
		DeviceScaleFactor: 2,
		AcceptLanguage:    "en-US,en;q=0.9",
		TimezoneID:        "America/New_York",
		Locale:            "en-US",
	}
}

// Session owns one browser process and its baseline context. Isolated
// contexts are handed out per extraction attempt.
type Session struct {
	opts   *Options
	logger *slog.Logger

	mu       sync.Mutex
	pw       *playwright.Playwright
	browser  playwright.Browser
	baseline playwright.BrowserContext
	version  string
}

func NewSession(opts *Options, logger *slog.Logger) *Session {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		opts:   opts,
		logger: logger.With("component", "browser"),
	}
}

// Init launches the browser. Calls after the first successful one are no-ops.
func (s *Session) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser != nil {
		return nil
	}

	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("%w: failed to start playwright: %v", ErrLaunch, err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(s.opts.Headless),
		Args: append([]string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			fmt.Sprintf("--window-size=%d,%d", s.opts.ViewportWidth, s.opts.ViewportHeight),
		}, s.opts.ExtraArgs...),
	}

	if s.opts.Proxy.Server != "" {
		proxy := &playwright.Proxy{Server: s.opts.Proxy.Server}
		if s.opts.Proxy.Username != "" {
			proxy.Username = playwright.String(s.opts.Proxy.Username)
			proxy.Password = playwright.String(s.opts.Proxy.Password)
		}
		launchOpts.Proxy = proxy
		s.logger.Info("using outbound proxy", "server", s.opts.Proxy.Server)
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return fmt.Errorf("%w: failed to launch chromium: %v", ErrLaunch, err)
	}

	version := browser.Version()
	baseline, err := browser.NewContext(s.contextOptions(version, ContextOverrides{}))
	if err != nil {
		browser.Close()
		pw.Stop()
		return fmt.Errorf("%w: failed to create baseline context: %v", ErrLaunch, err)
	}

	s.pw = pw
	s.browser = browser
	s.baseline = baseline
	s.version = version

	s.logger.Info("browser launched", "version", version, "headless", s.opts.Headless)
	return nil
}

// Initialized reports whether Init has completed and Close has not run since.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.browser != nil
}

// Version is the launched browser's version, empty before Init.
func (s *Session) Version() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// NewIsolatedContext creates a fresh context that shares nothing with
// earlier attempts.
func (s *Session) NewIsolatedContext(o ContextOverrides) (Context, error) {
	s.mu.Lock()
	browser, version := s.browser, s.version
	s.mu.Unlock()

	if browser == nil {
		return nil, ErrNotInitialized
	}

	bctx, err := browser.NewContext(s.contextOptions(version, o))
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(stealthScript)}); err != nil {
		s.logger.Warn("failed to add init script", "error", err)
	}

	return &pwContext{ctx: bctx, timeout: s.opts.Timeout}, nil
}

func (s *Session) contextOptions(version string, o ContextOverrides) playwright.BrowserNewContextOptions {
	locale := s.opts.Locale
	if o.Locale != "" {
		locale = o.Locale
	}
	tz := s.opts.TimezoneID
	if o.TimezoneID != "" {
		tz = o.TimezoneID
	}

	return playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(true),
		Viewport: &playwright.Size{
			Width:  s.opts.ViewportWidth,
			Height: s.opts.ViewportHeight,
		},
		DeviceScaleFactor: playwright.Float(s.opts.DeviceScaleFactor),
		Locale:            playwright.String(locale),
		TimezoneId:        playwright.String(tz),
		ColorScheme:       playwright.ColorSchemeLight,
		UserAgent:         playwright.String(UserAgent(version)),
		ExtraHttpHeaders:  FingerprintHeaders(version, s.opts.AcceptLanguage),
	}
}

// Close tears the browser down. A later Init starts a new process.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error

	if s.baseline != nil {
		if err := s.baseline.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	s.pw, s.browser, s.baseline, s.version = nil, nil, nil, ""

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %w", errors.Join(errs...))
	}

	s.logger.Info("browser closed")
	return nil
}
