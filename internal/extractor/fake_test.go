package extractor

import (
	"context"
	"sync"
	"time"

	"github.com/maltedev/product-info-extractor/internal/browser"
	"github.com/maltedev/product-info-extractor/internal/dom"
	"github.com/maltedev/product-info-extractor/internal/profile"
	"github.com/maltedev/product-info-extractor/internal/ratelimit"
)

// scenario scripts what one isolated context will see.
type scenario struct {
	status   int
	gotoErr  error
	title    string
	titleErr error
	html     string
	info     map[string]any
	images   []any
	evalErr  error
	cookies  []browser.Cookie
}

func productPage(name string) scenario {
	return scenario{
		status: 200,
		title:  name + " | Shop",
		info:   map[string]any{"name": name, "price": "$170", "stock_text": "Add to Bag"},
		images: []any{
			map[string]any{"url": "https://cdn.example.com/product-large.jpg", "alt": "", "width": 800.0, "height": 600.0},
			map[string]any{"url": "https://cdn.example.com/icon.png", "alt": "", "width": 50.0, "height": 50.0},
			map[string]any{"url": "https://cdn.example.com/hero-zoom.jpg", "alt": "", "width": 1200.0, "height": 900.0},
		},
	}
}

func emptyPage() scenario {
	return scenario{status: 200, title: "Shop", info: map[string]any{}, images: []any{}}
}

func blockedPage(status int, title string) scenario {
	return scenario{status: status, title: title, html: "<html><head><title>" + title + "</title></head><body>challenge</body></html>"}
}

type fakeEngine struct {
	mu        sync.Mutex
	initErr   error
	initCalls int
	scenarios []scenario
	contexts  []*fakeContext
	overrides []browser.ContextOverrides
}

func newFakeEngine(scenarios ...scenario) *fakeEngine {
	return &fakeEngine{scenarios: scenarios}
}

func (e *fakeEngine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initCalls++
	return e.initErr
}

func (e *fakeEngine) NewIsolatedContext(o browser.ContextOverrides) (browser.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := len(e.contexts)
	if idx >= len(e.scenarios) {
		idx = len(e.scenarios) - 1
	}
	c := &fakeContext{sc: e.scenarios[idx]}
	e.contexts = append(e.contexts, c)
	e.overrides = append(e.overrides, o)
	return c, nil
}

func (e *fakeEngine) navigations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.contexts {
		if c.page != nil && c.page.gotoURL != "" {
			n++
		}
	}
	return n
}

func (e *fakeEngine) allClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.contexts {
		if !c.closed || (c.page != nil && !c.page.closed) {
			return false
		}
	}
	return true
}

type fakeContext struct {
	sc     scenario
	page   *fakePage
	closed bool
}

func (c *fakeContext) NewPage() (browser.Page, error) {
	c.page = &fakePage{sc: c.sc}
	return c.page, nil
}

func (c *fakeContext) Cookies() ([]browser.Cookie, error) { return c.sc.cookies, nil }

func (c *fakeContext) Close() error {
	c.closed = true
	return nil
}

type fakePage struct {
	sc scenario

	mu        sync.Mutex
	gotoURL   string
	gotoOpts  browser.GotoOptions
	waitedFor []string
	scripts   []string
	closed    bool
}

func (p *fakePage) Goto(url string, opts browser.GotoOptions) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gotoURL, p.gotoOpts = url, opts
	return p.sc.status, p.sc.gotoErr
}

func (p *fakePage) URL() string { return p.gotoURL }

func (p *fakePage) Title() (string, error) { return p.sc.title, p.sc.titleErr }

func (p *fakePage) Content() (string, error) { return p.sc.html, nil }

func (p *fakePage) Evaluate(script string, _ any) (any, error) {
	p.mu.Lock()
	p.scripts = append(p.scripts, script)
	p.mu.Unlock()

	switch script {
	case browser.ScrollScript:
		return nil, nil
	case dom.ImagesScript:
		if p.sc.evalErr != nil {
			return nil, p.sc.evalErr
		}
		return p.sc.images, nil
	case dom.ProductInfoScript:
		if p.sc.evalErr != nil {
			return nil, p.sc.evalErr
		}
		return p.sc.info, nil
	}
	return nil, nil
}

func (p *fakePage) MouseMove(float64, float64, int) error { return nil }

func (p *fakePage) WaitForSelector(selector string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waitedFor = append(p.waitedFor, selector)
	return nil
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type staticResolver struct{ p *profile.Profile }

func (r staticResolver) Resolve(string) *profile.Profile { return r.p }

// sleepRecorder stands in for real time.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) all() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

// testSettings uses distinct durations so waits can be told apart.
func testSettings() Settings {
	s := DefaultSettings()
	s.Settle = 7 * time.Second
	s.AfterScroll = 1500 * time.Millisecond
	return s
}

func testProfile() *profile.Profile {
	return &profile.Profile{
		Name: "test",
		Load: profile.LoadPolicy{WaitUntil: browser.WaitNetworkIdle, Timeout: 30 * time.Second},
		Selectors: map[string][]string{
			profile.FieldName:  {"h1"},
			profile.FieldPrice: {".price"},
			profile.FieldStock: {".add-to-cart"},
		},
	}
}

func newTestExtractor(engine *fakeEngine, p *profile.Profile, sleeps *sleepRecorder) *Extractor {
	pacer := ratelimit.NewPacerWithSleep(sleeps.sleep, 1)
	return New(engine, staticResolver{p: p}, pacer, testSettings(), nil)
}
