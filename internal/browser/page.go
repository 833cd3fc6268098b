package browser

import (
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

type pwContext struct {
	ctx     playwright.BrowserContext
	timeout time.Duration
}

func (c *pwContext) NewPage() (Page, error) {
	page, err := c.ctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	if c.timeout > 0 {
		page.SetDefaultTimeout(float64(c.timeout.Milliseconds()))
	}

	return &pwPage{page: page}, nil
}

func (c *pwContext) Cookies() ([]Cookie, error) {
	cookies, err := c.ctx.Cookies()
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}

	out := make([]Cookie, 0, len(cookies))
	for _, ck := range cookies {
		out = append(out, Cookie{Name: ck.Name, Value: ck.Value, Domain: ck.Domain})
	}
	return out, nil
}

func (c *pwContext) Close() error {
	return c.ctx.Close()
}

type pwPage struct {
	page playwright.Page
}

func (p *pwPage) Goto(url string, opts GotoOptions) (int, error) {
	gotoOpts := playwright.PageGotoOptions{
		WaitUntil: waitUntilState(opts.WaitUntil),
	}
	if opts.Timeout > 0 {
		gotoOpts.Timeout = playwright.Float(float64(opts.Timeout.Milliseconds()))
	}

	resp, err := p.page.Goto(url, gotoOpts)
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return 0, fmt.Errorf("%w: %v", ErrNavigationTimeout, err)
		}
		return 0, fmt.Errorf("failed to navigate: %w", err)
	}

	if resp == nil {
		return 0, nil
	}
	return resp.Status(), nil
}

func (p *pwPage) URL() string {
	return p.page.URL()
}

func (p *pwPage) Title() (string, error) {
	return p.page.Title()
}

func (p *pwPage) Content() (string, error) {
	return p.page.Content()
}

func (p *pwPage) Evaluate(script string, arg any) (any, error) {
	if arg == nil {
		return p.page.Evaluate(script)
	}
	return p.page.Evaluate(script, arg)
}

func (p *pwPage) MouseMove(x, y float64, steps int) error {
	if steps < 1 {
		steps = 1
	}
	return p.page.Mouse().Move(x, y, playwright.MouseMoveOptions{
		Steps: playwright.Int(steps),
	})
}

func (p *pwPage) WaitForSelector(selector string, timeout time.Duration) error {
	_, err := p.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	return err
}

func (p *pwPage) Close() error {
	return p.page.Close()
}

func waitUntilState(s string) *playwright.WaitUntilState {
	switch s {
	case WaitLoad:
		return playwright.WaitUntilStateLoad
	case WaitDOMContentLoaded:
		return playwright.WaitUntilStateDomcontentloaded
	case WaitCommit:
		return playwright.WaitUntilStateCommit
	default:
		return playwright.WaitUntilStateNetworkidle
	}
}
