package browser

import (
	"context"
	"fmt"

	"github.com/hairizuanbinnoorazman/keyword-runner/logger"
	"github.com/playwright-community/playwright-go"
)

// PlaywrightConfig configures the playwright-backed driver.
type PlaywrightConfig struct {
	// InstallBrowsers downloads the driver and browser binaries before each launch
	// when they are missing.
	InstallBrowsers bool
}

// PlaywrightDriver implements Driver on top of playwright-go.
// Every Launch starts its own playwright process so sessions share nothing.
type PlaywrightDriver struct {
	config PlaywrightConfig
	logger logger.Logger
}

// NewPlaywrightDriver creates a new playwright driver.
func NewPlaywrightDriver(config PlaywrightConfig, log logger.Logger) *PlaywrightDriver {
	return &PlaywrightDriver{
		config: config,
		logger: log,
	}
}

// Launch starts playwright and launches the requested browser kind.
func (d *PlaywrightDriver) Launch(ctx context.Context, opts LaunchOptions) (Session, error) {
	if d.config.InstallBrowsers {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{opts.Kind}}); err != nil {
			return nil, SessionError("install", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, SessionError("start playwright", err)
	}

	var launcher playwright.BrowserType
	switch opts.Kind {
	case "", "chromium":
		launcher = pw.Chromium
	case "firefox":
		launcher = pw.Firefox
	case "webkit":
		launcher = pw.WebKit
	default:
		pw.Stop()
		return nil, SessionError("launch", fmt.Errorf("unsupported browser kind %q", opts.Kind))
	}

	b, err := launcher.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		pw.Stop()
		return nil, SessionError("launch "+opts.Kind, err)
	}

	d.logger.Info(ctx, "browser launched", map[string]interface{}{
		"browser":  opts.Kind,
		"headless": opts.Headless,
	})

	return &playwrightSession{pw: pw, browser: b}, nil
}

type playwrightSession struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

func (s *playwrightSession) NewContext(ctx context.Context, opts ContextOptions) (Context, error) {
	bctx, err := s.browser.NewContext(playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(opts.IgnoreHTTPSErrors),
	})
	if err != nil {
		return nil, SessionError("new context", err)
	}

	err = bctx.Tracing().Start(playwright.TracingStartOptions{
		Screenshots: playwright.Bool(true),
		Snapshots:   playwright.Bool(true),
		Sources:     playwright.Bool(true),
	})
	if err != nil {
		bctx.Close()
		return nil, SessionError("start tracing", err)
	}

	return &playwrightContext{ctx: bctx}, nil
}

func (s *playwrightSession) Close(ctx context.Context) error {
	var firstErr error
	if s.browser.IsConnected() {
		if err := s.browser.Close(); err != nil {
			firstErr = SessionError("close browser", err)
		}
	}
	if err := s.pw.Stop(); err != nil && firstErr == nil {
		firstErr = SessionError("stop playwright", err)
	}
	return firstErr
}

type playwrightContext struct {
	ctx   playwright.BrowserContext
	pages []playwright.Page
}

func (c *playwrightContext) NewPage(ctx context.Context) (Page, error) {
	p, err := c.ctx.NewPage()
	if err != nil {
		return nil, SessionError("new page", err)
	}
	c.pages = append(c.pages, p)
	return &playwrightPage{
		page:   p,
		expect: playwright.NewPlaywrightAssertions(),
	}, nil
}

func (c *playwrightContext) Close(ctx context.Context, tracePath string) error {
	stopErr := c.ctx.Tracing().Stop(tracePath)
	for _, p := range c.pages {
		p.Close()
	}
	closeErr := c.ctx.Close()

	if stopErr != nil {
		return SessionError("stop tracing", stopErr)
	}
	if closeErr != nil {
		return SessionError("close context", closeErr)
	}
	return nil
}

type playwrightPage struct {
	page   playwright.Page
	expect playwright.PlaywrightAssertions
}

func (p *playwrightPage) locator(sel Selector) playwright.Locator {
	return p.page.Locator(sel.String())
}

func (p *playwrightPage) Goto(ctx context.Context, url string) error {
	if _, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		return err
	}
	return p.page.Locator("body").WaitFor(playwright.LocatorWaitForOptions{
		State: playwright.WaitForSelectorStateVisible,
	})
}

func (p *playwrightPage) Click(ctx context.Context, sel Selector) error {
	return p.locator(sel).Click()
}

func (p *playwrightPage) Fill(ctx context.Context, sel Selector, value string) error {
	return p.locator(sel).Fill(value)
}

func (p *playwrightPage) Press(ctx context.Context, sel Selector, key string) error {
	return p.locator(sel).Press(key)
}

func (p *playwrightPage) SelectOption(ctx context.Context, sel Selector, value string) error {
	_, err := p.locator(sel).SelectOption(playwright.SelectOptionValues{
		Values: playwright.StringSlice(value),
	})
	return err
}

func (p *playwrightPage) WaitForSelector(ctx context.Context, sel Selector) error {
	return p.locator(sel).WaitFor(playwright.LocatorWaitForOptions{
		State: playwright.WaitForSelectorStateVisible,
	})
}

func (p *playwrightPage) WaitForURL(ctx context.Context, pattern string) error {
	return p.page.WaitForURL(pattern)
}

func (p *playwrightPage) ExpectText(ctx context.Context, sel Selector, text string) error {
	return p.expect.Locator(p.locator(sel)).ToHaveText(text)
}

func (p *playwrightPage) ExpectTitle(ctx context.Context, title string) error {
	return p.expect.Page(p.page).ToHaveTitle(title)
}

func (p *playwrightPage) Screenshot(ctx context.Context, path string) error {
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path: playwright.String(path),
	})
	return err
}
