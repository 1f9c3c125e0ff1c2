// Package browsertest provides an in-memory browser.Driver for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hairizuanbinnoorazman/keyword-runner/browser"
)

// ErrElementNotFound is returned for operations on selectors listed in Driver.Missing.
var ErrElementNotFound = errors.New("element not found")

// Call records one primitive invoked on a fake page.
type Call struct {
	Op       string
	Selector browser.Selector
	Value    string
}

// Driver is a fake browser.Driver. Configure the exported fields before use.
type Driver struct {
	// Missing lists selector expressions that no operation can find.
	Missing map[string]bool

	// Texts maps selector expressions to the text they contain. Selectors not
	// listed here match any expected text.
	Texts map[string]string

	// Title is the page title reported to ExpectTitle.
	Title string

	// LaunchErr, ContextErr and CloseTraceErr force failures of the session lifecycle.
	LaunchErr     error
	ContextErr    error
	CloseTraceErr error

	// PanicOn makes the named primitive (or "new_page") panic, simulating a
	// fatal driver fault.
	PanicOn string

	mu             sync.Mutex
	calls          []Call
	launches       []browser.LaunchOptions
	sessionsClosed int
	tracePaths     []string
	url            string
}

// New returns a fake driver with empty configuration.
func New() *Driver {
	return &Driver{
		Missing: map[string]bool{},
		Texts:   map[string]string{},
	}
}

// Calls returns every primitive invoked so far, in order.
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// Launches returns the options of every launched session.
func (d *Driver) Launches() []browser.LaunchOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]browser.LaunchOptions, len(d.launches))
	copy(out, d.launches)
	return out
}

// SessionsClosed returns how many sessions were closed.
func (d *Driver) SessionsClosed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessionsClosed
}

// TracePaths returns the trace paths contexts were closed with.
func (d *Driver) TracePaths() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.tracePaths))
	copy(out, d.tracePaths)
	return out
}

// URL returns the last navigated URL.
func (d *Driver) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}

// Launch implements browser.Driver.
func (d *Driver) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Session, error) {
	if d.LaunchErr != nil {
		return nil, browser.SessionError("launch", d.LaunchErr)
	}
	d.mu.Lock()
	d.launches = append(d.launches, opts)
	d.mu.Unlock()
	return &session{d: d}, nil
}

type session struct {
	d *Driver
}

func (s *session) NewContext(ctx context.Context, opts browser.ContextOptions) (browser.Context, error) {
	if s.d.ContextErr != nil {
		return nil, browser.SessionError("new context", s.d.ContextErr)
	}
	return &bcontext{d: s.d}, nil
}

func (s *session) Close(ctx context.Context) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.sessionsClosed++
	return nil
}

type bcontext struct {
	d *Driver
}

func (c *bcontext) NewPage(ctx context.Context) (browser.Page, error) {
	if c.d.PanicOn == "new_page" {
		panic("driver crashed opening page")
	}
	return &page{d: c.d}, nil
}

func (c *bcontext) Close(ctx context.Context, tracePath string) error {
	if c.d.CloseTraceErr != nil {
		return browser.SessionError("stop tracing", c.d.CloseTraceErr)
	}
	if err := writeFile(tracePath, "trace"); err != nil {
		return browser.SessionError("stop tracing", err)
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.d.tracePaths = append(c.d.tracePaths, tracePath)
	return nil
}

type page struct {
	d *Driver
}

func (p *page) record(op string, sel browser.Selector, value string) error {
	if p.d.PanicOn == op {
		panic(fmt.Sprintf("driver crashed during %s", op))
	}
	p.d.mu.Lock()
	defer p.d.mu.Unlock()
	p.d.calls = append(p.d.calls, Call{Op: op, Selector: sel, Value: value})
	if sel.Expression != "" && p.d.Missing[sel.Expression] {
		return fmt.Errorf("%w: %s", ErrElementNotFound, sel)
	}
	return nil
}

func (p *page) Goto(ctx context.Context, url string) error {
	if err := p.record("goto", browser.Selector{}, url); err != nil {
		return err
	}
	p.d.mu.Lock()
	p.d.url = url
	p.d.mu.Unlock()
	return nil
}

func (p *page) Click(ctx context.Context, sel browser.Selector) error {
	return p.record("click", sel, "")
}

func (p *page) Fill(ctx context.Context, sel browser.Selector, value string) error {
	return p.record("fill", sel, value)
}

func (p *page) Press(ctx context.Context, sel browser.Selector, key string) error {
	return p.record("press", sel, key)
}

func (p *page) SelectOption(ctx context.Context, sel browser.Selector, value string) error {
	return p.record("select_option", sel, value)
}

func (p *page) WaitForSelector(ctx context.Context, sel browser.Selector) error {
	return p.record("wait_for_selector", sel, "")
}

func (p *page) WaitForURL(ctx context.Context, pattern string) error {
	return p.record("wait_for_url", browser.Selector{}, pattern)
}

func (p *page) ExpectText(ctx context.Context, sel browser.Selector, text string) error {
	if err := p.record("expect_text", sel, text); err != nil {
		return err
	}
	p.d.mu.Lock()
	actual, ok := p.d.Texts[sel.Expression]
	p.d.mu.Unlock()
	if ok && actual != text {
		return fmt.Errorf("expected text %q, got %q", text, actual)
	}
	return nil
}

func (p *page) ExpectTitle(ctx context.Context, title string) error {
	if err := p.record("expect_title", browser.Selector{}, title); err != nil {
		return err
	}
	if p.d.Title != title {
		return fmt.Errorf("expected title %q, got %q", title, p.d.Title)
	}
	return nil
}

func (p *page) Screenshot(ctx context.Context, path string) error {
	if err := p.record("screenshot", browser.Selector{}, path); err != nil {
		return err
	}
	return writeFile(path, "png")
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0644)
}
