// Package browser defines the contract between the run orchestrator and an
// external browser automation driver. The orchestrator never implements
// browser primitives itself; it only calls the operations declared here.
package browser

import (
	"context"
	"errors"
	"fmt"
)

// ErrSessionFailure marks driver failures that make the whole session unusable
// (launch, context creation, tracing, close).
var ErrSessionFailure = errors.New("browser session failure")

// SelectorKind is the resolution strategy for a Selector.
type SelectorKind string

const (
	// SelectorNative resolves through the driver's own selector engine (CSS, text=, etc).
	SelectorNative SelectorKind = "native"

	// SelectorXPath resolves the expression as an XPath.
	SelectorXPath SelectorKind = "xpath"
)

// Selector identifies an element on a page.
type Selector struct {
	Kind       SelectorKind
	Expression string
}

func (s Selector) String() string {
	if s.Kind == SelectorXPath {
		return "xpath=" + s.Expression
	}
	return s.Expression
}

// LaunchOptions parameterizes an isolated browser session.
type LaunchOptions struct {
	// Kind is the browser engine: chromium, firefox or webkit.
	Kind     string
	Headless bool
}

// ContextOptions parameterizes a browsing context within a session.
type ContextOptions struct {
	IgnoreHTTPSErrors bool
}

// Driver launches browser sessions.
type Driver interface {
	Launch(ctx context.Context, opts LaunchOptions) (Session, error)
}

// Session is one launched browser.
type Session interface {
	// NewContext opens an isolated context with trace capture already started.
	NewContext(ctx context.Context, opts ContextOptions) (Context, error)
	Close(ctx context.Context) error
}

// Context is a browsing context recording a trace.
type Context interface {
	NewPage(ctx context.Context) (Page, error)

	// Close stops tracing, flushes the trace to tracePath and closes the context.
	Close(ctx context.Context, tracePath string) error
}

// Page exposes the fixed vocabulary of primitives the keyword dispatcher drives.
type Page interface {
	// Goto navigates to url and waits until the network is idle and the body is visible.
	Goto(ctx context.Context, url string) error
	Click(ctx context.Context, sel Selector) error
	Fill(ctx context.Context, sel Selector, value string) error
	Press(ctx context.Context, sel Selector, key string) error
	SelectOption(ctx context.Context, sel Selector, value string) error
	WaitForSelector(ctx context.Context, sel Selector) error
	WaitForURL(ctx context.Context, pattern string) error
	ExpectText(ctx context.Context, sel Selector, text string) error
	ExpectTitle(ctx context.Context, title string) error
	Screenshot(ctx context.Context, path string) error
}

// SessionError wraps err as a session failure.
func SessionError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrSessionFailure, op, err)
}
