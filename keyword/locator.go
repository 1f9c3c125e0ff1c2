package keyword

import (
	"strings"

	"github.com/hairizuanbinnoorazman/keyword-runner/browser"
)

// ResolveLocator routes locators starting with "/" or "(" to XPath resolution
// and everything else to the driver's native selector engine.
func ResolveLocator(locator string) browser.Selector {
	if strings.HasPrefix(locator, "/") || strings.HasPrefix(locator, "(") {
		return browser.Selector{Kind: browser.SelectorXPath, Expression: locator}
	}
	return browser.Selector{Kind: browser.SelectorNative, Expression: locator}
}
