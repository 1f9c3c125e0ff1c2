// Package keyword executes single test steps against an open browser page.
//
// Steps name one operation from a closed vocabulary. Every operation has a
// typed handler; names arriving from outside (database rows, network payloads)
// are parsed with ParseOperation and unknown names fail with
// ErrUnsupportedOperation.
package keyword

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidStep is returned when a step is missing a field its operation requires.
	ErrInvalidStep = errors.New("invalid step")

	// ErrUnsupportedOperation is returned when a step names an unknown operation.
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// Operation is one keyword of the automation vocabulary.
type Operation string

const (
	OpNavigate          Operation = "navigate"
	OpClick             Operation = "click"
	OpFill              Operation = "fill"
	OpPressKey          Operation = "press_key"
	OpSelectOption      Operation = "select_option"
	OpWaitForElement    Operation = "wait_for_element"
	OpWaitForURL        Operation = "wait_for_url"
	OpAssertTextEquals  Operation = "assert_text_equals"
	OpAssertTitleEquals Operation = "assert_title_equals"
	OpCaptureScreenshot Operation = "capture_screenshot"
)

// aliases maps the short keyword names stored by older clients to operations.
var aliases = map[string]Operation{
	"goto":              OpNavigate,
	"press":             OpPressKey,
	"wait_for_selector": OpWaitForElement,
	"expect_text":       OpAssertTextEquals,
	"expect_title":      OpAssertTitleEquals,
	"screenshot":        OpCaptureScreenshot,
}

// ParseOperation resolves a canonical name or legacy alias to an Operation.
func ParseOperation(name string) (Operation, error) {
	op := Operation(name)
	if _, ok := handlers[op]; ok {
		return op, nil
	}
	if op, ok := aliases[name]; ok {
		return op, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedOperation, name)
}

// IsValid reports whether op is part of the vocabulary.
func (op Operation) IsValid() bool {
	_, ok := handlers[op]
	return ok
}
