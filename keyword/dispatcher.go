package keyword

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hairizuanbinnoorazman/keyword-runner/browser"
	"github.com/hairizuanbinnoorazman/keyword-runner/logger"
)

// Options configures a Dispatcher.
type Options struct {
	// BaseURL is prefixed to navigate values that are not absolute.
	BaseURL string

	// ScreenshotDir receives explicit and failure screenshots.
	ScreenshotDir string
}

// Dispatcher executes steps against one page.
type Dispatcher struct {
	page   browser.Page
	opts   Options
	logger logger.Logger
	now    func() time.Time
}

// NewDispatcher creates a dispatcher bound to page.
func NewDispatcher(page browser.Page, opts Options, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		page:   page,
		opts:   opts,
		logger: log,
		now:    time.Now,
	}
}

type requirement int

const (
	needLocator requirement = 1 << iota
	// needValue rejects a missing or empty value.
	needValue
	// needValuePresent rejects only a missing value; "" is a legitimate input.
	needValuePresent
)

type handler struct {
	description string
	needs       requirement
	run         func(d *Dispatcher, ctx context.Context, s Step) (string, error)
}

var vocabulary = []Operation{
	OpNavigate,
	OpClick,
	OpFill,
	OpPressKey,
	OpSelectOption,
	OpWaitForElement,
	OpWaitForURL,
	OpAssertTextEquals,
	OpAssertTitleEquals,
	OpCaptureScreenshot,
}

var handlers = map[Operation]handler{
	OpNavigate: {
		description: "Navigate to a URL, relative to the project base URL",
		needs:       needValue,
		run: func(d *Dispatcher, ctx context.Context, s Step) (string, error) {
			url := s.value()
			if !strings.HasPrefix(url, "http") {
				url = d.opts.BaseURL + url
			}
			return "", d.page.Goto(ctx, url)
		},
	},
	OpClick: {
		description: "Click an element",
		needs:       needLocator,
		run: func(d *Dispatcher, ctx context.Context, s Step) (string, error) {
			return "", d.page.Click(ctx, ResolveLocator(s.locator()))
		},
	},
	OpFill: {
		description: "Fill an input with text",
		needs:       needLocator | needValuePresent,
		run: func(d *Dispatcher, ctx context.Context, s Step) (string, error) {
			return "", d.page.Fill(ctx, ResolveLocator(s.locator()), s.value())
		},
	},
	OpPressKey: {
		description: "Press a key on an element",
		needs:       needLocator | needValue,
		run: func(d *Dispatcher, ctx context.Context, s Step) (string, error) {
			return "", d.page.Press(ctx, ResolveLocator(s.locator()), s.value())
		},
	},
	OpSelectOption: {
		description: "Select an option of a select element",
		needs:       needLocator | needValue,
		run: func(d *Dispatcher, ctx context.Context, s Step) (string, error) {
			return "", d.page.SelectOption(ctx, ResolveLocator(s.locator()), s.value())
		},
	},
	OpWaitForElement: {
		description: "Wait for an element to be visible",
		needs:       needLocator,
		run: func(d *Dispatcher, ctx context.Context, s Step) (string, error) {
			return "", d.page.WaitForSelector(ctx, ResolveLocator(s.locator()))
		},
	},
	OpWaitForURL: {
		description: "Wait for the page URL to match a pattern",
		needs:       needValue,
		run: func(d *Dispatcher, ctx context.Context, s Step) (string, error) {
			return "", d.page.WaitForURL(ctx, s.value())
		},
	},
	OpAssertTextEquals: {
		description: "Assert the text of an element",
		needs:       needLocator | needValuePresent,
		run: func(d *Dispatcher, ctx context.Context, s Step) (string, error) {
			return "", d.page.ExpectText(ctx, ResolveLocator(s.locator()), s.value())
		},
	},
	OpAssertTitleEquals: {
		description: "Assert the page title",
		needs:       needValuePresent,
		run: func(d *Dispatcher, ctx context.Context, s Step) (string, error) {
			return "", d.page.ExpectTitle(ctx, s.value())
		},
	},
	OpCaptureScreenshot: {
		description: "Capture a screenshot, optionally named by the value",
		run: func(d *Dispatcher, ctx context.Context, s Step) (string, error) {
			name := s.value()
			if name == "" {
				name = fmt.Sprintf("screenshot_%d.png", d.now().Unix())
			}
			return d.screenshot(ctx, name)
		},
	},
}

// ExecuteStep runs one step. Failures of any kind, including unknown
// operations and driver panics, are returned in the Result; on failure a
// screenshot is captured and its path reported.
func (d *Dispatcher) ExecuteStep(ctx context.Context, step Step) Result {
	desc := step.Describe()
	log := d.logger.WithField("position", step.Position)
	log.Info(ctx, "executing step", map[string]interface{}{
		"operation":   step.Operation,
		"description": desc,
	})

	artifact, err := d.run(ctx, step)
	if err == nil {
		msg := "SUCCESS: " + desc
		log.Info(ctx, msg, nil)
		return Result{Success: true, Message: msg, ScreenshotPath: artifact}
	}

	msg := fmt.Sprintf("FAILURE: %s. Error: %v", desc, err)
	log.Error(ctx, msg, nil)

	shot, shotErr := d.screenshot(ctx, fmt.Sprintf("step_%d_failure.png", step.Position))
	if shotErr != nil {
		log.Error(ctx, "failed to capture failure screenshot", map[string]interface{}{
			"error": shotErr.Error(),
		})
		shot = ""
	}

	return Result{Success: false, Message: msg, ScreenshotPath: shot, Err: err}
}

func (d *Dispatcher) run(ctx context.Context, step Step) (artifact string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("operation %s panicked: %v", step.Operation, r)
		}
	}()

	op, err := ParseOperation(step.Operation)
	if err != nil {
		return "", err
	}
	h := handlers[op]
	if err := validate(op, h.needs, step); err != nil {
		return "", err
	}
	return h.run(d, ctx, step)
}

func validate(op Operation, needs requirement, step Step) error {
	if needs&needLocator != 0 && step.locator() == "" {
		return fmt.Errorf("%w: %s requires a locator", ErrInvalidStep, op)
	}
	if needs&needValue != 0 && step.value() == "" {
		return fmt.Errorf("%w: %s requires a value", ErrInvalidStep, op)
	}
	if needs&needValuePresent != 0 && step.Value == nil {
		return fmt.Errorf("%w: %s requires a value", ErrInvalidStep, op)
	}
	return nil
}

// Validate checks a step without executing it.
func Validate(step Step) error {
	op, err := ParseOperation(step.Operation)
	if err != nil {
		return err
	}
	return validate(op, handlers[op].needs, step)
}

func (d *Dispatcher) screenshot(ctx context.Context, name string) (path string, err error) {
	defer func() {
		if r := recover(); r != nil {
			path, err = "", fmt.Errorf("screenshot panicked: %v", r)
		}
	}()

	path = filepath.Join(d.opts.ScreenshotDir, filepath.Base(name))
	if err := d.page.Screenshot(ctx, path); err != nil {
		return "", err
	}
	d.logger.Info(ctx, "screenshot saved", map[string]interface{}{"path": path})
	return path, nil
}
