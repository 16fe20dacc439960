package cas

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raysh454/casprobe/internal/browser"
)

// TextContent returns the text of selector with surrounding whitespace trimmed.
func TextContent(ctx context.Context, page Page, selector string) (string, error) {
	text, err := page.TextContent(ctx, selector)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// AssertTextContent fails with an *AssertionError unless the trimmed text of
// selector equals expected exactly.
func AssertTextContent(ctx context.Context, page Page, selector, expected string) error {
	actual, err := TextContent(ctx, page, selector)
	if err != nil {
		if errors.Is(err, browser.ErrElementNotFound) {
			return &AssertionError{
				Selector: selector,
				Expected: expected,
				Kind:     ErrSelectorNotFound,
				Cause:    err,
			}
		}
		return fmt.Errorf("read %q: %w", selector, err)
	}
	if actual != expected {
		return &AssertionError{
			Selector: selector,
			Expected: expected,
			Actual:   actual,
			Kind:     ErrTextMismatch,
		}
	}
	return nil
}
