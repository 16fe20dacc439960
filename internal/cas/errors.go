package cas

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

var (
	ErrRequestFailed    = errors.New("request failed")
	ErrLaunchFailed     = errors.New("browser launch failed")
	ErrNavigationFailed = errors.New("navigation failed")
	ErrCredentialCount  = errors.New("unexpected credential count")
	ErrLoginFailed      = errors.New("login failed")
	ErrSelectorNotFound = errors.New("selector not found")
	ErrTextMismatch     = errors.New("text mismatch")
)

// StatusError reports a non-2xx answer to DoRequest.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, truncate(e.Body, 200))
}

func (e *StatusError) Unwrap() error { return ErrRequestFailed }

// AssertionError reports a failed AssertTextContent. Kind is ErrSelectorNotFound
// or ErrTextMismatch.
type AssertionError struct {
	Selector string
	Expected string
	Actual   string
	Kind     error
	Cause    error
}

func (e *AssertionError) Error() string {
	if errors.Is(e.Kind, ErrSelectorNotFound) {
		return fmt.Sprintf("selector %q: %v (expected text %q)", e.Selector, ErrSelectorNotFound, e.Expected)
	}
	return fmt.Sprintf("selector %q: expected text %q, got %q (diff: %s)", e.Selector, e.Expected, e.Actual, e.Diff())
}

func (e *AssertionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// Diff renders expected vs actual inline, deletions as [-x-] and insertions as {+x+}.
func (e *AssertionError) Diff() string {
	return inlineDiff(e.Expected, e.Actual)
}

func inlineDiff(expected, actual string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(expected, actual, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			b.WriteString(d.Text)
		case diffmatchpatch.DiffDelete:
			b.WriteString("[-" + d.Text + "-]")
		case diffmatchpatch.DiffInsert:
			b.WriteString("{+" + d.Text + "+}")
		}
	}
	return b.String()
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
