// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
)

type (
	// ActionableError is an infrastructure failure explained for the user:
	// the operation that failed, the resource involved, what to try next and
	// the catalog issue with the long explanation.
	//
	// Build one with ErrorContext:
	//
	//	return issue.NewErrorContext().
	//		WithOperation("run demo.hello (docker)").
	//		WithResource("debian:stable-slim").
	//		WithSuggestion("Pull the image with 'docker pull debian:stable-slim'").
	//		WithIssue(issue.ImageNotFoundId).
	//		Wrap(err).
	//		BuildError()
	ActionableError struct {
		// Operation is a verb phrase ("load configuration", "run demo.hello").
		Operation string
		// Resource names the file, image or runnable involved. Optional.
		Resource string
		// Suggestions are short hints shown under the message.
		Suggestions []string
		// Cause is the underlying error.
		Cause error
		// Issue is the catalog entry for this class of failure. Zero means none.
		Issue Id
	}

	// ErrorContext accumulates the parts of an ActionableError. The context
	// for an operation can be prepared up front and completed once the
	// failure is known.
	ErrorContext struct {
		err ActionableError
	}
)

// NewErrorContext returns an empty ErrorContext.
func NewErrorContext() *ErrorContext {
	return &ErrorContext{}
}

// Error returns "failed to <operation>[: <resource>][: <cause>]".
func (e *ActionableError) Error() string {
	parts := []string{"failed to " + e.Operation}
	if e.Resource != "" {
		parts = append(parts, e.Resource)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *ActionableError) Unwrap() error { return e.Cause }

// HasSuggestions reports whether the error carries hints for the user.
func (e *ActionableError) HasSuggestions() bool { return len(e.Suggestions) > 0 }

// Details returns the catalog issue attached to the error, or nil.
func (e *ActionableError) Details() *Issue {
	if e.Issue == 0 {
		return nil
	}
	return Get(e.Issue)
}

// Format renders the error for the terminal: the message followed by one
// bullet per suggestion. Verbose output adds the cause chain, one line per
// wrapping layer.
func (e *ActionableError) Format(verbose bool) string {
	var b strings.Builder
	b.WriteString(e.Error())

	if e.HasSuggestions() {
		b.WriteString("\n")
		for _, s := range e.Suggestions {
			b.WriteString("\n  • " + s)
		}
	}

	if verbose && e.Cause != nil {
		b.WriteString("\n\nError chain:")
		for i, layer := range chain(e.Cause) {
			fmt.Fprintf(&b, "\n  %d. %s", i+1, layer)
		}
	}
	return b.String()
}

// chain lists the messages of err and the errors it wraps. Joined errors
// contribute each of their members.
func chain(err error) []string {
	var out []string
	for err != nil {
		out = append(out, err.Error())
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, member := range joined.Unwrap() {
				out = append(out, chain(member)...)
			}
			return out
		}
		err = errors.Unwrap(err)
	}
	return out
}

// IssueOf returns the issue of the outermost ActionableError in err's chain
// that has one, or zero.
func IssueOf(err error) Id {
	for err != nil {
		var ae *ActionableError
		if !errors.As(err, &ae) {
			return 0
		}
		if ae.Issue != 0 {
			return ae.Issue
		}
		err = ae.Cause
	}
	return 0
}

// WithOperation sets the failed operation.
func (c *ErrorContext) WithOperation(op string) *ErrorContext {
	c.err.Operation = op
	return c
}

// WithResource sets the resource involved.
func (c *ErrorContext) WithResource(res string) *ErrorContext {
	c.err.Resource = res
	return c
}

// WithSuggestion appends a hint. Empty hints are ignored.
func (c *ErrorContext) WithSuggestion(sug string) *ErrorContext {
	if sug != "" {
		c.err.Suggestions = append(c.err.Suggestions, sug)
	}
	return c
}

// WithSuggestions appends several hints.
func (c *ErrorContext) WithSuggestions(sugs ...string) *ErrorContext {
	for _, s := range sugs {
		c.WithSuggestion(s)
	}
	return c
}

// WithIssue attaches a catalog issue.
func (c *ErrorContext) WithIssue(id Id) *ErrorContext {
	c.err.Issue = id
	return c
}

// Wrap sets the underlying error.
func (c *ErrorContext) Wrap(err error) *ErrorContext {
	c.err.Cause = err
	return c
}

// Build returns the ActionableError, or nil when no operation was set.
// Later changes to the context do not affect the returned error.
func (c *ErrorContext) Build() *ActionableError {
	if c.err.Operation == "" {
		return nil
	}
	ae := c.err
	ae.Suggestions = append([]string(nil), c.err.Suggestions...)
	return &ae
}

// BuildError is Build returning an error interface, so a missing operation
// yields a true nil.
func (c *ErrorContext) BuildError() error {
	if ae := c.Build(); ae != nil {
		return ae
	}
	return nil
}
