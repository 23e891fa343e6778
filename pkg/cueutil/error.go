// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

var (
	// ErrSchema is the sentinel error wrapped by SchemaError.
	ErrSchema = errors.New("document does not match schema")
	// ErrTooLarge is returned for documents above the size limit.
	ErrTooLarge = errors.New("document too large")
)

type (
	// Violation is one problem found in a document.
	Violation struct {
		// Path is the JSON path of the offending value (e.g., "runnables[0].id").
		// Empty for problems that are not tied to a field, such as syntax errors.
		Path string
		// Message describes the problem.
		Message string
	}

	// SchemaError lists the violations found in one document.
	SchemaError struct {
		File       string
		Violations []Violation
	}
)

// String renders the violation as "<path>: <message>".
func (v Violation) String() string {
	if v.Path == "" {
		return v.Message
	}
	return v.Path + ": " + v.Message
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("%s: %s", e.File, e.Violations[0])
	}
	lines := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		lines = append(lines, v.String())
	}
	return fmt.Sprintf("%s: %d problems:\n  %s", e.File, len(e.Violations), strings.Join(lines, "\n  "))
}

// Unwrap returns ErrSchema so callers can use errors.Is for programmatic detection.
func (e *SchemaError) Unwrap() error { return ErrSchema }

// FormatError converts a CUE error into a *SchemaError naming file. Errors
// that carry no CUE detail are wrapped with the file name.
func FormatError(err error, file string) error {
	if err == nil {
		return nil
	}

	// cueerrors.Errors promotes any error to a one-element list, so only
	// genuine CUE errors become violations.
	var ce cueerrors.Error
	if !errors.As(err, &ce) {
		return fmt.Errorf("%s: %w", file, err)
	}
	list := cueerrors.Errors(err)

	se := &SchemaError{File: file}
	for _, e := range list {
		path := jsonPath(cueerrors.Path(e))
		msg := e.Error()
		// CUE repeats the path at the start of some messages.
		if path != "" {
			if rest, ok := strings.CutPrefix(msg, strings.Join(cueerrors.Path(e), ".")); ok {
				msg = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
			}
		}
		se.Violations = append(se.Violations, Violation{Path: path, Message: msg})
	}
	return se
}

// jsonPath renders a CUE path (["runnables", "0", "id"]) in JSON-path
// notation ("runnables[0].id").
func jsonPath(parts []string) string {
	var b strings.Builder
	for i, part := range parts {
		if _, err := strconv.Atoi(part); err == nil && i > 0 {
			b.WriteString("[" + part + "]")
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}

func checkSize(data []byte, maxSize int64, file string) error {
	if int64(len(data)) > maxSize {
		return fmt.Errorf("%s: %w: %d bytes exceeds the %d byte limit", file, ErrTooLarge, len(data), maxSize)
	}
	return nil
}
