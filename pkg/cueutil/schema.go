// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Schema is a compiled schema definition. It is safe for concurrent use;
// documents are checked one at a time.
type Schema struct {
	mu   sync.Mutex
	ctx  *cue.Context
	root cue.Value
}

// CompileSchema compiles src and looks up definition (e.g. "#Config").
// Failures are programming errors in the embedded schema.
func CompileSchema(src []byte, definition string) (*Schema, error) {
	ctx := cuecontext.New()

	compiled := ctx.CompileBytes(src)
	if err := compiled.Err(); err != nil {
		return nil, fmt.Errorf("internal error: failed to compile schema: %w", err)
	}
	root := compiled.LookupPath(cue.ParsePath(definition))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("internal error: schema definition %s not found: %w", definition, err)
	}
	if !root.Exists() {
		return nil, fmt.Errorf("internal error: schema definition %s not found", definition)
	}

	return &Schema{ctx: ctx, root: root}, nil
}

// DecodeMap checks data against the schema and decodes it into a map.
// Only the fields present in data appear in the map.
func (s *Schema) DecodeMap(data []byte, opts ...Option) (map[string]any, error) {
	var out map[string]any
	if err := s.decode(data, newDocumentOptions(opts), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// decode checks data against s and decodes the unified value into target.
func (s *Schema) decode(data []byte, o documentOptions, target any) error {
	if err := checkSize(data, o.maxFileSize, o.filename); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.ctx.CompileBytes(data, cue.Filename(o.filename))
	if err := doc.Err(); err != nil {
		return FormatError(err, o.filename)
	}

	unified := s.root.Unify(doc)
	if err := unified.Validate(cue.Concrete(o.concrete)); err != nil {
		return FormatError(err, o.filename)
	}
	if err := unified.Decode(target); err != nil {
		return FormatError(err, o.filename)
	}
	return nil
}
