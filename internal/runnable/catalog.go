// SPDX-License-Identifier: MPL-2.0

package runnable

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrNotFound is the sentinel error wrapped by NotFoundError.
	ErrNotFound = errors.New("runnable not found")
	// ErrDuplicate is returned when registering an ID or location twice.
	ErrDuplicate = errors.New("runnable already registered")
)

type (
	// NotFoundError is returned when a runnable or its entry point cannot be resolved.
	NotFoundError struct {
		ID       string
		Location string
	}

	// Catalog holds the runnables known to a process and resolves descriptors
	// to entry points. It is safe for concurrent use.
	Catalog struct {
		mu          sync.RWMutex
		descriptors map[string]Descriptor
		entries     map[string]Entrypoint
	}
)

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Location != "" && e.Location != e.ID {
		return fmt.Sprintf("runnable %q not found (entry point %q is not registered)", e.ID, e.Location)
	}
	return fmt.Sprintf("runnable %q not found", e.ID)
}

// Unwrap returns ErrNotFound so callers can use errors.Is for programmatic detection.
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		descriptors: make(map[string]Descriptor),
		entries:     make(map[string]Entrypoint),
	}
}

// Register adds a builtin runnable. The descriptor's Kind is forced to builtin
// and an empty Location defaults to the ID.
func (c *Catalog) Register(desc Descriptor, fn Entrypoint) error {
	if fn == nil {
		return fmt.Errorf("register %q: nil entry point", desc.ID)
	}
	desc.Kind = KindBuiltin
	if desc.Location == "" {
		desc.Location = desc.ID
	}
	if err := desc.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.descriptors[desc.ID]; exists {
		return fmt.Errorf("register %q: %w", desc.ID, ErrDuplicate)
	}
	if _, exists := c.entries[desc.Location]; exists {
		return fmt.Errorf("register %q: entry point %q: %w", desc.ID, desc.Location, ErrDuplicate)
	}
	c.descriptors[desc.ID] = desc
	c.entries[desc.Location] = fn
	return nil
}

// MustRegister is like Register but panics on error. Intended for static
// registration of builtins.
func (c *Catalog) MustRegister(desc Descriptor, fn Entrypoint) {
	if err := c.Register(desc, fn); err != nil {
		panic(err)
	}
}

// Add adds a descriptor without an entry point: a script runnable, or a
// builtin alias whose Location names an already registered entry point.
func (c *Catalog) Add(desc Descriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.descriptors[desc.ID]; exists {
		return fmt.Errorf("add %q: %w", desc.ID, ErrDuplicate)
	}
	if desc.Kind == KindBuiltin {
		if _, ok := c.entries[desc.Location]; !ok {
			return &NotFoundError{ID: desc.ID, Location: desc.Location}
		}
	}
	c.descriptors[desc.ID] = desc
	return nil
}

// Lookup returns the descriptor registered under id.
func (c *Catalog) Lookup(id string) (Descriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	desc, ok := c.descriptors[id]
	if !ok {
		return Descriptor{}, &NotFoundError{ID: id}
	}
	return desc, nil
}

// List returns all descriptors sorted by ID.
func (c *Catalog) List() []Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Descriptor, 0, len(c.descriptors))
	for _, desc := range c.descriptors {
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resolve returns the entry point for a descriptor. Builtins are looked up by
// Location; scripts are compiled from the descriptor itself, so a descriptor
// received from another process resolves without the catalog knowing its ID.
func (c *Catalog) Resolve(desc Descriptor) (Entrypoint, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	switch desc.Kind {
	case KindScript:
		return ScriptEntrypoint(desc.ID, desc.Location)
	default:
		c.mu.RLock()
		fn, ok := c.entries[desc.Location]
		c.mu.RUnlock()
		if !ok {
			return nil, &NotFoundError{ID: desc.ID, Location: desc.Location}
		}
		return fn, nil
	}
}
