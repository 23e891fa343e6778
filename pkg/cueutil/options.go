// SPDX-License-Identifier: MPL-2.0

package cueutil

// DefaultMaxFileSize is the largest document accepted by default (5MB).
const DefaultMaxFileSize int64 = 5 * 1024 * 1024

type (
	// documentOptions control how one document is checked.
	documentOptions struct {
		maxFileSize int64
		concrete    bool
		filename    string
	}

	// Option configures document checking.
	Option func(*documentOptions)
)

func newDocumentOptions(opts []Option) documentOptions {
	o := documentOptions{
		maxFileSize: DefaultMaxFileSize,
		concrete:    true,
		filename:    "<input>",
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithMaxFileSize sets the maximum accepted document size in bytes.
func WithMaxFileSize(size int64) Option {
	return func(o *documentOptions) {
		o.maxFileSize = size
	}
}

// WithConcrete sets whether every value must be concrete after unification.
// Default is true. Documents whose fields are all optional, such as
// configuration files layered over defaults, pass false.
func WithConcrete(concrete bool) Option {
	return func(o *documentOptions) {
		o.concrete = concrete
	}
}

// WithFilename names the document in positions and error messages.
func WithFilename(name string) Option {
	return func(o *documentOptions) {
		if name != "" {
			o.filename = name
		}
	}
}
