// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// Buffer collects the output of a sink that is written from several
// goroutines, such as the stderr forwarder of a worker and the dispatcher.
// The zero value is ready to use.
type Buffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// Bytes returns a copy of the collected output.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}

func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// WriteConfig writes content to config.cue in dir and returns the file path.
// An empty dir means a fresh temporary directory.
func WriteConfig(t testing.TB, dir, content string) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	path := filepath.Join(dir, "config.cue")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config %s: %v", path, err)
	}
	return path
}
