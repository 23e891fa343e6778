// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/invowk/bricks/internal/container"
	"github.com/invowk/bricks/internal/issue"
	"github.com/invowk/bricks/internal/isolation"
	"github.com/invowk/bricks/internal/runnable"
	"github.com/invowk/bricks/internal/testutil"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	if cfg.Isolation != isolation.ModeInProcess {
		t.Errorf("Isolation = %q, want %q", cfg.Isolation, isolation.ModeInProcess)
	}
	if cfg.GracePeriod != 5*time.Second {
		t.Errorf("GracePeriod = %s, want 5s", cfg.GracePeriod)
	}
	if cfg.Container.Image != isolation.DefaultDockerImage {
		t.Errorf("Container.Image = %q", cfg.Container.Image)
	}
	if cfg.Container.WindowsIsolation != container.IsolationProcess {
		t.Errorf("Container.WindowsIsolation = %q", cfg.Container.WindowsIsolation)
	}
	if !cfg.Container.MountExecutable {
		t.Error("expected MountExecutable to be true by default")
	}
	if len(cfg.Runnables) != 0 {
		t.Errorf("expected no runnables by default, got %v", cfg.Runnables)
	}
	if valid, errs := cfg.IsValid(); !valid {
		t.Errorf("DefaultConfig() is invalid: %v", errs)
	}
}

func TestConfigDir(t *testing.T) {
	tmpDir := t.TempDir()
	testutil.SetConfigHome(t, tmpDir)

	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() returned error: %v", err)
	}

	want := filepath.Join(testutil.ConfigHome(tmpDir), AppName)
	if dir != want {
		t.Errorf("ConfigDir() = %s, want %s", dir, want)
	}
}

func TestLoad_DefaultsWhenNoConfigFile(t *testing.T) {
	t.Parallel()

	cfg, path, err := LoadWithPath(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("LoadWithPath() returned error: %v", err)
	}
	if path != "" {
		t.Errorf("resolved path = %q, want empty", path)
	}
	if cfg.Isolation != isolation.ModeInProcess || cfg.GracePeriod != 5*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_FromConfigDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := testutil.WriteConfig(t, dir, `
isolation: "docker"
grace_period: "1500ms"
container: {
	image: "alpine:3.20"
	mount_executable: false
}
runnables: [
	{id: "greet.world", name: "Greet", script: "echo hello $1", args: ["world"]},
]
ui: verbose: true
`)

	cfg, resolved, err := LoadWithPath(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("LoadWithPath() returned error: %v", err)
	}
	if resolved != path {
		t.Errorf("resolved path = %q, want %q", resolved, path)
	}
	if cfg.Isolation != isolation.ModeDocker {
		t.Errorf("Isolation = %q, want docker", cfg.Isolation)
	}
	if cfg.GracePeriod != 1500*time.Millisecond {
		t.Errorf("GracePeriod = %s, want 1.5s", cfg.GracePeriod)
	}
	if cfg.Container.Image != "alpine:3.20" {
		t.Errorf("Container.Image = %q", cfg.Container.Image)
	}
	if cfg.Container.MountExecutable {
		t.Error("MountExecutable should be false")
	}
	// Unset keys keep their defaults.
	if cfg.Container.WindowsImage != isolation.DefaultWindowsImage {
		t.Errorf("Container.WindowsImage = %q, want default", cfg.Container.WindowsImage)
	}
	if !cfg.UI.Verbose {
		t.Error("UI.Verbose should be true")
	}
	if len(cfg.Runnables) != 1 || cfg.Runnables[0].ID != "greet.world" || cfg.Runnables[0].Args[0] != "world" {
		t.Errorf("Runnables = %+v", cfg.Runnables)
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteConfig(t, dir, `isolation: "docker"`)
	t.Setenv("BRICKS_ISOLATION", "anonymous-pipes")
	t.Setenv("BRICKS_CONTAINER_IMAGE", "busybox:latest")
	t.Setenv("BRICKS_GRACE_PERIOD", "250ms")

	cfg, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Isolation != isolation.ModeAnonymousPipes {
		t.Errorf("Isolation = %q, want anonymous-pipes", cfg.Isolation)
	}
	if cfg.Container.Image != "busybox:latest" {
		t.Errorf("Container.Image = %q, want busybox:latest", cfg.Container.Image)
	}
	if cfg.GracePeriod != 250*time.Millisecond {
		t.Errorf("GracePeriod = %s, want 250ms", cfg.GracePeriod)
	}
}

func TestLoad_InvalidEnvironmentValue(t *testing.T) {
	t.Setenv("BRICKS_ISOLATION", "teleport")

	_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if !errors.Is(err, isolation.ErrInvalidMode) {
		t.Fatalf("Load() error = %v, want ErrInvalidMode", err)
	}
	var ae *issue.ActionableError
	if !errors.As(err, &ae) || ae.Operation != "validate configuration" {
		t.Errorf("expected an ActionableError for validation, got %T", err)
	}
}

func TestLoad_CustomPath(t *testing.T) {
	t.Parallel()

	path := testutil.WriteConfig(t, t.TempDir(), `isolation: "anonymous-pipes"`)

	cfg, resolved, err := LoadWithPath(context.Background(), LoadOptions{
		ConfigFilePath: path,
		// Ignored when a file path is given.
		ConfigDirPath: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("LoadWithPath() returned error: %v", err)
	}
	if resolved != path {
		t.Errorf("resolved path = %q, want %q", resolved, path)
	}
	if cfg.Isolation != isolation.ModeAnonymousPipes {
		t.Errorf("Isolation = %q", cfg.Isolation)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		content     string
		missing     bool
		wantInError string
		wantErr     error
	}{
		{name: "custom path not found", missing: true, wantInError: "config file not found"},
		{name: "invalid CUE syntax", content: `isolation: "docker`, wantInError: "load configuration"},
		{name: "unknown isolation", content: `isolation: "teleport"`, wantInError: "isolation"},
		{name: "unknown field", content: `engine: "podman"`, wantInError: "engine"},
		{name: "bad grace period", content: `grace_period: "soon"`, wantInError: "grace_period"},
		{name: "zero grace period", content: `grace_period: "0s"`, wantErr: ErrInvalidGracePeriod},
		{name: "bad windows isolation", content: `container: windows_isolation: "vm"`, wantInError: "windows_isolation"},
		{name: "runnable without script", content: `runnables: [{id: "x"}]`, wantInError: "script"},
		{name: "unparsable script", content: `runnables: [{id: "x", script: "echo ("}]`, wantErr: ErrInvalidRunnableEntry},
		{
			name:    "duplicate runnable",
			content: `runnables: [{id: "x", script: "true"}, {id: "x", script: "false"}]`,
			wantErr: runnable.ErrDuplicate,
		},
		{name: "runnable shadows builtin", content: `runnables: [{id: "demo.hello", script: "true"}]`, wantErr: runnable.ErrDuplicate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "missing.cue")
			if !tt.missing {
				path = testutil.WriteConfig(t, t.TempDir(), tt.content)
			}

			_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: path})
			if err == nil {
				t.Fatal("Load() should fail")
			}

			var ae *issue.ActionableError
			if !errors.As(err, &ae) {
				t.Fatalf("expected *issue.ActionableError, got %T: %v", err, err)
			}
			if ae.Issue != issue.ConfigLoadFailedId {
				t.Errorf("Issue = %d, want ConfigLoadFailedId", ae.Issue)
			}
			if !ae.HasSuggestions() {
				t.Error("expected suggestions")
			}
			if tt.wantInError != "" && !strings.Contains(err.Error(), tt.wantInError) {
				t.Errorf("error %q should contain %q", err, tt.wantInError)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewProvider().Load(ctx, LoadOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

func TestFilePath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	want := filepath.Join(dir, "config.cue")

	path, exists, err := FilePath(LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("FilePath() returned error: %v", err)
	}
	if path != want || exists {
		t.Errorf("FilePath() = %q, %v; want %q, false", path, exists, want)
	}

	testutil.WriteConfig(t, dir, `isolation: "in-process"`)
	if _, exists, _ := FilePath(LoadOptions{ConfigDirPath: dir}); !exists {
		t.Error("FilePath() should report the written file")
	}
}

func TestCreateDefaultConfig(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", AppName)

	path, created, err := CreateDefaultConfig(LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("CreateDefaultConfig() returned error: %v", err)
	}
	if !created {
		t.Error("expected the file to be created")
	}
	if path != filepath.Join(dir, "config.cue") {
		t.Errorf("path = %q", path)
	}

	// The generated file must load back to the defaults.
	cfg, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	def := DefaultConfig()
	if cfg.Isolation != def.Isolation || cfg.GracePeriod != def.GracePeriod || cfg.Container != def.Container {
		t.Errorf("loaded %+v, want %+v", cfg, def)
	}

	// A second call leaves the file alone.
	if err := os.WriteFile(path, []byte(`isolation: "docker"`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, created, err := CreateDefaultConfig(LoadOptions{ConfigDirPath: dir}); err != nil || created {
		t.Errorf("CreateDefaultConfig() on existing file = %v, %v", created, err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != `isolation: "docker"` {
		t.Errorf("existing file was overwritten: %q", data)
	}
}

func TestGenerateCUE_RoundTripsRunnables(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Isolation = isolation.ModeWindowsContainer
	cfg.Worker.Executable = "/opt/bricks/bin/bricks"
	cfg.Container.Host = "tcp://127.0.0.1:2375"
	cfg.Runnables = []RunnableEntry{
		{ID: "greet.world", Name: "Greet", Description: "Says \"hi\"", Script: "echo hi $1", Args: []string{"a b", "c"}},
		{ID: "noop", Script: "true"},
	}

	path := testutil.WriteConfig(t, t.TempDir(), GenerateCUE(cfg))
	loaded, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatalf("generated config does not load: %v\n%s", err, GenerateCUE(cfg))
	}

	if loaded.Isolation != cfg.Isolation || loaded.Worker != cfg.Worker || loaded.Container != cfg.Container {
		t.Errorf("loaded %+v, want %+v", loaded, cfg)
	}
	if len(loaded.Runnables) != 2 {
		t.Fatalf("loaded %d runnables, want 2", len(loaded.Runnables))
	}
	got := loaded.Runnables[0]
	if got.Description != cfg.Runnables[0].Description || len(got.Args) != 2 || got.Args[0] != "a b" {
		t.Errorf("runnable = %+v, want %+v", got, cfg.Runnables[0])
	}
}
