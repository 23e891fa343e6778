// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/invowk/bricks/internal/issue"
	"github.com/invowk/bricks/pkg/cueutil"

	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "bricks"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes the environment variables that override config keys.
	EnvPrefix = "BRICKS"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the bricks configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, AppName), nil
}

// FilePath returns the config file that Load would read for opts, and
// whether it exists. Without an existing file in the config directory the
// current directory is tried.
func FilePath(opts LoadOptions) (string, bool, error) {
	if opts.ConfigFilePath != "" {
		return opts.ConfigFilePath, fileExists(opts.ConfigFilePath), nil
	}

	cuePath, err := opts.defaultFile()
	if err != nil {
		return "", false, err
	}
	if fileExists(cuePath) {
		return cuePath, true, nil
	}

	localCuePath := ConfigFileName + "." + ConfigFileExt
	if fileExists(localCuePath) {
		return localCuePath, true, nil
	}
	return cuePath, false, nil
}

// loadWithOptions performs option-driven config loading. It returns the
// loaded configuration and the file it was read from, empty when only
// defaults and environment were used.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, exists, err := FilePath(opts)
	if err != nil {
		return nil, "", err
	}

	resolvedPath := ""
	switch {
	case exists:
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithSuggestion("See 'bricks config --help' for configuration options").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(err).
				BuildError()
		}
		resolvedPath = path
	case opts.ConfigFilePath != "":
		// If a custom config file path is set via --config flag, it must exist.
		return nil, "", issue.NewErrorContext().
			WithOperation("load configuration").
			WithResource(opts.ConfigFilePath).
			WithSuggestion("Verify the file path is correct").
			WithSuggestion("Use 'bricks config init' to write a default configuration").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
			BuildError()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	if valid, errs := cfg.IsValid(); !valid {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Run 'bricks mode' to list the isolation modes").
			WithSuggestion("Check BRICKS_* environment variables, they override the file").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(errs[0]).
			BuildError()
	}

	// Validate runnables constraints that CUE cannot express.
	if err := validateRunnables(cfg.Runnables); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Ensure each runnable id is unique and does not shadow a builtin").
			WithSuggestion("Run 'bricks list' to see the builtin runnables").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(err).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()
	v.SetDefault("isolation", string(defaults.Isolation))
	v.SetDefault("grace_period", defaults.GracePeriod)
	v.SetDefault("worker.executable", defaults.Worker.Executable)
	v.SetDefault("container.image", defaults.Container.Image)
	v.SetDefault("container.windows_image", defaults.Container.WindowsImage)
	v.SetDefault("container.windows_isolation", string(defaults.Container.WindowsIsolation))
	v.SetDefault("container.host", defaults.Container.Host)
	v.SetDefault("container.worker_path", defaults.Container.WorkerPath)
	v.SetDefault("container.windows_worker_path", defaults.Container.WindowsWorkerPath)
	v.SetDefault("container.mount_executable", defaults.Container.MountExecutable)
	v.SetDefault("runnables", defaults.Runnables)
	v.SetDefault("ui.verbose", defaults.UI.Verbose)
}

// compiledSchema compiles the embedded schema on first use.
var compiledSchema = sync.OnceValues(func() (*cueutil.Schema, error) {
	return cueutil.CompileSchema([]byte(configSchema), "#Config")
})

// loadCUEIntoViper validates a CUE file against the #Config schema and merges
// its contents into Viper over the defaults. Every field is optional, so the
// document is not required to be concrete.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	schema, err := compiledSchema()
	if err != nil {
		return err
	}
	configMap, err := schema.DecodeMap(data, cueutil.WithFilename(path), cueutil.WithConcrete(false))
	if err != nil {
		return err
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

// validateRunnables checks that runnable ids are unique and that none
// shadows a builtin.
func validateRunnables(entries []RunnableEntry) error {
	cfg := Config{Runnables: entries}
	if _, err := cfg.Catalog(); err != nil {
		return fmt.Errorf("runnables: %w", err)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes the default configuration to the file Load
// would read for opts, unless that file already exists. It returns the path
// and whether a file was written.
func CreateDefaultConfig(opts LoadOptions) (string, bool, error) {
	path := opts.ConfigFilePath
	if path == "" {
		var err error
		if path, err = opts.defaultFile(); err != nil {
			return "", false, err
		}
	}

	if fileExists(path) {
		return path, false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", false, fmt.Errorf("failed to write config file: %w", err)
	}

	return path, true, nil
}

// GenerateCUE generates a CUE representation of the configuration
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// bricks configuration file\n")
	sb.WriteString("// Every field is optional; BRICKS_* environment variables override them.\n\n")

	fmt.Fprintf(&sb, "isolation: %q\n", cfg.Isolation)
	fmt.Fprintf(&sb, "grace_period: %q\n", cfg.GracePeriod.String())

	if cfg.Worker.Executable != "" {
		sb.WriteString("\nworker: {\n")
		fmt.Fprintf(&sb, "\texecutable: %q\n", cfg.Worker.Executable)
		sb.WriteString("}\n")
	}

	sb.WriteString("\ncontainer: {\n")
	fmt.Fprintf(&sb, "\timage: %q\n", cfg.Container.Image)
	fmt.Fprintf(&sb, "\twindows_image: %q\n", cfg.Container.WindowsImage)
	fmt.Fprintf(&sb, "\twindows_isolation: %q\n", cfg.Container.WindowsIsolation)
	if cfg.Container.Host != "" {
		fmt.Fprintf(&sb, "\thost: %q\n", cfg.Container.Host)
	}
	fmt.Fprintf(&sb, "\tworker_path: %q\n", cfg.Container.WorkerPath)
	fmt.Fprintf(&sb, "\twindows_worker_path: %q\n", cfg.Container.WindowsWorkerPath)
	fmt.Fprintf(&sb, "\tmount_executable: %v\n", cfg.Container.MountExecutable)
	sb.WriteString("}\n")

	if len(cfg.Runnables) > 0 {
		sb.WriteString("\nrunnables: [\n")
		for _, entry := range cfg.Runnables {
			sb.WriteString("\t{\n")
			fmt.Fprintf(&sb, "\t\tid: %q\n", entry.ID)
			if entry.Name != "" {
				fmt.Fprintf(&sb, "\t\tname: %q\n", entry.Name)
			}
			if entry.Description != "" {
				fmt.Fprintf(&sb, "\t\tdescription: %q\n", entry.Description)
			}
			fmt.Fprintf(&sb, "\t\tscript: %q\n", entry.Script)
			if len(entry.Args) > 0 {
				quoted := make([]string, len(entry.Args))
				for i, arg := range entry.Args {
					quoted[i] = fmt.Sprintf("%q", arg)
				}
				fmt.Fprintf(&sb, "\t\targs: [%s]\n", strings.Join(quoted, ", "))
			}
			sb.WriteString("\t},\n")
		}
		sb.WriteString("]\n")
	} else {
		sb.WriteString("\n// runnables: [{id: \"greet.world\", script: \"echo hello $1\", args: [\"world\"]}]\n")
	}

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tverbose: %v\n", cfg.UI.Verbose)
	sb.WriteString("}\n")

	return sb.String()
}
