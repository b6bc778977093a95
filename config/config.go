package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. EMLX_DEST.
const EnvPrefix = "EMLX"

// Config captures all options required to run an extraction.
type Config struct {
	Source        string
	Dest          string
	Extensions    []string
	IncludeMbox   bool
	SkipProcessed bool
	StateDir      string
	DryRun        bool
	LogLevel      string
	LogDir        string
	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
}

// RegisterFlags attaches all CLI flags to the provided command.
func RegisterFlags(cmd *cobra.Command) error {
	defaultStateDir, err := defaultStateDir()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	flags.StringP("source", "s", "", "Directory tree containing the message files")
	flags.StringP("dest", "d", "", "Directory receiving one folder per extracted message")
	flags.StringSlice("ext", []string{"eml"}, "Message file extensions to pick up")
	flags.Bool("mbox", false, "Also extract the messages stored in .mbox archives")
	flags.Bool("skip-processed", false, "Skip messages extracted by an earlier run")
	flags.String("state-dir", defaultStateDir, "Directory for the resume state file")
	flags.Bool("dry-run", false, "Parse and name everything without writing files")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Also write logs to a timestamped file in this directory")
	flags.String("config", "", "Optional YAML configuration file")
	flags.StringArray("include-header", nil, "Regex allow-list applied to message headers (mutually exclusive with exclude flags)")
	flags.StringArray("include-body", nil, "Regex allow-list applied to message bodies (mutually exclusive with exclude flags)")
	flags.StringArray("exclude-header", nil, "Regex block-list applied to message headers (mutually exclusive with include flags)")
	flags.StringArray("exclude-body", nil, "Regex block-list applied to message bodies (mutually exclusive with include flags)")

	return nil
}

// LoadConfig resolves every option with the precedence flag, environment,
// config file, default.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return Config{}, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	stateDir := v.GetString("state-dir")
	if stateDir == "" {
		var err error
		stateDir, err = defaultStateDir()
		if err != nil {
			return Config{}, err
		}
	}

	logLevel := strings.ToLower(v.GetString("log-level"))
	if logLevel == "warning" {
		logLevel = "warn"
	}

	includeHeader, err := patternList(v, flags, "include-header")
	if err != nil {
		return Config{}, err
	}
	includeBody, err := patternList(v, flags, "include-body")
	if err != nil {
		return Config{}, err
	}
	excludeHeader, err := patternList(v, flags, "exclude-header")
	if err != nil {
		return Config{}, err
	}
	excludeBody, err := patternList(v, flags, "exclude-body")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Source:        strings.TrimSpace(v.GetString("source")),
		Dest:          strings.TrimSpace(v.GetString("dest")),
		Extensions:    NormalizeExtensions(splitList(v.GetStringSlice("ext"))),
		IncludeMbox:   v.GetBool("mbox"),
		SkipProcessed: v.GetBool("skip-processed"),
		StateDir:      filepath.Clean(stateDir),
		DryRun:        v.GetBool("dry-run"),
		LogLevel:      logLevel,
		LogDir:        v.GetString("log-dir"),
		IncludeHeader: includeHeader,
		IncludeBody:   includeBody,
		ExcludeHeader: excludeHeader,
		ExcludeBody:   excludeBody,
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// NormalizeExtensions lowercases extensions, adds the leading dot and drops
// blanks and duplicates.
func NormalizeExtensions(exts []string) []string {
	seen := make(map[string]struct{}, len(exts))
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" || ext == "." {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	return out
}

func validateConfig(cfg Config) error {
	if cfg.Source == "" {
		return fmt.Errorf("--source is required")
	}
	if cfg.Dest == "" {
		return fmt.Errorf("--dest is required")
	}
	if len(cfg.Extensions) == 0 {
		return fmt.Errorf("--ext must name at least one extension")
	}
	includeActive := len(cfg.IncludeHeader) > 0 || len(cfg.IncludeBody) > 0
	excludeActive := len(cfg.ExcludeHeader) > 0 || len(cfg.ExcludeBody) > 0
	if includeActive && excludeActive {
		return fmt.Errorf("include and exclude flags are mutually exclusive")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}

// patternList reads a regex list. Patterns may contain commas and spaces, so
// the flag value is taken verbatim and an environment value counts as one
// pattern.
func patternList(v *viper.Viper, flags *pflag.FlagSet, key string) ([]string, error) {
	if flags.Changed(key) {
		return flags.GetStringArray(key)
	}

	switch value := v.Get(key).(type) {
	case nil:
		return nil, nil
	case string:
		if value = strings.TrimSpace(value); value == "" || value == "[]" {
			return nil, nil
		}
		return []string{value}, nil
	case []string:
		return value, nil
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			out = append(out, fmt.Sprint(item))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s: unsupported value %v", key, value)
	}
}

// splitList also splits comma separated entries, which is how list values
// arrive from the environment.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

func defaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".eml-extract", "state"), nil
}
