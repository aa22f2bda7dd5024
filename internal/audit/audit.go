// Package audit records one structured log entry per CLI invocation. The
// entry names the command and its config sources, and lists every env var a
// config file can set. Credentials are logged only as "set" or "unset".
package audit

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/54b3r/docqa-go/internal/config"
)

// Invocation describes one CLI command run.
type Invocation struct {
	// Command is the cobra command name.
	Command string
	// ConfigPath is the YAML file that was loaded, or empty.
	ConfigPath string
	// EnvFiles are the --env-file paths that were loaded.
	EnvFiles []string
	// Flags holds the flags the user set explicitly, by name.
	Flags map[string]string
}

// secretWords mark a variable or flag name as holding a credential when they
// appear as a whole word of it.
var secretWords = []string{"KEY", "SECRET", "TOKEN", "PASSWORD"}

// IsSecret reports whether name looks like it holds a credential. Names are
// split into words on underscores and hyphens, so MODEL_MAX_TOKENS is not a
// secret but GITHUB_TOKEN is.
func IsSecret(name string) bool {
	words := strings.FieldsFunc(strings.ToUpper(name), func(r rune) bool {
		return r == '_' || r == '-'
	})
	return slices.ContainsFunc(words, func(w string) bool {
		return slices.Contains(secretWords, w)
	})
}

// Sanitise returns the loggable form of value: "set"/"unset" for secrets,
// the value with any URL credentials stripped otherwise.
func Sanitise(name, value string) string {
	switch {
	case value == "":
		return "unset"
	case IsSecret(name):
		return "set"
	default:
		return stripUserinfo(value)
	}
}

// LogCommandStart emits the audit entry for inv.
func LogCommandStart(ctx context.Context, log *slog.Logger, inv Invocation) {
	keys := config.EnvKeys()
	env := make([]any, 0, len(keys))
	for _, k := range keys {
		env = append(env, slog.String(k, Sanitise(k, os.Getenv(k))))
	}

	flagNames := make([]string, 0, len(inv.Flags))
	for name := range inv.Flags {
		flagNames = append(flagNames, name)
	}
	slices.Sort(flagNames)
	flags := make([]any, 0, len(flagNames))
	for _, name := range flagNames {
		flags = append(flags, slog.String(name, Sanitise(name, inv.Flags[name])))
	}

	envFiles := make([]string, 0, len(inv.EnvFiles))
	for _, f := range inv.EnvFiles {
		envFiles = append(envFiles, homeRelative(f))
	}

	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start",
		slog.String("command", inv.Command),
		slog.String("config_file", configLabel(inv.ConfigPath)),
		slog.Any("env_files", envFiles),
		slog.Group("flags", flags...),
		slog.Group("env", env...),
	)
}

// stripUserinfo removes user:password from URL-shaped values.
func stripUserinfo(v string) string {
	u, err := url.Parse(v)
	if err != nil || u.User == nil || u.Host == "" {
		return v
	}
	u.User = url.User("redacted")
	return u.String()
}

// configLabel returns the home-relative config path, or "none".
func configLabel(p string) string {
	if p == "" {
		return "none"
	}
	return homeRelative(p)
}

// homeRelative replaces the home directory prefix of p with "~".
func homeRelative(p string) string {
	home, err := os.UserHomeDir()
	if err == nil && home != "" && strings.HasPrefix(p, home+string(os.PathSeparator)) {
		return "~" + p[len(home):]
	}
	return p
}
