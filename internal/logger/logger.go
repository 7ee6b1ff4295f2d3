package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Log level and format names accepted in configuration.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"

	FormatText = "text"
	FormatJSON = "json"
)

// Default rotation parameters, following lumberjack semantics.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// SlogConfig configures the watchdog's own structured logging.
// When Path is set the log goes to a rotated file instead of stdout,
// and color is disabled regardless of the Color flag.
type SlogConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	Format     string `json:"format" mapstructure:"format"`
	Color      bool   `json:"color" mapstructure:"color"`
	TimeStamps bool   `json:"timestamps" mapstructure:"timestamps"`
	Source     bool   `json:"source" mapstructure:"source"`
	Path       string `json:"path" mapstructure:"path"`
}

// FileConfig describes rotated file capture for a service's combined
// stdout/stderr stream. If Path is empty and Dir is set, the capture file is
// Dir/<name>.log.
type FileConfig struct {
	Dir        string `json:"dir" mapstructure:"dir"`
	Path       string `json:"path" mapstructure:"path"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// Config bundles both logging concerns: the watchdog's structured log and
// the default capture settings for supervised service output.
type Config struct {
	Slog SlogConfig `json:"slog" mapstructure:"slog"`
	File FileConfig `json:"file" mapstructure:"file"`
}

// NewSlogger builds a *slog.Logger from the Slog section.
func (c Config) NewSlogger() *slog.Logger { return c.Slog.NewSlogger() }

// NewSlogger builds a *slog.Logger for the configured level, format and
// destination.
func (c SlogConfig) NewSlogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.slogLevel(), AddSource: c.Source}
	if !c.TimeStamps {
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		}
	}
	var w io.Writer = os.Stdout
	if c.Path != "" {
		w = &lj.Logger{
			Filename:   c.Path,
			MaxSize:    DefaultMaxSizeMB,
			MaxBackups: DefaultMaxBackups,
			MaxAge:     DefaultMaxAgeDays,
		}
	}
	switch {
	case strings.EqualFold(c.Format, FormatJSON):
		return slog.New(slog.NewJSONHandler(w, opts))
	case c.Color && c.Path == "":
		return slog.New(NewColorTextHandler(w, opts))
	default:
		return slog.New(slog.NewTextHandler(w, opts))
	}
}

func (c SlogConfig) slogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Writer returns the rotated capture writer for the named service, or nil
// when no capture destination is configured.
func (c FileConfig) Writer(name string) io.WriteCloser {
	path := c.Path
	if path == "" && c.Dir != "" {
		path = filepath.Join(c.Dir, fmt.Sprintf("%s.log", name))
	}
	if path == "" {
		return nil
	}
	_ = os.MkdirAll(filepath.Dir(path), 0o750)
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

// Merged returns c overridden field-wise by the non-zero fields of o.
// Used to layer per-service capture settings over watchdog-wide defaults.
func (c FileConfig) Merged(o FileConfig) FileConfig {
	out := c
	if o.Dir != "" {
		out.Dir = o.Dir
	}
	if o.Path != "" {
		out.Path = o.Path
	}
	if o.MaxSizeMB != 0 {
		out.MaxSizeMB = o.MaxSizeMB
	}
	if o.MaxBackups != 0 {
		out.MaxBackups = o.MaxBackups
	}
	if o.MaxAgeDays != 0 {
		out.MaxAgeDays = o.MaxAgeDays
	}
	if o.Compress {
		out.Compress = true
	}
	return out
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
