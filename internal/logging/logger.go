package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options describes logger construction parameters.
//
// Each entry in OutputPaths and ErrorOutputPaths is a sink: "stdout",
// "stderr", or a file path. Error sinks only receive WARN and above. A sink
// named in both lists is opened once, as a regular output.
type Options struct {
	Level string
	// Format applies to stdout and stderr sinks.
	Format string
	// FileFormat applies to file sinks. Empty means Format.
	FileFormat       string
	OutputPaths      []string
	ErrorOutputPaths []string
	// Development adds the caller to every record.
	Development bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	handler, err := NewHandler(opts)
	if err != nil {
		return nil, err
	}
	return slog.New(handler), nil
}

// NewHandler builds one handler per sink and fans records out to all of them.
func NewHandler(opts Options) (slog.Handler, error) {
	streamFormat, err := normalizeFormat(opts.Format, FormatConsole)
	if err != nil {
		return nil, err
	}
	fileFormat, err := normalizeFormat(opts.FileFormat, streamFormat)
	if err != nil {
		return nil, err
	}

	level := new(slog.LevelVar)
	level.Set(ParseLevel(opts.Level))
	addSource := opts.Development || level.Level() <= slog.LevelDebug

	outputs := opts.OutputPaths
	if len(outputs) == 0 && len(opts.ErrorOutputPaths) == 0 {
		outputs = []string{"stdout"}
	}

	opened := make(map[string]struct{})
	var handlers []slog.Handler
	attach := func(paths []string, warnOnly bool) error {
		for _, raw := range paths {
			name := strings.TrimSpace(raw)
			if name == "" {
				continue
			}
			if _, dup := opened[name]; dup {
				continue
			}
			opened[name] = struct{}{}

			w, isFile, err := openSink(name)
			if err != nil {
				return err
			}
			format := streamFormat
			if isFile {
				format = fileFormat
			}
			var h slog.Handler
			if format == FormatJSON {
				h = newJSONHandler(w, level, addSource)
			} else {
				h = newConsoleHandler(w, level, addSource)
			}
			if warnOnly {
				h = minLevel{Handler: h, floor: slog.LevelWarn}
			}
			handlers = append(handlers, h)
		}
		return nil
	}
	if err := attach(outputs, false); err != nil {
		return nil, err
	}
	if err := attach(opts.ErrorOutputPaths, true); err != nil {
		return nil, err
	}
	return newFanout(handlers...), nil
}

// ParseLevel maps a config level name to a slog level. Unknown names mean
// info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func normalizeFormat(value, fallback string) (string, error) {
	format := strings.ToLower(strings.TrimSpace(value))
	switch format {
	case "":
		return fallback, nil
	case FormatConsole, FormatJSON:
		return format, nil
	default:
		return "", fmt.Errorf("log format: unsupported value %q", value)
	}
}

func openSink(name string) (io.Writer, bool, error) {
	switch name {
	case "stdout":
		return os.Stdout, false, nil
	case "stderr":
		return os.Stderr, false, nil
	}
	if dir := filepath.Dir(name); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, true, fmt.Errorf("create log dir %s: %w", dir, err)
		}
	}
	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, true, fmt.Errorf("open log file %s: %w", name, err)
	}
	return file, true, nil
}
