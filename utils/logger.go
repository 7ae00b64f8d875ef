package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Logger provides leveled logging throughout the application. Console lines
// carry an ANSI-coloured level tag; the optional file sink gets plain text.
type Logger struct {
	info  *log.Logger
	warn  *log.Logger
	err   *log.Logger
	debug *log.Logger

	file    *log.Logger
	closer  io.Closer
	debugOn bool
	tag     string
}

// NewLogger creates a new Logger writing to stdout/stderr.
func NewLogger() *Logger {
	return newLogger(os.Stdout, os.Stderr)
}

// NewQuietLogger discards everything. Used by tests.
func NewQuietLogger() *Logger {
	return newLogger(io.Discard, io.Discard)
}

func newLogger(out, errOut io.Writer) *Logger {
	flags := 0
	return &Logger{
		info:    log.New(out, "", flags),
		warn:    log.New(out, "", flags),
		err:     log.New(errOut, "", flags),
		debug:   log.New(out, "", flags),
		debugOn: true,
	}
}

// AttachFile mirrors every line to path, creating parent directories.
func (l *Logger) AttachFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("logger: create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("logger: open %q: %w", path, err)
	}
	l.file = log.New(f, "", 0)
	l.closer = f
	return nil
}

// SetDebug toggles Debug output.
func (l *Logger) SetDebug(on bool) {
	l.debugOn = on
}

// With returns a logger sharing the same sinks whose lines are tagged,
// typically with the run id.
func (l *Logger) With(tag string) *Logger {
	cp := *l
	cp.tag = tag
	cp.closer = nil
	return &cp
}

// Close releases the file sink, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func (l *Logger) timestamp() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

func (l *Logger) emit(out *log.Logger, colour, level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if l.tag != "" {
		msg = "(" + l.tag + ") " + msg
	}
	ts := l.timestamp()
	out.Printf("[%s] \033[%sm%-5s\033[0m %s\n", ts, colour, level, msg)
	if l.file != nil {
		l.file.Printf("[%s] %-5s %s\n", ts, level, msg)
	}
}

func (l *Logger) Info(format string, args ...any) {
	l.emit(l.info, "32", "INFO", format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.emit(l.warn, "33", "WARN", format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.emit(l.err, "31", "ERROR", format, args...)
}

func (l *Logger) Debug(format string, args ...any) {
	if !l.debugOn {
		return
	}
	l.emit(l.debug, "36", "DEBUG", format, args...)
}
