package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// Level controls how much the logger emits.
type Level int

const (
	LevelError Level = iota
	LevelInfo
	LevelDebug
)

// ParseLevel converts a --log-level flag value to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "error":
		return LevelError, nil
	case "info", "":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %q", s)
	}
}

// Logger is the logging surface shared by planner, scheduler and verifier.
type Logger interface {
	Upload(localPath, remotePath string)
	Skip(path, reason string)
	Retry(path string, attempt int, err error)
	Error(operation, path string, err error)
	Info(format string, args ...interface{})
	Debug(format string, args ...interface{})
}

// SyncLogger writes progress lines to stdout and errors to stderr.
type SyncLogger struct {
	Level    Level
	IsDryRun bool
	IsQuiet  bool

	mu sync.Mutex
}

func (l *SyncLogger) Upload(localPath, remotePath string) {
	if l.IsQuiet {
		return
	}
	prefix := "upload"
	if l.IsDryRun {
		prefix = "(dryrun) upload"
	}
	l.printf("%s: %s to %s\n", prefix, localPath, remotePath)
}

func (l *SyncLogger) Skip(path, reason string) {
	if l.IsQuiet || l.Level < LevelDebug {
		return
	}
	l.printf("skip: %s (%s)\n", path, reason)
}

func (l *SyncLogger) Retry(path string, attempt int, err error) {
	if l.IsQuiet {
		return
	}
	l.printf("retry: %s (attempt %d): %v\n", path, attempt, err)
}

func (l *SyncLogger) Error(operation, path string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(os.Stderr, "error: %s %s: %v\n", operation, path, err)
}

func (l *SyncLogger) Info(format string, args ...interface{}) {
	if l.IsQuiet || l.Level < LevelInfo {
		return
	}
	l.printf(format+"\n", args...)
}

func (l *SyncLogger) Debug(format string, args ...interface{}) {
	if l.IsQuiet || l.Level < LevelDebug {
		return
	}
	l.printf("debug: "+format+"\n", args...)
}

func (l *SyncLogger) printf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Printf(format, args...)
}

// NullLogger discards everything. Used in tests.
type NullLogger struct{}

func (NullLogger) Upload(localPath, remotePath string) {}

func (NullLogger) Skip(path, reason string) {}

func (NullLogger) Retry(path string, attempt int, err error) {}

func (NullLogger) Error(operation, path string, err error) {}

func (NullLogger) Info(format string, args ...interface{}) {}

func (NullLogger) Debug(format string, args ...interface{}) {}
