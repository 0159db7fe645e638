// Package logbook keeps the run journal: one timestamped line per dispatch
// event, appended to .stubflow/logs/stubflow.log so past runs can be read
// back without the structured console log.
package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a journal entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Entry is one parsed journal line.
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
}

// Logbook persists dispatch progress to a plain text file.
type Logbook struct {
	path  string
	mu    sync.Mutex
	clock func() time.Time
}

// New creates a logbook that writes to the provided path.
func New(path string) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Logbook{path: path, clock: time.Now}, nil
}

// WithClock swaps the timestamp source (primarily for tests).
func (l *Logbook) WithClock(clock func() time.Time) *Logbook {
	if l != nil && clock != nil {
		l.clock = clock
	}
	return l
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes a single entry. Multi-line messages are folded onto one
// line so every entry stays parseable.
func (l *Logbook) Append(level Level, message string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	message = strings.Join(strings.Fields(message), " ")
	line := fmt.Sprintf("%s %-5s %s\n",
		l.clock().UTC().Format(time.RFC3339),
		string(level),
		message,
	)
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.WriteString(line)
}

// Tail returns up to maxLines of the most recent entries plus the total
// number of lines in the journal.
func (l *Logbook) Tail(maxLines int) ([]string, int) {
	if l == nil || maxLines <= 0 {
		return nil, 0
	}
	lines := l.readLines()
	total := len(lines)
	if total > maxLines {
		lines = lines[total-maxLines:]
	}
	return lines, total
}

// Entries parses up to maxLines of the most recent entries and returns the
// total line count like Tail. Lines that do not parse are skipped.
func (l *Logbook) Entries(maxLines int) ([]Entry, int) {
	lines, total := l.Tail(maxLines)
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		if entry, ok := ParseLine(line); ok {
			entries = append(entries, entry)
		}
	}
	return entries, total
}

// ParseLine decodes a line written by Append.
func ParseLine(line string) (Entry, bool) {
	stamp, rest, ok := strings.Cut(line, " ")
	if !ok {
		return Entry{}, false
	}
	ts, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return Entry{}, false
	}
	rest = strings.TrimLeft(rest, " ")
	level, message, _ := strings.Cut(rest, " ")
	switch Level(level) {
	case LevelInfo, LevelWarn, LevelError:
	default:
		return Entry{}, false
	}
	return Entry{Time: ts, Level: Level(level), Message: strings.TrimSpace(message)}, true
}

func (l *Logbook) readLines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.Open(l.path)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

// Info appends an informational entry.
func (l *Logbook) Info(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logbook) Warn(format string, args ...any) {
	l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logbook) Error(format string, args ...any) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}
