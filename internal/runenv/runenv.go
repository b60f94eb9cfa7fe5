// Package runenv holds the small pieces of run plumbing shared by every
// command: component loggers, the named-outputs file downstream automation
// steps read, and the human-facing run summary.
package runenv

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// Logger returns the standard component logger. All warden logging goes to
// stderr so stdout stays clean for the JSON-RPC channel.
func Logger(component string) *log.Logger {
	return log.New(os.Stderr, fmt.Sprintf("[WARDEN:%s] ", strings.ToUpper(component)), log.LstdFlags)
}

// Outputs appends key/value pairs to a named-outputs file. Multi-line values
// use the heredoc form so consumers can parse them unambiguously.
type Outputs struct {
	mu   sync.Mutex
	path string
}

// NewOutputs returns an Outputs writer, or nil when no path is configured.
// A nil *Outputs accepts writes and drops them.
func NewOutputs(path string) *Outputs {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	return &Outputs{path: path}
}

// Set appends one output pair.
func (o *Outputs) Set(key, value string) error {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	f, err := os.OpenFile(o.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening outputs file: %w", err)
	}
	defer f.Close()
	if strings.Contains(value, "\n") {
		_, err = fmt.Fprintf(f, "%s<<WARDEN_EOF\n%s\nWARDEN_EOF\n", key, value)
	} else {
		_, err = fmt.Fprintf(f, "%s=%s\n", key, value)
	}
	return err
}

// Summary accumulates the markdown run report.
type Summary struct {
	mu       sync.Mutex
	sections []string
}

// NewSummary returns an empty summary.
func NewSummary() *Summary { return &Summary{} }

// Add appends one markdown section.
func (s *Summary) Add(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sections = append(s.sections, fmt.Sprintf(format, args...))
}

// String renders the accumulated report.
func (s *Summary) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.sections, "\n\n")
}

// Flush writes the report to path, or to stderr via logger when no path is
// configured. An empty summary writes nothing.
func (s *Summary) Flush(path string, logger *log.Logger) error {
	report := s.String()
	if strings.TrimSpace(report) == "" {
		return nil
	}
	if strings.TrimSpace(path) == "" {
		logger.Printf("run summary:\n%s", report)
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening summary file: %w", err)
	}
	defer f.Close()
	_, err = f.WriteString(report + "\n")
	return err
}
