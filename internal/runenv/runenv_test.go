package runenv

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOutputsKeyValueAndHeredoc(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outputs")
	o := NewOutputs(path)
	if err := o.Set("issue_url", "https://github.com/octo/repo/issues/7"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := o.Set("report", "line one\nline two"); err != nil {
		t.Fatalf("set multiline: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got := string(data)
	if !strings.Contains(got, "issue_url=https://github.com/octo/repo/issues/7\n") {
		t.Fatalf("simple pair missing:\n%s", got)
	}
	if !strings.Contains(got, "report<<WARDEN_EOF\nline one\nline two\nWARDEN_EOF\n") {
		t.Fatalf("heredoc missing:\n%s", got)
	}
}

func TestNilOutputsDropsWrites(t *testing.T) {
	var o *Outputs
	if err := o.Set("k", "v"); err != nil {
		t.Fatalf("nil outputs returned error: %v", err)
	}
	if NewOutputs("  ") != nil {
		t.Fatal("blank path should produce nil Outputs")
	}
}

func TestSummaryFlush(t *testing.T) {
	s := NewSummary()
	s.Add("## Results")
	s.Add("created issue #%d", 42)
	path := filepath.Join(t.TempDir(), "summary.md")
	if err := s.Flush(path, log.New(io.Discard, "", 0)); err != nil {
		t.Fatalf("flush: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "created issue #42") {
		t.Fatalf("summary content missing:\n%s", data)
	}
}

func TestEmptySummaryWritesNothing(t *testing.T) {
	s := NewSummary()
	path := filepath.Join(t.TempDir(), "summary.md")
	if err := s.Flush(path, log.New(io.Discard, "", 0)); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("empty summary created a file")
	}
}
