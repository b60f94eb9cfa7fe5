package main

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/wardenhq/warden/config"
)

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestLoadDocumentMissingInputIsNoOp(t *testing.T) {
	doc, err := loadDocument(context.Background(), &config.Config{},
		filepath.Join(t.TempDir(), "absent.jsonl"), testLogger())
	if err != nil {
		t.Fatalf("missing input file must be a no-op, got %v", err)
	}
	if len(doc.Items) != 0 {
		t.Fatalf("expected empty document, got %d items", len(doc.Items))
	}
}

func TestLoadDocumentUnreadableInputFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadDocument(context.Background(), &config.Config{}, path, testLogger()); err == nil {
		t.Fatal("unparsable input must fail the run")
	}
}

func TestLoadDocumentReadsInputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intents.jsonl")
	if err := os.WriteFile(path, []byte(`{"type":"noop","message":"hi"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, err := loadDocument(context.Background(), &config.Config{}, path, testLogger())
	if err != nil {
		t.Fatalf("loadDocument: %v", err)
	}
	if len(doc.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(doc.Items))
	}
}
