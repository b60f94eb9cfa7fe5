package safeoutput

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
)

func discard() *log.Logger { return log.New(io.Discard, "", 0) }

func TestCanonical(t *testing.T) {
	cases := map[string]Type{
		"create-issue":   TypeCreateIssue,
		"create_issue":   TypeCreateIssue,
		" Add-Comment ":  TypeAddComment,
		"ADD_LABELS":     TypeAddLabels,
		"close-discussion": TypeCloseDiscussion,
	}
	for in, want := range cases {
		if got := Canonical(in); got != want {
			t.Errorf("Canonical(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecordRoundTrip(t *testing.T) {
	rec, err := NewRecord("create-issue", map[string]any{
		"title":  "a bug",
		"body":   "details",
		"labels": []string{"bug"},
	})
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	if rec.Type != TypeCreateIssue {
		t.Fatalf("type = %q, want create_issue", rec.Type)
	}

	line, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Record
	if err := json.Unmarshal(line, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Type != TypeCreateIssue {
		t.Fatalf("round-trip type = %q", back.Type)
	}

	ci, err := Decode[CreateIssue](back)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ci.Title != "a bug" || len(ci.Labels) != 1 || ci.Labels[0] != "bug" {
		t.Errorf("decoded variant wrong: %+v", ci)
	}
}

func TestRecordMissingTypeIsKept(t *testing.T) {
	var rec Record
	if err := json.Unmarshal([]byte(`{"title":"x"}`), &rec); err != nil {
		t.Fatalf("typeless record must still decode: %v", err)
	}
	if rec.Type != "" {
		t.Fatalf("type = %q, want empty", rec.Type)
	}
	if Known(rec.Type) {
		t.Fatal("empty type must not be a known output type")
	}
}

func TestLoadKeepsValidItemsNextToTypeless(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mixed.json")
	payload := `{"items":[{"type":"noop","message":"ok"},{"message":"no type field"}]}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, ok := Load(path, discard())
	if !ok {
		t.Fatal("one typeless record must not reject the document")
	}
	if len(doc.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(doc.Items))
	}
	if doc.Items[0].Type != TypeNoOp {
		t.Fatalf("item 0 type = %q, want noop", doc.Items[0].Type)
	}
	if doc.Items[1].Type != "" {
		t.Fatalf("item 1 type = %q, want empty", doc.Items[1].Type)
	}
}

func TestLoadMissingPath(t *testing.T) {
	doc, ok := Load(filepath.Join(t.TempDir(), "absent.jsonl"), discard())
	if ok {
		t.Fatal("missing path must not report success")
	}
	if len(doc.Items) != 0 {
		t.Fatalf("expected no items, got %d", len(doc.Items))
	}
}

func TestLoadInvalidDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := Load(path, discard()); ok {
		t.Fatal("invalid document must not report success")
	}
}

func TestLoadEmptyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jsonl")
	if err := os.WriteFile(path, []byte("  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, ok := Load(path, discard())
	if !ok {
		t.Fatal("empty document is still a successful load")
	}
	if len(doc.Items) != 0 {
		t.Fatalf("expected empty items, got %d", len(doc.Items))
	}
}

func TestLoadDocumentObject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	payload := `{"items":[{"type":"noop","message":"hi"},{"type":"add-labels","labels":["bug"]}]}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, ok := Load(path, discard())
	if !ok {
		t.Fatal("load failed")
	}
	if len(doc.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(doc.Items))
	}
	if doc.Items[1].Type != TypeAddLabels {
		t.Errorf("dash spelling not canonicalized: %q", doc.Items[1].Type)
	}
}

func TestFileStoreAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "records.jsonl")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	ctx := context.Background()
	for i, name := range []string{"create_issue", "add-comment", "noop"} {
		rec, err := NewRecord(name, map[string]any{"n": i})
		if err != nil {
			t.Fatal(err)
		}
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := store.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("records = %d, want 3", len(got))
	}
	if got[1].Type != TypeAddComment {
		t.Errorf("order or canonicalization lost: %+v", got)
	}

	// The store file doubles as a loadable intent document.
	doc, ok := Load(path, discard())
	if !ok || len(doc.Items) != 3 {
		t.Fatalf("Load over store output: ok=%v items=%d", ok, len(doc.Items))
	}
}

func TestDocumentOfType(t *testing.T) {
	mk := func(name string) Record {
		r, err := NewRecord(name, nil)
		if err != nil {
			t.Fatal(err)
		}
		return r
	}
	doc := Document{Items: []Record{mk("noop"), mk("add_labels"), mk("noop")}}
	if got := doc.OfType(TypeNoOp); len(got) != 2 {
		t.Fatalf("OfType(noop) = %d, want 2", len(got))
	}
	if got := doc.OfType(TypeCreateIssue); len(got) != 0 {
		t.Fatalf("OfType(create_issue) = %d, want 0", len(got))
	}
}
