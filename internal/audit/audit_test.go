package audit

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestRecordInsertsEntry(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO audit_entries").
		WithArgs("run-1", 0, "create_issue", "ok", "", "https://github.com/octo/repo/issues/1001", at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	sink := NewPostgresSink(db)
	err = sink.Record(context.Background(), Entry{
		RunID:      "run-1",
		Index:      0,
		OutputType: "create_issue",
		Outcome:    "ok",
		URL:        "https://github.com/octo/repo/issues/1001",
		At:         at,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRunEntriesRoundTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"run_id", "item_index", "output_type", "outcome", "detail", "url", "recorded_at"}).
		AddRow("run-1", 0, "create_issue", "ok", "", "", at).
		AddRow("run-1", 1, "add_comment", "error", "simulated", "", at)
	mock.ExpectQuery("SELECT .* FROM audit_entries WHERE run_id").
		WithArgs("run-1").
		WillReturnRows(rows)

	sink := NewPostgresSink(db)
	entries, err := sink.RunEntries(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("run entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[1].Outcome != "error" || entries[1].Detail != "simulated" {
		t.Fatalf("second entry = %+v", entries[1])
	}
}
