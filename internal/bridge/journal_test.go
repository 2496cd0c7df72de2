package bridge

import (
	"errors"
	"testing"
	"time"
)

func TestMemoryJournalRecordAndList(t *testing.T) {
	j := NewMemoryJournal()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	jobs := []PushJob{
		{ID: "job-1", ProjectID: "proj-1", State: JobCompleted, CreatedAt: base},
		{ID: "job-2", ProjectID: "proj-1", State: JobFailed, CreatedAt: base.Add(time.Minute)},
		{ID: "job-3", ProjectID: "proj-2", State: JobCompleted, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, job := range jobs {
		if err := j.Record(job); err != nil {
			t.Fatalf("Record(%s): %v", job.ID, err)
		}
	}

	all, err := j.ListRecent("", 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(all) != 3 || all[0].ID != "job-3" || all[2].ID != "job-1" {
		t.Fatalf("ListRecent order = %+v", all)
	}

	scoped, err := j.ListRecent("proj-1", 10)
	if err != nil {
		t.Fatalf("ListRecent scoped: %v", err)
	}
	if len(scoped) != 2 {
		t.Fatalf("scoped = %+v", scoped)
	}

	limited, err := j.ListRecent("", 1)
	if err != nil {
		t.Fatalf("ListRecent limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "job-3" {
		t.Fatalf("limited = %+v", limited)
	}
}

func TestMemoryJournalUpdatesInPlace(t *testing.T) {
	j := NewMemoryJournal()
	job := PushJob{ID: "job-1", ProjectID: "proj-1", State: JobReceived, CreatedAt: time.Now()}
	if err := j.Record(job); err != nil {
		t.Fatalf("Record: %v", err)
	}
	job.State = JobCompleted
	if err := j.Record(job); err != nil {
		t.Fatalf("Record update: %v", err)
	}
	listed, err := j.ListRecent("proj-1", 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(listed) != 1 || listed[0].State != JobCompleted {
		t.Fatalf("listed = %+v", listed)
	}
}

func TestMemoryJournalRejectsEmptyID(t *testing.T) {
	j := NewMemoryJournal()
	if err := j.Record(PushJob{ProjectID: "proj-1"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
}

func TestNewSQLJournalValidation(t *testing.T) {
	if _, err := NewSQLJournal("postgres", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty dsn: got %v, want ErrInvalidInput", err)
	}
	if _, err := NewSQLJournal("oracle", "dsn"); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("unknown driver: got %v, want ErrNotImplemented", err)
	}
	if _, err := NewSQLJournal("sqlite3", "bridge.db"); err != nil {
		t.Fatalf("sqlite3: %v", err)
	}
}

func TestBuildJournalFromDSN(t *testing.T) {
	if j, err := BuildJournalFromDSN(""); err != nil {
		t.Fatalf("empty dsn: %v", err)
	} else if _, ok := j.(*MemoryJournal); !ok {
		t.Fatalf("empty dsn = %T, want *MemoryJournal", j)
	}

	if j, err := BuildJournalFromDSN("memory://"); err != nil {
		t.Fatalf("memory: %v", err)
	} else if _, ok := j.(*MemoryJournal); !ok {
		t.Fatalf("memory = %T", j)
	}

	if j, err := BuildJournalFromDSN("postgres://user:pw@localhost/bridge"); err != nil {
		t.Fatalf("postgres: %v", err)
	} else if _, ok := j.(*SQLJournal); !ok {
		t.Fatalf("postgres = %T", j)
	}

	if j, err := BuildJournalFromDSN("sqlite:///var/lib/bridge.db"); err != nil {
		t.Fatalf("sqlite: %v", err)
	} else if _, ok := j.(*SQLJournal); !ok {
		t.Fatalf("sqlite = %T", j)
	}

	if _, err := BuildJournalFromDSN("sqlite://"); err == nil {
		t.Fatal("sqlite without path should fail")
	}
	if _, err := BuildJournalFromDSN("mysql://localhost/bridge"); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("mysql: got %v, want ErrNotImplemented", err)
	}
	if _, err := BuildJournalFromDSN("ftp://nope"); err == nil {
		t.Fatal("unknown scheme should fail")
	}
}

func TestSQLJournalRebind(t *testing.T) {
	pg := &SQLJournal{driver: "postgres"}
	if got := pg.rebind("SELECT $1, $2"); got != "SELECT $1, $2" {
		t.Fatalf("postgres rebind changed query: %q", got)
	}
	lite := &SQLJournal{driver: "sqlite3"}
	if got := lite.rebind("INSERT VALUES ($1, $2, $10)"); got != "INSERT VALUES (?, ?, ?)" {
		t.Fatalf("sqlite rebind = %q", got)
	}
	if got := lite.rebind("price $ sign"); got != "price $ sign" {
		t.Fatalf("bare dollar mangled: %q", got)
	}
}
