package bridge

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildJournalFromDSN selects a push-journal backend by DSN scheme:
// memory:// for the in-process journal, postgres:// for Postgres, and
// sqlite://path/to/file.db for SQLite. An empty DSN yields the in-memory
// journal.
func BuildJournalFromDSN(dsn string) (PushJournal, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return NewMemoryJournal(), nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	switch scheme {
	case "memory", "mem", "inmem":
		return NewMemoryJournal(), nil
	case "postgres", "postgresql":
		return NewSQLJournal("postgres", dsn)
	case "sqlite", "sqlite3":
		path := strings.TrimPrefix(dsn, scheme+"://")
		if path == "" {
			return nil, fmt.Errorf("sqlite journal requires a file path")
		}
		return NewSQLJournal("sqlite3", path)
	case "mysql":
		return nil, fmt.Errorf("%w: journal backend %s", ErrNotImplemented, scheme)
	default:
		return nil, fmt.Errorf("unsupported journal scheme: %s", scheme)
	}
}
