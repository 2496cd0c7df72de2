package bridge

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	sqlJournalTableName        = "gitbridge_push_jobs"
	sqlJournalOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// SQLJournal persists push job records in Postgres or SQLite. The schema is
// created lazily on first use.
type SQLJournal struct {
	driver string
	dsn    string
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewSQLJournal(driver, dsn string) (*SQLJournal, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	switch driver {
	case "postgres", "sqlite3":
	default:
		return nil, fmt.Errorf("%w: journal driver %s", ErrNotImplemented, driver)
	}
	return &SQLJournal{
		driver: driver,
		dsn:    dsn,
		openDB: sql.Open,
	}, nil
}

func (j *SQLJournal) Record(job PushJob) error {
	if strings.TrimSpace(job.ID) == "" {
		return ErrInvalidInput
	}
	if err := j.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqlJournalOperationTimeout)
	defer cancel()

	query := j.rebind(`
		INSERT INTO ` + sqlJournalTableName + `
			(id, project_id, state, outcome, detail, caller_version, new_version, file_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			outcome = EXCLUDED.outcome,
			detail = EXCLUDED.detail,
			new_version = EXCLUDED.new_version,
			updated_at = EXCLUDED.updated_at`)
	_, err := j.db.ExecContext(ctx, query,
		job.ID, job.ProjectID, string(job.State), job.Outcome, job.Detail,
		job.CallerVersion, job.NewVersion, job.FileCount,
		job.CreatedAt.UTC(), job.UpdatedAt.UTC())
	return err
}

func (j *SQLJournal) ListRecent(projectID string, limit int) ([]PushJob, error) {
	if limit <= 0 {
		limit = 100
	}
	if err := j.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqlJournalOperationTimeout)
	defer cancel()

	var rows *sql.Rows
	var err error
	if projectID != "" {
		query := j.rebind(`
			SELECT id, project_id, state, outcome, detail, caller_version, new_version, file_count, created_at, updated_at
			FROM ` + sqlJournalTableName + `
			WHERE project_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2`)
		rows, err = j.db.QueryContext(ctx, query, projectID, limit)
	} else {
		query := j.rebind(`
			SELECT id, project_id, state, outcome, detail, caller_version, new_version, file_count, created_at, updated_at
			FROM ` + sqlJournalTableName + `
			ORDER BY created_at DESC, id DESC
			LIMIT $1`)
		rows, err = j.db.QueryContext(ctx, query, limit)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	jobs := make([]PushJob, 0, limit)
	for rows.Next() {
		var job PushJob
		var state string
		if err := rows.Scan(&job.ID, &job.ProjectID, &state, &job.Outcome, &job.Detail,
			&job.CallerVersion, &job.NewVersion, &job.FileCount, &job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, err
		}
		job.State = JobState(state)
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (j *SQLJournal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *SQLJournal) ensureReady() error {
	if j == nil {
		return ErrInvalidInput
	}
	j.initOnce.Do(func() {
		db, err := j.openDB(j.driver, j.dsn)
		if err != nil {
			j.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), sqlJournalOperationTimeout)
		defer cancel()

		query := `
			CREATE TABLE IF NOT EXISTS ` + sqlJournalTableName + ` (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL,
				state TEXT NOT NULL,
				outcome TEXT NOT NULL DEFAULT '',
				detail TEXT NOT NULL DEFAULT '',
				caller_version INTEGER NOT NULL,
				new_version INTEGER NOT NULL DEFAULT 0,
				file_count INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			j.initErr = err
			return
		}
		indexQuery := `CREATE INDEX IF NOT EXISTS ` + sqlJournalTableName + `_project_idx ON ` + sqlJournalTableName + ` (project_id, created_at)`
		if _, err := db.ExecContext(ctx, indexQuery); err != nil {
			_ = db.Close()
			j.initErr = err
			return
		}
		j.db = db
	})
	return j.initErr
}

// rebind rewrites $N placeholders to ? for drivers that do not understand the
// Postgres style.
func (j *SQLJournal) rebind(query string) string {
	if j.driver == "postgres" {
		return query
	}
	var builder strings.Builder
	builder.Grow(len(query))
	for i := 0; i < len(query); i++ {
		if query[i] == '$' {
			k := i + 1
			for k < len(query) && query[k] >= '0' && query[k] <= '9' {
				k++
			}
			if k > i+1 {
				builder.WriteByte('?')
				i = k - 1
				continue
			}
		}
		builder.WriteByte(query[i])
	}
	return builder.String()
}
