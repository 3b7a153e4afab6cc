package logstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"teleforward/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Append(ctx context.Context, r Record) error {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	// Upsert on the job identity; a delivered row is final.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries(source_event_id, destination_id, destination_name, kind, outcome, class, attempts, error, at)
		 VALUES(?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(source_event_id, destination_id) DO UPDATE SET
		   destination_name=excluded.destination_name,
		   kind=excluded.kind,
		   outcome=excluded.outcome,
		   class=excluded.class,
		   attempts=excluded.attempts,
		   error=excluded.error,
		   at=excluded.at
		 WHERE deliveries.outcome <> 'delivered'`,
		r.SourceEventID, r.DestinationID, nullStr(r.DestinationName), r.Kind,
		string(r.Outcome), nullStr(r.Class), r.Attempts, nullStr(r.Error),
		r.At.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) Get(ctx context.Context, sourceEventID, destinationID string) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT source_event_id, destination_id, destination_name, kind, outcome, class, attempts, error, at
		 FROM deliveries WHERE source_event_id = ? AND destination_id = ?`,
		sourceEventID, destinationID,
	)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return r, true, nil
}

func (s *sqliteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_event_id, destination_id, destination_name, kind, outcome, class, attempts, error, at
		 FROM deliveries ORDER BY at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM deliveries WHERE at < ?`, before.Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		r       Record
		name    sql.NullString
		class   sql.NullString
		errMsg  sql.NullString
		at      string
		outcome string
	)
	if err := row.Scan(&r.SourceEventID, &r.DestinationID, &name, &r.Kind, &outcome, &class, &r.Attempts, &errMsg, &at); err != nil {
		return Record{}, err
	}
	r.DestinationName = name.String
	r.Class = class.String
	r.Error = errMsg.String
	r.Outcome = Outcome(outcome)
	if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
		r.At = t
	}
	return r, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
