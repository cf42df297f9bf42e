package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("github.com/NicolasHaas/sanction/pkg/datastore")

// Dialect selects the SQL flavour spoken by the underlying driver.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// ParseDialect maps a configured driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	}
	return "", fmt.Errorf("datastore: unknown driver %q", driver)
}

// SQLStore is a Gateway backed by database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

var _ Gateway = (*SQLStore)(nil)

// Open connects to the configured database and runs migrations.
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("datastore: open DB: %w", err)
	}

	if dialect == SQLite {
		// Enable WAL mode for better concurrent read performance
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("datastore: set WAL: %w", err)
		}
		// Set busy timeout to avoid "database is locked" under concurrency
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("datastore: set busy_timeout: %w", err)
		}
	}

	s := New(db, dialect)
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: migrate: %w", err)
	}
	return s, nil
}

// New wraps an already opened database. No migrations are run.
func New(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) migrate(ctx context.Context) error {
	idColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	intColumn := "INTEGER"
	if s.dialect == Postgres {
		idColumn = "BIGSERIAL PRIMARY KEY"
		intColumn = "BIGINT"
	}
	table := func(name string) string {
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id              %s,
		name            TEXT    NOT NULL,
		identifier      TEXT    NOT NULL,
		reason          TEXT,
		operator        TEXT    NOT NULL,
		punishment_type TEXT    NOT NULL,
		start_ms        %s NOT NULL,
		end_ms          %s NOT NULL,
		calculation     TEXT    NOT NULL DEFAULT ''
	)`, name, idColumn, intColumn, intColumn)
	}

	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version    int
		statements []string
	}{
		{
			version: 1,
			statements: []string{
				table("punishments"),
				table("punishment_history"),
			},
		},
		{
			version: 2,
			statements: []string{
				"CREATE INDEX IF NOT EXISTS punishments_identifier ON punishments (identifier)",
				"CREATE INDEX IF NOT EXISTS punishment_history_identifier ON punishment_history (identifier)",
			},
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("datastore: migrate v%d: %w", m.version, err)
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("datastore: create schema_migrations: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("datastore: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("datastore: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("datastore: read schema version: %w", err)
	}
	return version, nil
}

func (s *SQLStore) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := s.db.ExecContext(ctx, s.rebind("UPDATE schema_migrations SET version = ?"), version); err != nil {
		return fmt.Errorf("datastore: update schema version: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func tableName(t Table) string {
	if t == History {
		return "punishment_history"
	}
	return "punishments"
}

const columns = "id, name, identifier, reason, operator, punishment_type, start_ms, end_ms, calculation"

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(sc scanner) (Row, error) {
	var r Row
	var reason sql.NullString
	if err := sc.Scan(&r.ID, &r.Name, &r.Identifier, &reason, &r.Operator, &r.Type, &r.Start, &r.End, &r.Calculation); err != nil {
		return Row{}, err
	}
	if reason.Valid {
		r.Reason = &reason.String
	}
	return r, nil
}

func (s *SQLStore) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", string(s.dialect)))
	return tracer.Start(ctx, "datastore."+op, trace.WithAttributes(attrs...))
}

// fail records err on span and wraps it with ErrStorageUnavailable.
func fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return fmt.Errorf("datastore: %s: %w: %w", op, ErrStorageUnavailable, err)
}

func (s *SQLStore) queryRows(ctx context.Context, op, query string, args ...any) ([]Row, error) {
	ctx, span := s.start(ctx, op)
	defer span.End()

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fail(span, op, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fail(span, op, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, op, err)
	}
	span.SetAttributes(attribute.Int("db.rows", len(out)))
	return out, nil
}

func (s *SQLStore) queryOne(ctx context.Context, op, query string, args ...any) (*Row, error) {
	ctx, span := s.start(ctx, op)
	defer span.End()

	r, err := scanRow(s.db.QueryRowContext(ctx, s.rebind(query), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fail(span, op, err)
	}
	return &r, nil
}

func (s *SQLStore) SelectByIdentifierOrAddress(ctx context.Context, table Table, identifier, address string) ([]Row, error) {
	query := "SELECT " + columns + " FROM " + tableName(table) + " WHERE identifier = ? OR identifier = ? ORDER BY start_ms, id"
	return s.queryRows(ctx, "select "+table.String(), query, identifier, address)
}

func (s *SQLStore) SelectByIdentifier(ctx context.Context, table Table, identifier string, types []string) ([]Row, error) {
	query := "SELECT " + columns + " FROM " + tableName(table) + " WHERE identifier = ?"
	args := []any{identifier}
	if len(types) > 0 {
		query += " AND punishment_type IN (?" + strings.Repeat(", ?", len(types)-1) + ")"
		for _, t := range types {
			args = append(args, t)
		}
	}
	query += " ORDER BY start_ms, id"
	return s.queryRows(ctx, "select "+table.String()+" by identifier", query, args...)
}

func (s *SQLStore) SelectByID(ctx context.Context, id int64) (*Row, error) {
	return s.queryOne(ctx, "select by id", "SELECT "+columns+" FROM punishments WHERE id = ?", id)
}

func (s *SQLStore) SelectExact(ctx context.Context, identifier string, start int64) (*Row, error) {
	return s.queryOne(ctx, "select exact",
		"SELECT "+columns+" FROM punishments WHERE identifier = ? AND start_ms = ? ORDER BY id DESC LIMIT 1",
		identifier, start)
}

func (s *SQLStore) CountByCalculation(ctx context.Context, identifier, calculation string) (int, error) {
	const op = "count by calculation"
	ctx, span := s.start(ctx, op)
	defer span.End()

	var count int
	err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT COUNT(*) FROM punishment_history WHERE identifier = ? AND LOWER(calculation) = LOWER(?)"),
		identifier, calculation).Scan(&count)
	if err != nil {
		return 0, fail(span, op, err)
	}
	return count, nil
}

func (s *SQLStore) insert(ctx context.Context, table Table, row Row) (int64, error) {
	op := "insert " + table.String()
	ctx, span := s.start(ctx, op, attribute.String("punishment.type", row.Type))
	defer span.End()

	query := "INSERT INTO " + tableName(table) +
		" (name, identifier, reason, operator, punishment_type, start_ms, end_ms, calculation)" +
		" VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id"
	var reason any
	if row.Reason != nil {
		reason = *row.Reason
	}
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(query),
		row.Name, row.Identifier, reason, row.Operator, row.Type, row.Start, row.End, row.Calculation).Scan(&id)
	if err != nil {
		return 0, fail(span, op, err)
	}
	return id, nil
}

func (s *SQLStore) InsertActive(ctx context.Context, row Row) (int64, error) {
	return s.insert(ctx, Active, row)
}

func (s *SQLStore) InsertHistory(ctx context.Context, row Row) (int64, error) {
	return s.insert(ctx, History, row)
}

func (s *SQLStore) exec(ctx context.Context, op, query string, args ...any) error {
	ctx, span := s.start(ctx, op)
	defer span.End()

	if _, err := s.db.ExecContext(ctx, s.rebind(query), args...); err != nil {
		return fail(span, op, err)
	}
	return nil
}

func (s *SQLStore) UpdateReason(ctx context.Context, id int64, reason *string) error {
	var value any
	if reason != nil {
		value = *reason
	}
	return s.exec(ctx, "update reason", "UPDATE punishments SET reason = ? WHERE id = ?", value, id)
}

func (s *SQLStore) Delete(ctx context.Context, id int64) error {
	return s.exec(ctx, "delete", "DELETE FROM punishments WHERE id = ?", id)
}
