// Package migrate applies ordered SQL migrations from an fs.FS and keeps a
// bookkeeping table of what ran.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultMigrationsTable = "schema_migrations"

var ErrNothingApplied = errors.New("no migrations applied")

// Manager executes *.up.sql and *.down.sql files found at the root of src.
type Manager struct {
	db              *sql.DB
	src             fs.FS
	migrationsTable string
	log             logrus.FieldLogger
	now             func() time.Time
}

// Option configures Manager.
type Option func(*Manager)

// WithMigrationsTable overrides the default migrations bookkeeping table.
func WithMigrationsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.migrationsTable = name
		}
	}
}

// WithLogger reports each applied or rolled back file.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewManager constructs a Manager.
func NewManager(db *sql.DB, src fs.FS, opts ...Option) *Manager {
	discard := logrus.New()
	discard.SetLevel(logrus.PanicLevel)
	m := &Manager{
		db:              db,
		src:             src,
		migrationsTable: defaultMigrationsTable,
		log:             discard,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies all pending migrations in name order and returns the applied names.
func (m *Manager) Up(ctx context.Context) ([]string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	executed, err := m.listExecuted(ctx)
	if err != nil {
		return nil, err
	}
	files, err := collectSQL(m.src, ".up.sql")
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, name := range files {
		if executed[name] {
			continue
		}
		if err := m.exec(ctx, name, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx,
				fmt.Sprintf(`insert into %s(name, applied_at) values ($1, $2)`, m.migrationsTable),
				name, m.now().UTC())
			return err
		}); err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", name, err)
		}
		m.log.WithField("migration", name).Info("migration applied")
		applied = append(applied, name)
	}
	return applied, nil
}

// Down rolls back the most recent applied migration and returns its name.
func (m *Manager) Down(ctx context.Context) (string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return "", err
	}
	executed, err := m.history(ctx)
	if err != nil {
		return "", err
	}
	if len(executed) == 0 {
		return "", ErrNothingApplied
	}
	last := executed[len(executed)-1]
	down := strings.TrimSuffix(last, ".up.sql") + ".down.sql"
	if _, err := fs.Stat(m.src, down); err != nil {
		return "", fmt.Errorf("missing down migration for %s", last)
	}
	if err := m.exec(ctx, down, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`delete from %s where name = $1`, m.migrationsTable), last)
		return err
	}); err != nil {
		return "", fmt.Errorf("rollback migration %s: %w", last, err)
	}
	m.log.WithField("migration", last).Info("migration rolled back")
	return last, nil
}

// Status returns applied migrations in order.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	return m.history(ctx)
}

func (m *Manager) ensureTable(ctx context.Context) error {
	if m.db == nil {
		return errors.New("database connection unavailable")
	}
	ddl := fmt.Sprintf(`create table if not exists %s (
		name text primary key,
		applied_at timestamptz not null default now()
	)`, m.migrationsTable)
	_, err := m.db.ExecContext(ctx, ddl)
	return err
}

// exec runs every statement of name and the bookkeeping step in one transaction.
func (m *Manager) exec(ctx context.Context, name string, record func(*sql.Tx) error) error {
	body, err := fs.ReadFile(m.src, name)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(body)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if err := record(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *Manager) listExecuted(ctx context.Context) (map[string]bool, error) {
	names, err := m.history(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out, nil
}

func (m *Manager) history(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select name from %s order by applied_at asc, name asc`, m.migrationsTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res = append(res, name)
	}
	return res, rows.Err()
}

func collectSQL(src fs.FS, suffix string) ([]string, error) {
	if src == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(src, ".")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// splitStatements splits SQL on semicolons outside single-quoted strings.
func splitStatements(sql string) []string {
	var stmts []string
	var current strings.Builder
	inString := false
	for _, r := range sql {
		current.WriteRune(r)
		switch r {
		case '\'':
			inString = !inString
		case ';':
			if !inString {
				stmts = append(stmts, current.String())
				current.Reset()
			}
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}
