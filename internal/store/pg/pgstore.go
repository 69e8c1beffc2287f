// Package pg implements the user, tracker and revocation ledger stores on
// PostgreSQL through database/sql and the pgx stdlib driver.
package pg

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"worktrack.org/internal/auth"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var errNoDB = errors.New("database connection unavailable")

type Store struct {
	db *sql.DB
}

// Open connects with pool defaults sized for a single API instance.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) ready() error {
	if s == nil || s.db == nil {
		return errNoDB
	}
	return nil
}

// translate maps driver errors onto the auth error kinds.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrNotFound
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%w: %s", auth.ErrConflict, pgErr.ConstraintName)
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%w: %s", auth.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func expectOne(res sql.Result) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// query accumulates WHERE conditions and positional arguments.
type query struct {
	conds []string
	args  []any
}

func (q *query) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *query) where(cond string) {
	q.conds = append(q.conds, cond)
}

func (q *query) clause() string {
	if len(q.conds) == 0 {
		return ""
	}
	return " where " + strings.Join(q.conds, " and ")
}

func (q *query) page(limit, offset int) string {
	return fmt.Sprintf(" limit %s offset %s", q.arg(limit), q.arg(offset))
}
