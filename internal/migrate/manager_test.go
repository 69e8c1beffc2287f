package migrate

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"0001_init.up.sql":    {Data: []byte("create table a (id text);\ncreate table b (note text default 'x;y');\n")},
		"0001_init.down.sql":  {Data: []byte("drop table b;\ndrop table a;\n")},
		"0002_extra.up.sql":   {Data: []byte("alter table a add column n int;")},
		"0002_extra.down.sql": {Data: []byte("alter table a drop column n;")},
		"README.md":           {Data: []byte("not sql")},
	}
}

func TestUpAppliesPendingInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`create table if not exists schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select name from schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_init.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(`alter table a add column n int`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`insert into schema_migrations`).
		WithArgs("0002_extra.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := NewManager(db, testFS()).Up(context.Background())
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if len(applied) != 1 || applied[0] != "0002_extra.up.sql" {
		t.Fatalf("unexpected applied list %v", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpRollsBackFailedMigration(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`create table if not exists schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select name from schema_migrations`).WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec(`create table a`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`create table b`).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	applied, err := NewManager(db, testFS()).Up(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(applied) != 0 {
		t.Fatalf("nothing should be reported applied, got %v", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDownRevertsLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`create table if not exists schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select name from schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_init.up.sql").AddRow("0002_extra.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(`alter table a drop column n`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`delete from schema_migrations where name = \$1`).
		WithArgs("0002_extra.up.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	name, err := NewManager(db, testFS()).Down(context.Background())
	if err != nil {
		t.Fatalf("Down: %v", err)
	}
	if name != "0002_extra.up.sql" {
		t.Fatalf("unexpected rollback %q", name)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDownWithNothingApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`create table if not exists schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select name from schema_migrations`).WillReturnRows(sqlmock.NewRows([]string{"name"}))

	if _, err := NewManager(db, testFS()).Down(context.Background()); !errors.Is(err, ErrNothingApplied) {
		t.Fatalf("expected ErrNothingApplied, got %v", err)
	}
}

func TestSplitStatementsKeepsQuotedSemicolons(t *testing.T) {
	stmts := splitStatements("create table b (note text default 'x;y');\nselect 1;")
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
}
