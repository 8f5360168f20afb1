package migrate

import (
	"context"
	"errors"
	"io"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	src, err := iofs.New(embedded, migrationsDir)
	if err != nil {
		t.Fatalf("iofs.New: %v", err)
	}
	defer src.Close()

	var versions []uint
	v, err := src.First()
	for err == nil {
		versions = append(versions, v)
		up, _, upErr := src.ReadUp(v)
		if upErr != nil {
			t.Fatalf("version %d: missing up migration: %v", v, upErr)
		}
		up.Close()
		down, _, downErr := src.ReadDown(v)
		if downErr != nil {
			t.Fatalf("version %d: missing down migration: %v", v, downErr)
		}
		down.Close()
		v, err = src.Next(v)
	}
	want := []uint{1, 2, 3}
	if len(versions) != len(want) {
		t.Fatalf("expected versions %v, got %v", want, versions)
	}
	for i := range want {
		if versions[i] != want[i] {
			t.Fatalf("expected versions %v, got %v", want, versions)
		}
	}

	latest, err := latestVersion(src)
	if err != nil || latest != 3 {
		t.Fatalf("latestVersion: %d, %v", latest, err)
	}
}

type emptySource struct{}

func (emptySource) First() (uint, error)    { return 0, io.EOF }
func (emptySource) Next(uint) (uint, error) { return 0, io.EOF }

func TestLatestVersionWithoutMigrations(t *testing.T) {
	if _, err := latestVersion(emptySource{}); err == nil {
		t.Fatalf("expected error for an empty source")
	}
}

func TestDatabaseURL(t *testing.T) {
	cases := []struct {
		dsn     string
		want    string
		wantErr bool
	}{
		{dsn: "postgres://u:p@db:5432/distributor?sslmode=disable", want: "pgx5://u:p@db:5432/distributor?sslmode=disable"},
		{dsn: " postgresql://db/distributor ", want: "pgx5://db/distributor"},
		{dsn: "pgx5://db/distributor", want: "pgx5://db/distributor"},
		{dsn: "host=db user=u dbname=distributor", wantErr: true},
		{dsn: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := databaseURL(tc.dsn)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.dsn)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: got %q, %v", tc.dsn, got, err)
		}
	}
	if _, err := New("host=db"); err == nil {
		t.Fatalf("expected New to reject a keyword DSN")
	}
}

func TestSeedRunsEmbeddedFilesInOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`insert into roles \(name\) values \('admin'\) on conflict do nothing`).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	if err := Seed(context.Background(), db); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSeedOrdersFilesAndRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	fsys := fstest.MapFS{
		"s/0002_b.sql":   {Data: []byte("insert into b values (1);")},
		"s/0001_a.sql":   {Data: []byte("insert into a values (1);")},
		"s/README.md":    {Data: []byte("ignored")},
		"s/nested/x.sql": {Data: []byte("ignored")},
	}
	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectExec("insert into a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into b").WillReturnError(boom)
	mock.ExpectRollback()

	err = seedFrom(context.Background(), db, fsys, "s")
	if !errors.Is(err, boom) {
		t.Fatalf("expected seed error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSeedNilDB(t *testing.T) {
	if err := Seed(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil db")
	}
}

func TestLogAdapterFollowsLevel(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	l := logAdapter{logrus.NewEntry(logger)}

	logger.SetLevel(logrus.InfoLevel)
	if l.Verbose() {
		t.Fatalf("expected quiet adapter at info level")
	}
	logger.SetLevel(logrus.DebugLevel)
	if !l.Verbose() {
		t.Fatalf("expected verbose adapter at debug level")
	}
	l.Printf("applied %d\n", 1)
}
