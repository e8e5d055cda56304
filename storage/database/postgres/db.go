package pgrepos

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/twahidin/project-lumos/storage/database/postgres/migrations"
)

const driverName = "postgres"

// pq error codes
const uniqueViolation = "23505"

// DB is an open postgres connection pool.
type DB struct {
	*sqlx.DB
}

// Open connects to uri and pings the server once.
func Open(ctx context.Context, uri string) (*DB, error) {
	db, err := sqlx.Open(driverName, uri)
	if err != nil {
		return nil, errors.Wrap(err, "opening postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "pinging postgres")
	}
	return &DB{DB: db}, nil
}

// Wrap uses an already open database handle.
func Wrap(db *sqlx.DB) *DB {
	return &DB{DB: db}
}

// Migrate applies the embedded migrations.
func (db *DB) Migrate(ctx context.Context) error {
	return db.RunMigration(ctx, "up")
}

// RunMigration runs a goose command (up, down, status, version, ...) over the embedded migrations.
func (db *DB) RunMigration(ctx context.Context, command string) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect(driverName); err != nil {
		return errors.Wrap(err, "setting goose dialect")
	}
	if err := goose.RunContext(ctx, command, db.DB.DB, "."); err != nil {
		return errors.Wrapf(err, "running migration %q", command)
	}
	return nil
}

// constraintViolation returns the unique constraint err violates, if any.
func constraintViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

// validID reports whether id can be a row id; anything else matches no row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// whereClause accumulates AND-ed conditions and their positional arguments.
type whereClause struct {
	conds []string
	args  []interface{}
}

// add appends cond, where every "?" is replaced by the next positional placeholder.
func (w *whereClause) add(cond string, args ...interface{}) {
	for _, arg := range args {
		w.args = append(w.args, arg)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}
