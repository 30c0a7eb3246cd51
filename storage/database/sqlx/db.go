// Package sqlxrepos implements the repositories on Postgres with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pqasys/langcsebkg5-sub007/core"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func newID() string {
	return uuid.New().String()
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func nullTime(t time.Time) null.Time {
	return null.NewTime(t, !t.IsZero())
}

func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func isNoRows(err error) bool {
	return errors.Cause(err) == sql.ErrNoRows
}

// conditions accumulates the clauses of a WHERE, written with `?` placeholders.
type conditions struct {
	clauses []string
	args    []interface{}
}

func (c *conditions) add(clause string, args ...interface{}) {
	c.clauses = append(c.clauses, clause)
	c.args = append(c.args, args...)
}

func (c *conditions) String() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

// orderBy renders orderings already checked by core.CleanOrdering.
func orderBy(ordering []core.DBOrdering, fallback ...core.DBOrdering) string {
	if len(ordering) == 0 {
		ordering = fallback
	}
	if len(ordering) == 0 {
		return ""
	}
	parts := make([]string, len(ordering))
	for i, ord := range ordering {
		parts[i] = ord.String()
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// affected returns the number of affected rows, or notFound when there is none.
func affected(res sql.Result, notFound error) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "reading affected rows")
	}
	if n == 0 && notFound != nil {
		return 0, notFound
	}
	return int(n), nil
}

// toJSON encodes v for a NOT NULL jsonb column, storing `empty` for nil values.
func toJSON(v interface{}, empty string) (null.JSON, error) {
	var j null.JSON
	if err := j.Marshal(v); err != nil {
		return j, errors.Wrap(err, "encoding json column")
	}
	if !j.Valid || string(j.JSON) == "null" {
		return null.JSONFrom([]byte(empty)), nil
	}
	return j, nil
}

func fromJSON(j null.JSON, dest interface{}) error {
	if !j.Valid {
		return nil
	}
	return errors.Wrap(j.Unmarshal(dest), "decoding json column")
}
