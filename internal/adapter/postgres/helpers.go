package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/templehubsakshi/FlowSpace/internal/domain"
)

// scannable is satisfied by pgx.Row and pgx.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// nullIfEmpty stores "" as NULL in nullable id columns such as assignee_id.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

// pgTextArray keeps tags NOT NULL: a nil slice is written as '{}'.
func pgTextArray(s []string) []string {
	return orEmpty(s)
}

// orEmpty makes list results encode as [] rather than null.
func orEmpty[T any](items []T) []T {
	if items != nil {
		return items
	}
	return []T{}
}

// notFoundWrap labels err with what was being read; no rows becomes
// domain.ErrNotFound.
func notFoundWrap(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		err = domain.ErrNotFound
	}
	return fmt.Errorf("%s: %w", what, err)
}

// execExpectOne turns an update or delete that touched no row into
// domain.ErrNotFound.
func execExpectOne(tag pgconn.CommandTag, err error, format string, args ...any) error {
	if err == nil && tag.RowsAffected() == 0 {
		err = domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
	}
	return nil
}

// isUniqueViolation reports a duplicate email or membership.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
