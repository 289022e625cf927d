package repository

import (
	"errors"

	"github.com/lib/pq"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a storage-level uniqueness
// failure. All duplicate-detection in this package goes through the
// constraint, never a check-then-insert sequence.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
