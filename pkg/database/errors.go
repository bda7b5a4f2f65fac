package database

import (
	"errors"

	"github.com/lib/pq"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeExclusionViolation  = "23P01"
	codeCheckViolation      = "23514"
)

// IsExclusionViolation reports whether err is a Postgres exclusion-constraint failure,
// which for lessons means two scheduled lessons of one teacher would overlap.
func IsExclusionViolation(err error) bool {
	return hasCode(err, codeExclusionViolation)
}

// IsUniqueViolation reports a duplicate key.
func IsUniqueViolation(err error) bool {
	return hasCode(err, codeUniqueViolation)
}

// IsForeignKeyViolation reports a dangling reference.
func IsForeignKeyViolation(err error) bool {
	return hasCode(err, codeForeignKeyViolation)
}

// IsCheckViolation reports a CHECK constraint failure.
func IsCheckViolation(err error) bool {
	return hasCode(err, codeCheckViolation)
}

func hasCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == code
}
