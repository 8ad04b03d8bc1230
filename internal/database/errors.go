package database

import (
	"errors"

	"github.com/lib/pq"
)

// ErrDuplicate is returned when an insert would violate a uniqueness rule
var ErrDuplicate = errors.New("duplicate entry")

const uniqueViolation = pq.ErrorCode("23505")

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
