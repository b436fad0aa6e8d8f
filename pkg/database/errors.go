package database

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrTransient marks failures that may succeed when the whole unit of work is retried.
var ErrTransient = errors.New("transient database failure")

const (
	codeUniqueViolation      = pq.ErrorCode("23505")
	codeSerializationFailure = pq.ErrorCode("40001")
	codeDeadlockDetected     = pq.ErrorCode("40P01")
)

// Classify wraps deadlock and serialization failures with ErrTransient. Other errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %w", ErrTransient, err)
		}
	}
	return err
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation
}
