package core

import (
	"errors"
	"fmt"
)

// Sentinel errors. They are usually wrapped in one of the error kinds below
// and can be matched with errors.Is.
var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrAmountScale        = errors.New("amount has more than 2 decimal places")
	ErrAmountTooLarge     = errors.New("amount exceeds 17 integer digits")
	ErrNegativeBalance    = errors.New("balance cannot be negative")
	ErrEmptyName          = errors.New("empty name")
	ErrNameTooLong        = errors.New("name too long")
	ErrEmptyDescription   = errors.New("empty description")
	ErrDescriptionTooLong = errors.New("description too long")
	ErrInvalidUsername    = errors.New("username must be a valid email")
	ErrInvalidFullName    = errors.New("full name must be 4-100 characters")
	ErrInvalidPassword    = errors.New("password must be 8-100 characters")
	ErrZeroDate           = errors.New("date cannot be zero")
	ErrFutureDate         = errors.New("date cannot be in the future")
	ErrPastDate           = errors.New("date cannot be in the past")
	ErrInvalidType        = errors.New("invalid transaction type")
	ErrInvalidFrequency   = errors.New("invalid recurrence frequency")
	ErrMissingFrequency   = errors.New("recurring transaction requires a frequency")
	ErrEndBeforeStart     = errors.New("recurrence end date must not be before the transaction date")
	ErrNotRecurring       = errors.New("transaction is not a recurrence template")
	ErrUnbounded          = errors.New("open-ended recurrence requires a horizon")
	ErrMissingReference   = errors.New("missing reference")
	ErrOwnerMismatch      = errors.New("referenced entity belongs to another user")
	ErrDuplicateName      = errors.New("name already in use")
	ErrDuplicateUsername  = errors.New("username already in use")

	ErrAlreadyPosted     = errors.New("transaction already posted")
	ErrNotPosted         = errors.New("transaction is not posted")
	ErrAccountMismatch   = errors.New("transaction is posted to a different account")
	ErrCategoryInUse     = errors.New("category is referenced by transactions")
	ErrScheduleLocked    = errors.New("template schedule cannot change once instances exist")
	ErrConcurrentUpdate  = errors.New("entity was modified concurrently")
	ErrDuplicateInstance = errors.New("recurring instance already materialized")

	ErrNotFound = errors.New("not found")
)

// ValidationError reports bad caller input. Correcting the input and
// retrying always recovers.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Err.Error()
	}
	return "validation: " + e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid wraps err as a ValidationError on field.
func Invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// ConsistencyError reports an operation that would break ledger consistency,
// such as reversing a transaction that is not posted. The unit of work that
// produced it must be rolled back entirely.
type ConsistencyError struct {
	Op  string
	Err error
}

func (e *ConsistencyError) Error() string {
	return "consistency: " + e.Op + ": " + e.Err.Error()
}

func (e *ConsistencyError) Unwrap() error { return e.Err }

// Inconsistent wraps err as a ConsistencyError for op.
func Inconsistent(op string, err error) error {
	return &ConsistencyError{Op: op, Err: err}
}

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// Is makes every NotFoundError match ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(entity string, id int64) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsConsistency(err error) bool {
	var c *ConsistencyError
	return errors.As(err, &c)
}

func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}
