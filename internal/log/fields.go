package log

import "sort"

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldOperation   = "operation"
	FieldError       = "error"
	FieldErrorType   = "error_type"
	FieldDuration    = "duration_ms"
	FieldUserID      = "user_id"
	FieldAccountID   = "account_id"
	FieldCategoryID  = "category_id"
	FieldTxID        = "transaction_id"
	FieldTemplateID  = "template_id"
	FieldGoalID      = "goal_id"
	FieldAmount      = "amount"
	FieldBalance     = "balance"
	FieldPrevBalance = "previous_balance"
	FieldTxType      = "type"
	FieldDate        = "date"
	FieldReason      = "reason"
	FieldEventID     = "event_id"
	FieldEventKind   = "event_kind"
	FieldCount       = "count"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentLedger    = "ledger"
	ComponentGoal      = "goal"
	ComponentRecurring = "recurring"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentExport    = "export"
	ComponentCache     = "cache"
)

// Operations defines standard operation names
const (
	OpCreate      = "create"
	OpRead        = "read"
	OpUpdate      = "update"
	OpDelete      = "delete"
	OpPost        = "post"
	OpReverse     = "reverse"
	OpReassign    = "reassign"
	OpCorrect     = "correct"
	OpContribute  = "contribute"
	OpMaterialize = "materialize"
	OpAudit       = "audit"
	OpPublish     = "publish"
	OpExport      = "export"
	OpShutdown    = "shutdown"
	OpStartup     = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConsistency   = "consistency_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithErrorType(t string) LogFields {
	f[FieldErrorType] = t
	return f
}

// WithTransaction adds the identifying fields of a ledger transaction.
func (f LogFields) WithTransaction(id, accountID int64, txType, amount string) LogFields {
	if id != 0 {
		f[FieldTxID] = id
	}
	f[FieldAccountID] = accountID
	f[FieldTxType] = txType
	f[FieldAmount] = amount
	return f
}

// WithBalance adds an account's balance, and the previous one when known.
func (f LogFields) WithBalance(accountID int64, balance, previous string) LogFields {
	f[FieldAccountID] = accountID
	f[FieldBalance] = balance
	if previous != "" {
		f[FieldPrevBalance] = previous
	}
	return f
}

func (f LogFields) WithEvent(id, kind string) LogFields {
	f[FieldEventID] = id
	f[FieldEventKind] = kind
	return f
}

// ToSlice converts LogFields to a slice for slog. Keys are sorted so records
// are stable.
func (f LogFields) ToSlice() []any {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	slice := make([]any, 0, len(f)*2)
	for _, k := range keys {
		slice = append(slice, k, f[k])
	}
	return slice
}
