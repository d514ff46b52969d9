package log

// Common field names for structured logging
const (
	FieldComponent      = "component"
	FieldError          = "error"
	FieldOperation      = "operation"
	FieldDuration       = "duration_ms"
	FieldTickID         = "tick_id"
	FieldUserID         = "user_id"
	FieldRuleID         = "rule_id"
	FieldApprovalID     = "approval_id"
	FieldTransactionID  = "transaction_id"
	FieldDate           = "date"
	FieldScheduledDate  = "scheduled_date"
	FieldFrequency      = "frequency"
	FieldKind           = "kind"
	FieldAmount         = "amount"
	FieldDescription    = "description"
	FieldOutcome        = "outcome"
	FieldChecked        = "total_checked"
	FieldDue            = "due"
	FieldCreated        = "processed"
	FieldPendingCreated = "pending_created"
	FieldFailed         = "failed"
	FieldSheetsRef      = "sheets_ref"
	FieldRoutingKey     = "routing_key"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentRecurrence = "recurrence"
	ComponentApproval   = "approval"
	ComponentStorage    = "storage"
	ComponentAMQP       = "amqp"
	ComponentWorker     = "worker"
	ComponentSheets     = "sheets"
	ComponentLock       = "lock"
	ComponentBackend    = "backend"
	ComponentCLI        = "cli"
)

// Operations defines standard operation names
const (
	OpCreate      = "create"
	OpList        = "list"
	OpUpdate      = "update"
	OpDelete      = "delete"
	OpAppend      = "append"
	OpSync        = "sync"
	OpTick        = "tick"
	OpMaterialize = "materialize"
	OpApprove     = "approve"
	OpReject      = "reject"
	OpShutdown    = "shutdown"
	OpStartup     = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithRule adds the identifying fields of a recurrence rule
func (f LogFields) WithRule(ruleID, userID, frequency string) LogFields {
	f[FieldRuleID] = ruleID
	f[FieldUserID] = userID
	f[FieldFrequency] = frequency
	return f
}

// WithTransaction adds transaction fields
func (f LogFields) WithTransaction(id, date, amount, kind string) LogFields {
	f[FieldTransactionID] = id
	f[FieldDate] = date
	f[FieldAmount] = amount
	f[FieldKind] = kind
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
