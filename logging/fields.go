package logging

// Canonical field names for structured logging.
const (
	FieldComponent = "component"
	FieldSessionID = "session_id"
	FieldMethod    = "method"
	FieldOldStatus = "old_status"
	FieldNewStatus = "new_status"
	FieldStep      = "step"
	FieldLine      = "line"
	FieldKind      = "kind"
	FieldKey       = "key"
	FieldPort      = "port"
	FieldURL       = "url"
)
