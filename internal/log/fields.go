package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldUserID     = "user_id"
	FieldSessionID  = "session_id"
	FieldPage       = "page"
	FieldCategory   = "category"
	FieldSequence   = "seq"
	FieldTotalCount = "total_count"
	FieldAttempt    = "attempt"
	FieldAttemptID  = "attempt_id"
	FieldStage      = "stage"
	FieldFileName   = "file_name"
	FieldFileSize   = "file_size"
	FieldState      = "state"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentLedger    = "ledger"
	ComponentQuery     = "query"
	ComponentIngestion = "ingestion"
	ComponentSession   = "session"
	ComponentBackend   = "backend"
	ComponentJournal   = "journal"
	ComponentAMQP      = "amqp"
	ComponentPreview   = "preview"
	ComponentTemplate  = "template"
	ComponentCache     = "cache"
)

// Operations defines standard operation names
const (
	OpFetch    = "fetch"
	OpUpload   = "upload"
	OpProcess  = "process"
	OpLogin    = "login"
	OpRegister = "register"
	OpLogout   = "logout"
	OpRender   = "render"
	OpPublish  = "publish"
	OpRecord   = "record"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithFilter adds the ledger slice being fetched.
func (f LogFields) WithFilter(userID int64, page int, category string) LogFields {
	f[FieldUserID] = userID
	f[FieldPage] = page
	f[FieldCategory] = category
	return f
}

// WithAttempt adds receipt ingestion attempt fields.
func (f LogFields) WithAttempt(attemptID string, stage string, fileName string) LogFields {
	f[FieldAttemptID] = attemptID
	if stage != "" {
		f[FieldStage] = stage
	}
	if fileName != "" {
		f[FieldFileName] = fileName
	}
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
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
