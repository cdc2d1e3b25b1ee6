package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldUserAgent   = "user_agent"
	FieldError       = "error"
	FieldErrorKind   = "error_kind"
	FieldUserID      = "user_id"
	FieldExpenseID   = "expense_id"
	FieldCategory    = "category"
	FieldAmountCents = "amount_cents"
	FieldStage       = "stage"
	FieldState       = "state"
	FieldBytes       = "bytes"
)

// Components defines standard component names
const (
	ComponentApp          = "app"
	ComponentHTTP         = "http"
	ComponentCapture      = "capture"
	ComponentTranscriber  = "transcriber"
	ComponentExtractor    = "extractor"
	ComponentPipeline     = "pipeline"
	ComponentOrchestrator = "orchestrator"
	ComponentExpense      = "expense"
	ComponentStorage      = "storage"
	ComponentAuth         = "auth"
	ComponentAMQP         = "amqp"
	ComponentWorker       = "worker"
	ComponentLedger       = "ledger"
	ComponentRateLimit    = "rate_limit"
	ComponentTrace        = "trace"
)

// Fields is a small builder for slog key/value pairs.
type Fields map[string]any

func NewFields() Fields {
	return make(Fields)
}

func (f Fields) WithRequestID(id string) Fields {
	f[FieldRequestID] = id
	return f
}

func (f Fields) WithUser(userID string) Fields {
	f[FieldUserID] = userID
	return f
}

// WithError records the error text and, for taxonomy errors, its kind.
func (f Fields) WithError(err error, kind string) Fields {
	if err != nil {
		f[FieldError] = err.Error()
		if kind != "" {
			f[FieldErrorKind] = kind
		}
	}
	return f
}

func (f Fields) WithExpense(id int64, category string, amountCents int64) Fields {
	f[FieldExpenseID] = id
	f[FieldCategory] = category
	f[FieldAmountCents] = amountCents
	return f
}

func (f Fields) ToSlice() []any {
	out := make([]any, 0, len(f)*2)
	for k, v := range f {
		out = append(out, k, v)
	}
	return out
}
