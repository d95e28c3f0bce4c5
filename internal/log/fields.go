package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldUser        = "user"
	FieldTransaction = "transaction_id"
	FieldCategory    = "category"
	FieldInterval    = "interval"
	FieldAmountCents = "amount_cents"
	FieldBalance     = "balance_cents"
	FieldMonth       = "month"
	FieldRows        = "rows"
	FieldError       = "error"
	FieldOperation   = "operation"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentExport  = "export"
	ComponentCache   = "cache"
	ComponentCLI     = "cli"
)
