package types

// RunMode is the mode the process runs in
type RunMode string

const (
	// ModeLocal runs the invoicing engine and the notification consumer in one process
	ModeLocal RunMode = "local"
	// ModeConsumer runs only the notification consumer
	ModeConsumer RunMode = "consumer"
)

// LogLevel is the logging verbosity
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)
