package logger

// Standard field names for consistent structured logging across carousel.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldJobGUID = "job_guid"
	FieldJobName = "job_name"

	// Components
	FieldComponent = "component"

	// Robot state
	FieldCommand = "command"
	FieldEcho    = "echo"
	FieldTray    = "tray"
	FieldAtHome  = "at_home"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldNextRunAt  = "next_run_at"

	// Errors
	FieldError = "error"

	// Counts and sizes
	FieldCount = "count"

	// Files and paths
	FieldFile = "file"
	FieldPath = "path"

	// Network
	FieldAddress = "address"
	FieldPort    = "port"
)
