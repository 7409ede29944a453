package logging

// LogEntry represents a structured log record with fields relevant to
// pattern lifecycle tracking.
type LogEntry struct {
	// Standard fields
	Time     int64
	Severity Severity
	Message  string
	File     string
	Line     int
	Function string

	// Engine-specific fields
	PatternID string // The pattern a record refers to, when known
	Lifecycle string // Lifecycle state at the time of logging

	// General structured data
	Fields map[string]interface{}
}
