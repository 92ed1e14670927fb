package logging

// LogEntry represents a structured log record with fields relevant to
// optimization sessions.
type LogEntry struct {
	// Standard fields
	Time     int64
	Severity Severity
	Message  string
	File     string
	Line     int
	Function string

	// Session-specific fields
	SessionID string // The optimization session this entry belongs to
	TrialID   string // The trial in flight, if any
	Strategy  string // Active exploration strategy

	// General structured data
	Fields map[string]interface{}
}
