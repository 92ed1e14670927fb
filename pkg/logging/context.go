package logging

import "context"

type contextKey int

const (
	sessionIDKey contextKey = iota
	trialIDKey
	strategyKey
)

// WithSessionID annotates ctx so log entries carry the session identifier.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// GetSessionID extracts a session identifier previously set with WithSessionID.
func GetSessionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok
}

// WithTrialID annotates ctx with the identifier of the trial in flight.
func WithTrialID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, trialIDKey, id)
}

// GetTrialID extracts a trial identifier previously set with WithTrialID.
func GetTrialID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(trialIDKey).(string)
	return id, ok
}

// WithStrategy annotates ctx with the active exploration strategy name.
func WithStrategy(ctx context.Context, strategy string) context.Context {
	return context.WithValue(ctx, strategyKey, strategy)
}

// GetStrategy extracts a strategy name previously set with WithStrategy.
func GetStrategy(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(strategyKey).(string)
	return s, ok
}
