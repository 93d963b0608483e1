package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

type sessionKey struct{}

// DefaultSessionID is used when the context carries no session.
const DefaultSessionID = "default"

// WithSessionID scopes tool calls made with ctx to sessionID.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionID returns the session of ctx, or DefaultSessionID.
func SessionID(ctx context.Context) string {
	if id, ok := ctx.Value(sessionKey{}).(string); ok && id != "" {
		return id
	}
	return DefaultSessionID
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

func optString(args map[string]any, name string) *string {
	s, ok := args[name].(string)
	if !ok {
		return nil
	}
	return &s
}

func boolArg(args map[string]any, name string, def bool) bool {
	if b, ok := args[name].(bool); ok {
		return b
	}
	return def
}

func optBool(args map[string]any, name string) *bool {
	b, ok := args[name].(bool)
	if !ok {
		return nil
	}
	return &b
}

func intArg(args map[string]any, name string, def int) int {
	if f, ok := toFloat(args[name]); ok {
		return int(f)
	}
	return def
}

// optInt rejects fractional values so an index like 1.5 is not silently truncated.
func optInt(args map[string]any, name string) (*int, error) {
	v, present := args[name]
	if !present || v == nil {
		return nil, nil
	}
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return nil, fmt.Errorf("%w: %s must be an integer", ErrInvalidArgType, name)
	}
	i := int(f)
	return &i, nil
}
