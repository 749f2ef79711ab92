package handlers

import (
	"fmt"
)

// Config extraction helpers. Failure messages deliberately contain
// "invalid" so that missing or mis-typed required fields classify as
// validation errors.

func stringField(action string, config map[string]any, key string) (string, error) {
	v, ok := config[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%s: invalid config: missing required field %q", action, key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%s: invalid config: field %q must be a non-empty string", action, key)
	}
	return s, nil
}

func optionalStringField(config map[string]any, key, fallback string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

// intField accepts the numeric shapes a JSON-decoded config can carry.
func intField(action string, config map[string]any, key string) (int64, error) {
	v, ok := config[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%s: invalid config: missing required field %q", action, key)
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("%s: invalid config: field %q must be a whole number", action, key)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%s: invalid config: field %q must be a number", action, key)
	}
}

func mapField(config map[string]any, key string) map[string]any {
	if v, ok := config[key]; ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return nil
}
