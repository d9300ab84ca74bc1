package core

import "strings"

const RedactedValue = "[REDACTED]"

// RedactSensitiveMap copies metadata with credential-like values replaced by
// RedactedValue. Nested maps and slices are walked.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return redactSensitiveMap(metadata)
}

func redactSensitiveMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		if shouldRedactKey(key) {
			target[key] = RedactedValue
			continue
		}
		target[key] = redactSensitiveValue(value)
	}
	return target
}

func redactSensitiveValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return redactSensitiveMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactSensitiveValue(typed[i])
		}
		return out
	default:
		return value
	}
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || isDiagnosticKey(key) {
		return false
	}
	for _, marker := range []string{
		"password",
		"secret",
		"token",
		"authorization",
		"code_verifier",
		"refresh",
		"signature",
		"public_key",
	} {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}

func isDiagnosticKey(key string) bool {
	switch key {
	case "refresh_status",
		"token_type",
		"session_key",
		"message_id",
		"subscription_id",
		"event_type",
		"status_code":
		return true
	default:
		return false
	}
}
