package logger

import "strings"

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// RedactID masks a registry identifier (license number, NPI), keeping
// the last two characters so log lines stay correlatable.
// "1234567890" → "********90"
func RedactID(id string) string {
	if len(id) <= 2 {
		return "***"
	}
	return strings.Repeat("*", len(id)-2) + id[len(id)-2:]
}
