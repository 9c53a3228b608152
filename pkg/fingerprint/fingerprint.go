// Package fingerprint hashes the substantive content of a prompt so that
// whitespace-only edits are not treated as changes.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Content is the set of prompt fields that participate in change detection.
type Content struct {
	FinalPrompt         string
	SystemPrompt        string
	InitialPrompt       string
	ConversationHistory string
}

const separator = "||"

// Normalize converts Windows line endings, collapses every whitespace run
// into a single space and trims the result.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Join(strings.Fields(s), " ")
}

// Compute returns the lowercase hex SHA-256 of the normalized content, or ""
// when every field is empty.
func Compute(c Content) string {
	fields := [...]struct {
		name  string
		value string
	}{
		{"final_prompt", c.FinalPrompt},
		{"system_prompt", c.SystemPrompt},
		{"initial_prompt", c.InitialPrompt},
		{"conversation_history", c.ConversationHistory},
	}

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		v := Normalize(f.value)
		if v == "" {
			continue
		}
		parts = append(parts, f.name+":"+v)
	}
	if len(parts) == 0 {
		return ""
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, separator)))
	return hex.EncodeToString(sum[:])
}
