package http

import (
	"strings"
	"unicode/utf8"

	"taiyari/internal/entities"
)

// Input validation constants. Chat message limits live in the binding tags
// of chatRequest.
const (
	MaxKnowledgeLength  = 200000
	maxRequestBodyBytes = 2 << 20
)

// ValidSlug checks if a slug is safe (alphanumeric + underscore + hyphen)
func ValidSlug(s string) bool {
	return entities.ValidTenantID(s)
}

// SanitizeString removes null bytes and invalid UTF-8
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return s
}
