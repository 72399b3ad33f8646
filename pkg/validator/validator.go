package validator

import (
	"strings"
	"unicode/utf8"
)

const maxMessageLen = 1000

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for field, msg := range v {
		parts = append(parts, field+": "+msg)
	}
	return strings.Join(parts, "; ")
}

// ValidateMessageContent checks a chat message body. Length is counted in
// runes so multi-byte scripts get the full budget.
func ValidateMessageContent(content string) ValidationErrors {
	errs := make(ValidationErrors)

	if strings.TrimSpace(content) == "" {
		errs.Add("content", "Message content is required")
	} else if utf8.RuneCountInString(content) > maxMessageLen {
		errs.Add("content", "Message content exceeds 1000 characters")
	}

	return errs
}
