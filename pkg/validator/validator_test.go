package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateMessageContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"valid", "hello", false},
		{"empty", "", true},
		{"whitespace only", "  \t\n ", true},
		{"at limit", strings.Repeat("a", 1000), false},
		{"over limit", strings.Repeat("a", 1001), true},
		{"multibyte at limit", strings.Repeat("é", 1000), false},
		{"multibyte over limit", strings.Repeat("猫", 1001), true},
		{"emoji", "👍", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateMessageContent(tt.content)
			assert.Equal(t, tt.wantErr, errs.HasErrors())
		})
	}
}

func TestValidationErrorsError(t *testing.T) {
	errs := make(ValidationErrors)
	errs.Add("content", "Message content is required")
	assert.Equal(t, "content: Message content is required", errs.Error())
	assert.True(t, errs.HasErrors())

	assert.False(t, make(ValidationErrors).HasErrors())
}
