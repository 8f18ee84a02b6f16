package safety

import (
	"strings"
	"testing"
)

func TestSanitizeForLog(t *testing.T) {
	longText := strings.Repeat("ab ", 40)

	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{
			name:  "email",
			input: "contact jane.doe@example.com please",
			want:  "contact [EMAIL] please",
		},
		{
			name:  "long token",
			input: "key " + strings.Repeat("a", 30) + " leaked",
			want:  "key [TOKEN] leaked",
		},
		{
			name:  "phone number",
			input: "call +12025550123 now",
			want:  "call [PHONE] now",
		},
		{
			name:  "url",
			input: "see https://example.com/x?y=z ok",
			want:  "see [URL] ok",
		},
		{
			name:  "short text untouched",
			input: "hello world",
			want:  "hello world",
		},
		{
			name:   "truncation with ellipsis",
			input:  longText,
			maxLen: 10,
			want:   longText[:10] + "...",
		},
		{
			name:  "zero maxLen uses default",
			input: longText,
			want:  longText[:DefaultLogLength] + "...",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeForLog(tt.input, tt.maxLen)
			if got != tt.want {
				t.Errorf("SanitizeForLog(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestSanitizeForLogRedactsBeforeTruncating(t *testing.T) {
	// The email sits past the cap; redaction must happen first so the
	// truncated line never carries the raw address.
	input := strings.Repeat("a ", 35) + "mail me at secret@corp.example now"
	got := SanitizeForLog(input, DefaultLogLength)
	if strings.Contains(got, "secret@corp.example") {
		t.Errorf("raw email survived: %q", got)
	}
}
