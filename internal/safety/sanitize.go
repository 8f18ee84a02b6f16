package safety

// DefaultLogLength caps how much user content a log line may carry.
const DefaultLogLength = 80

// SanitizeForLog strips emails, long tokens, phone numbers and URLs from
// text before it reaches a log line, then truncates to maxLen with an
// ellipsis. maxLen <= 0 uses DefaultLogLength.
func SanitizeForLog(text string, maxLen int) string {
	if text == "" {
		return ""
	}
	if maxLen <= 0 {
		maxLen = DefaultLogLength
	}
	for _, r := range logRedactions {
		text = r.pattern.ReplaceAllString(text, r.replacement)
	}
	if len(text) > maxLen {
		text = text[:maxLen] + "..."
	}
	return text
}
