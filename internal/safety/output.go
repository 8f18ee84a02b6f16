package safety

import (
	"log/slog"
	"regexp"
)

// redaction is one output scan pass. selfRefOnly passes fire only when
// the match sits inside a self-referential window (the bot describing
// its own internals), so user-quoted names survive.
type redaction struct {
	pattern     *regexp.Regexp
	category    string
	replacement string
	selfRefOnly bool
}

// outputRedactions run in order. Infrastructure and secrets are
// unconditional; internal names need self-referential context; PII last.
var outputRedactions = []redaction{
	{infraURLs, "infrastructure", "[REDACTED]", false},
	{envVars, "env_variable", "[REDACTED]", false},
	{filePaths, "file_path", "[REDACTED]", false},
	{dotenvRef, "dotenv", "[REDACTED]", false},
	{apiKeyPattern, "api_key", "[REDACTED]", false},
	{jwtPattern, "jwt_token", "[REDACTED]", false},
	{internalModelNames, "model_name", "an AI model", true},
	{internalFrameworks, "framework", "the system", true},
	{internalAPIPaths, "api_path", "[REDACTED]", true},
	{ssnPattern, "ssn", "[REDACTED]", false},
	{creditCardPattern, "credit_card", "[REDACTED]", false},
}

// maxOutputViolations is the cutoff past which the whole reply is
// replaced rather than patched.
const maxOutputViolations = 5

// FilterOutput scans a complete model reply for infrastructure leaks,
// secrets, internal names and PII. Matches inside code spans are left
// alone. Returns the redacted text, the violation categories in scan
// order, and whether anything changed. More than five violations replace
// the entire reply with the safe fallback. Idempotent: filtering already
// filtered text changes nothing.
func FilterOutput(text string) (filtered string, violations []string, modified bool) {
	if text == "" {
		return text, nil, false
	}

	filtered = text
	for _, r := range outputRedactions {
		spans := codeSpans(filtered)
		matches := r.pattern.FindAllStringIndex(filtered, -1)

		// Right to left so earlier offsets stay valid after replacement.
		for i := len(matches) - 1; i >= 0; i-- {
			m := matches[i]
			if overlapsSpan(spans, m[0], m[1]) {
				continue
			}
			if r.selfRefOnly && !isSelfReferential(filtered, m[0]) {
				continue
			}
			violations = append(violations, r.category)
			filtered = filtered[:m[0]] + r.replacement + filtered[m[1]:]
		}
	}

	if len(violations) > maxOutputViolations {
		slog.Warn("output blocked", "violations", len(violations), "categories", violations)
		return SafeFallback, violations, true
	}
	if len(violations) > 0 {
		slog.Info("output filtered", "redactions", len(violations), "categories", violations)
	}
	return filtered, violations, len(violations) > 0
}

// codeSpans returns the byte ranges of fenced and inline code.
func codeSpans(text string) [][2]int {
	var spans [][2]int
	for _, m := range codeBlockPattern.FindAllStringIndex(text, -1) {
		spans = append(spans, [2]int{m[0], m[1]})
	}
	for _, m := range inlineCodePattern.FindAllStringIndex(text, -1) {
		spans = append(spans, [2]int{m[0], m[1]})
	}
	return spans
}

func overlapsSpan(spans [][2]int, start, end int) bool {
	for _, s := range spans {
		if start < s[1] && end > s[0] {
			return true
		}
	}
	return false
}

// isSelfReferential checks the 80 bytes before the match for phrasing
// like "I am", "powered by", "my model".
func isSelfReferential(text string, matchStart int) bool {
	windowStart := matchStart - 80
	if windowStart < 0 {
		windowStart = 0
	}
	return selfRefPattern.MatchString(text[windowStart:matchStart])
}
