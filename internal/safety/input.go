package safety

import "log/slog"

// InputVerdict is the outcome of screening one user message.
type InputVerdict struct {
	Safe        bool
	ThreatLevel string   // none, low, medium, high
	Attacks     []string // detected injection families or content categories
	Warning     string   // user-facing reply when not safe
	Text        string   // input after length capping
}

// CheckInput runs the full inbound pipeline: length cap, probe block,
// injection detection, content safety. The returned Text must be used in
// place of the original input.
func (f *Filter) CheckInput(text, userID string) InputVerdict {
	capped, truncated := TruncateInput(text, "message")
	if truncated {
		slog.Debug("input truncated", "user", userID, "len", len(text))
	}

	v := f.checkInjection(capped, userID)
	if !v.Safe {
		return v
	}

	if cats, severity := checkContent(capped); len(cats) > 0 {
		slog.Warn("content safety violation", "user", userID, "categories", cats, "severity", severity)
		return InputVerdict{
			Safe:        false,
			ThreatLevel: severity,
			Attacks:     cats,
			Warning:     ContentBlockedMessage,
			Text:        capped,
		}
	}

	v.Text = capped
	return v
}

// checkInjection screens for prompt-injection families and maintains the
// probe tracker.
func (f *Filter) checkInjection(text, userID string) InputVerdict {
	if text == "" {
		return InputVerdict{Safe: true, ThreatLevel: "none", Text: text}
	}

	if f.isRateLimited(userID) {
		return InputVerdict{
			Safe:        false,
			ThreatLevel: "high",
			Attacks:     []string{"rate_limited"},
			Warning:     InputBlockedMessage,
			Text:        text,
		}
	}

	var detected []string
	for _, family := range injectionFamilyOrder {
		for _, p := range injectionPatterns[family] {
			if p.MatchString(text) {
				if !isEducational(text) {
					detected = append(detected, family)
				}
				break
			}
		}
	}
	if len(detected) == 0 {
		return InputVerdict{Safe: true, ThreatLevel: "none", Text: text}
	}

	level := classifyThreat(detected)
	blocked := f.recordProbe(userID)

	if level == "high" || level == "medium" || blocked {
		slog.Warn("input blocked", "user", userID, "threat", level, "attacks", detected)
		return InputVerdict{
			Safe:        false,
			ThreatLevel: level,
			Attacks:     detected,
			Warning:     InputBlockedMessage,
			Text:        text,
		}
	}

	slog.Info("input flagged", "user", userID, "threat", level, "attacks", detected)
	return InputVerdict{Safe: true, ThreatLevel: level, Attacks: detected, Text: text}
}

// isEducational reports whether the text reads as a question about a
// tool or concept rather than an attack ("how to ignore files in git").
func isEducational(text string) bool {
	for _, p := range safeInputContexts {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func classifyThreat(detected []string) string {
	distinct := make(map[string]bool, len(detected))
	high := false
	medium := false
	for _, d := range detected {
		distinct[d] = true
		if highThreatFamilies[d] {
			high = true
		}
		if mediumThreatFamilies[d] {
			medium = true
		}
	}
	switch {
	case high || len(distinct) >= 2:
		return "high"
	case medium:
		return "medium"
	default:
		return "low"
	}
}

// checkContent screens for harmful content categories. These block
// unconditionally, with no educational suppression.
func checkContent(text string) (categories []string, severity string) {
	if text == "" {
		return nil, "none"
	}

	for _, category := range contentCategoryOrder {
		for _, p := range contentSafetyPatterns[category] {
			if p.MatchString(text) {
				categories = append(categories, category)
				break
			}
		}
	}
	if len(categories) == 0 {
		return nil, "none"
	}

	severity = "medium"
	for _, c := range categories {
		if criticalCategories[c] {
			return categories, "critical"
		}
		if highCategories[c] {
			severity = "high"
		}
	}
	return categories, severity
}
