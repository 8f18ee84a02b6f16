package channels

// SplitMessage breaks text into parts no longer than limit runes each.
// Parts split at the last newline inside the window when one exists past
// the halfway point; otherwise they break hard at the limit. Leading
// newlines are stripped from each remainder so continuation parts don't
// start with blank lines.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		return []string{text}
	}

	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for len(runes) > 0 {
		if len(runes) <= limit {
			parts = append(parts, string(runes))
			break
		}

		splitPos := lastNewline(runes[:limit])
		if splitPos == -1 || splitPos < limit/2 {
			splitPos = limit
		}

		parts = append(parts, string(runes[:splitPos]))
		runes = runes[splitPos:]
		for len(runes) > 0 && runes[0] == '\n' {
			runes = runes[1:]
		}
	}
	return parts
}

func lastNewline(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == '\n' {
			return i
		}
	}
	return -1
}
