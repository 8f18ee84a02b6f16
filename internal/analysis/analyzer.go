// Package analysis derives conversation context from recent history using
// cheap lexical heuristics: current topic, conversation type, recurring
// entities and the user's intent. No model call is involved; the result
// feeds straight into system prompt assembly.
package analysis

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rotbotlabs/rotbot/internal/sessions"
)

// Analysis is the distilled view of a conversation used to enrich the
// system prompt. Zero-valued fields mean "nothing detected".
type Analysis struct {
	Topic            string
	ConversationType string
	KeyEntities      []string
	UserIntent       string
	Referent         string
}

// Analyze inspects the session history and returns the detected context.
// Conversations shorter than two turns carry no usable signal and yield
// nil.
func Analyze(turns []sessions.Turn) *Analysis {
	if len(turns) < 2 {
		return nil
	}
	return &Analysis{
		Topic:            detectTopic(turns),
		ConversationType: detectConversationType(turns),
		KeyEntities:      extractKeyEntities(turns),
		UserIntent:       detectUserIntent(turns),
		Referent:         findReferent(turns),
	}
}

// lastN returns the trailing n turns.
func lastN(turns []sessions.Turn, n int) []sessions.Turn {
	if len(turns) > n {
		return turns[len(turns)-n:]
	}
	return turns
}

func joinedContent(turns []sessions.Turn) string {
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		parts = append(parts, t.Content)
	}
	return strings.Join(parts, " ")
}

func tokenize(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

// detectTopic scores each topic by keyword overlap with the last six
// turns. A topic needs at least two distinct hits to count.
func detectTopic(turns []sessions.Turn) string {
	words := make(map[string]bool)
	for _, w := range tokenize(joinedContent(lastN(turns, 6))) {
		words[w] = true
	}

	best, bestScore := "", 0
	for _, topic := range topicOrder {
		score := 0
		for _, kw := range topicKeywords[topic] {
			if words[kw] {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = topic, score
		}
	}
	if bestScore >= 2 {
		return best
	}
	return ""
}

// detectConversationType classifies the last six turns by what the user
// messages look like: code or errors, mostly questions, idea language,
// short chatter, or longer-form discussion.
func detectConversationType(turns []sessions.Turn) string {
	var userMsgs []string
	for _, t := range lastN(turns, 6) {
		if t.Role == "user" {
			userMsgs = append(userMsgs, t.Content)
		}
	}
	if len(userMsgs) == 0 {
		return "general"
	}
	combined := strings.Join(userMsgs, " ")

	if codeMarkers.MatchString(combined) {
		return "debugging"
	}

	questions := 0
	for _, m := range userMsgs {
		if strings.Contains(m, "?") {
			questions++
		}
	}
	if float64(questions) >= float64(len(userMsgs))*0.6 {
		if learningMarkers.MatchString(combined) {
			return "learning"
		}
		return "Q&A"
	}

	if brainstormMarkers.MatchString(combined) {
		return "brainstorming"
	}

	total := 0
	for _, m := range userMsgs {
		total += utf8.RuneCountInString(m)
	}
	if float64(total)/float64(len(userMsgs)) < 15 {
		return "casual chat"
	}
	return "discussion"
}

// extractKeyEntities finds recurring meaningful words in the last four
// turns: top eight words appearing at least twice, or the top five
// overall when repetition is too sparse.
func extractKeyEntities(turns []sessions.Turn) []string {
	type wordCount struct {
		word  string
		count int
	}

	counts := make(map[string]*wordCount)
	var ordered []*wordCount
	for _, w := range tokenize(joinedContent(lastN(turns, 4))) {
		if stopWords[w] || len(w) <= 2 {
			continue
		}
		wc, ok := counts[w]
		if !ok {
			wc = &wordCount{word: w}
			counts[w] = wc
			ordered = append(ordered, wc)
		}
		wc.count++
	}

	// Stable sort keeps first-seen order between equal counts.
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].count > ordered[j].count
	})

	var entities []string
	for _, wc := range ordered {
		if len(entities) == 8 {
			break
		}
		if wc.count >= 2 {
			entities = append(entities, wc.word)
		}
	}
	if len(entities) < 3 {
		entities = entities[:0]
		for _, wc := range ordered {
			if len(entities) == 5 {
				break
			}
			entities = append(entities, wc.word)
		}
	}
	return entities
}

func lastUserContent(turns []sessions.Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == "user" {
			return turns[i].Content
		}
	}
	return ""
}

// detectUserIntent classifies the latest user message; the first
// matching intent wins.
func detectUserIntent(turns []sessions.Turn) string {
	text := strings.TrimSpace(lastUserContent(turns))
	if text == "" {
		return "general"
	}
	for _, c := range intentChecks {
		for _, p := range c.patterns {
			if p.MatchString(text) {
				return c.intent
			}
		}
	}
	return "general"
}

// findReferent resolves bare pronouns in the latest user message to the
// most prominent entity of the preceding turns.
func findReferent(turns []sessions.Turn) string {
	if len(turns) < 2 {
		return ""
	}
	last := strings.ToLower(lastUserContent(turns))
	if last == "" || !referencePronouns.MatchString(last) {
		return ""
	}
	entities := extractKeyEntities(turns[:len(turns)-1])
	if len(entities) == 0 {
		return ""
	}
	return entities[0]
}
