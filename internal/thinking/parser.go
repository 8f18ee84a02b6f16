// Package thinking separates <think>...</think> reasoning blocks from
// response text in streamed model output. Reasoning models emit the tags
// inline, and a tag may arrive split across chunk boundaries.
package thinking

import (
	"regexp"
	"strings"
)

const (
	openTag  = "<think>"
	closeTag = "</think>"
)

type state int

const (
	stateNormal state = iota
	stateThinking
)

// Parser is a streaming state machine with two states. Bytes that could
// be the start of a tag are held back until the next chunk resolves them,
// so feeding one byte at a time yields the same split as feeding the
// whole stream at once.
type Parser struct {
	state    state
	buffer   string
	thinking strings.Builder
	response strings.Builder
}

func NewParser() *Parser { return &Parser{} }

// Feed consumes one streamed chunk and returns the thinking and response
// deltas it resolved.
func (p *Parser) Feed(chunk string) (thinkingDelta, responseDelta string) {
	var think, resp strings.Builder
	text := p.buffer + chunk
	p.buffer = ""

	i := 0
	for i < len(text) {
		tag, out := openTag, &resp
		if p.state == stateThinking {
			tag, out = closeTag, &think
		}

		lt := strings.IndexByte(text[i:], '<')
		if lt < 0 {
			out.WriteString(text[i:])
			break
		}
		lt += i
		out.WriteString(text[i:lt])

		remaining := text[lt:]
		switch {
		case strings.HasPrefix(remaining, tag):
			if p.state == stateNormal {
				p.state = stateThinking
			} else {
				p.state = stateNormal
			}
			i = lt + len(tag)
		case strings.HasPrefix(tag, remaining):
			// Could still become the tag: hold it until the next chunk.
			p.buffer = remaining
			i = len(text)
		default:
			out.WriteByte('<')
			i = lt + 1
		}
	}

	thinkingDelta = think.String()
	responseDelta = resp.String()
	p.thinking.WriteString(thinkingDelta)
	p.response.WriteString(responseDelta)
	return thinkingDelta, responseDelta
}

// Finish flushes any buffered partial tag into the current state's output.
// Call once when the stream ends.
func (p *Parser) Finish() (thinkingDelta, responseDelta string) {
	if p.buffer == "" {
		return "", ""
	}
	b := p.buffer
	p.buffer = ""
	if p.state == stateThinking {
		p.thinking.WriteString(b)
		return b, ""
	}
	p.response.WriteString(b)
	return "", b
}

// Thinking returns all reasoning text seen so far.
func (p *Parser) Thinking() string { return p.thinking.String() }

// Response returns all response text seen so far.
func (p *Parser) Response() string { return p.response.String() }

var (
	thinkBlock   = regexp.MustCompile(`(?s)<think>.*?</think>`)
	thinkCapture = regexp.MustCompile(`(?s)<think>(.*?)</think>`)
)

// StripThinking removes all complete <think> blocks from text.
func StripThinking(text string) string {
	return strings.TrimSpace(thinkBlock.ReplaceAllString(text, ""))
}

// SplitThinking splits complete text into its thinking and response parts.
func SplitThinking(text string) (thinking, response string) {
	var parts []string
	for _, m := range thinkCapture.FindAllStringSubmatch(text, -1) {
		if t := strings.TrimSpace(m[1]); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n"), StripThinking(text)
}
