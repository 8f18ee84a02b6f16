package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CalculateTool evaluates arithmetic expressions with a small safe
// parser. Anything it cannot handle is handed back to the model to
// solve step by step.
type CalculateTool struct{}

func NewCalculateTool() *CalculateTool { return &CalculateTool{} }

func (t *CalculateTool) Name() string { return "calculate" }
func (t *CalculateTool) Description() string {
	return "Solve mathematical expressions. Handles arithmetic with +, -, *, /, //, %, " +
		"^ and parentheses. Use this for precise calculations."
}
func (t *CalculateTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "The math expression to solve",
			},
		},
		"required": []string{"expression"},
	}
}

func (t *CalculateTool) Execute(ctx context.Context, args map[string]any) *Result {
	expr := strings.TrimSpace(stringArg(args, "expression"))
	if expr == "" {
		return ErrorResult("Error: No expression provided")
	}

	if value, ok := evalArithmetic(expr); ok {
		return NewResult(fmt.Sprintf("%s = %s", expr, formatNumber(value))).
			WithMeta("method", "eval").
			WithMeta("result", value)
	}

	return NewResult(fmt.Sprintf("Could not compute '%s' directly. Please solve this step by step.", expr)).
		WithMeta("method", "llm_fallback")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// evalArithmetic parses and evaluates a plain arithmetic expression.
// Supported: + - * / // % ** ^ unary +- parentheses. Returns false for
// anything else, including division by zero.
func evalArithmetic(expr string) (float64, bool) {
	p := &exprParser{input: []rune(expr)}
	v, err := p.parseExpr()
	if err != nil {
		return 0, false
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return 0, false
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

type exprParser struct {
	input []rune
	pos   int
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

// accept consumes the operator if it is next, longest tokens first.
func (p *exprParser) accept(op string) bool {
	p.skipSpace()
	if p.pos+len(op) > len(p.input) {
		return false
	}
	if string(p.input[p.pos:p.pos+len(op)]) != op {
		return false
	}
	p.pos += len(op)
	return true
}

func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		switch {
		case p.accept("+"):
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left += right
		case p.accept("-"):
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		switch {
		case p.accept("//"):
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left = math.Floor(left / right)
		case p.accept("*"):
			// Bare multiply only: "**" is consumed by parsePower before
			// the term loop ever sees it.
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			left *= right
		case p.accept("/"):
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		case p.accept("%"):
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("modulo by zero")
			}
			left = left - right*math.Floor(left/right)
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseUnary() (float64, error) {
	if p.accept("-") {
		v, err := p.parseUnary()
		return -v, err
	}
	if p.accept("+") {
		return p.parseUnary()
	}
	return p.parsePower()
}

func (p *exprParser) parsePower() (float64, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return 0, err
	}
	if p.accept("**") || p.accept("^") {
		// Right-associative; the exponent may carry its own sign.
		exp, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return math.Pow(base, exp), nil
	}
	return base, nil
}

func (p *exprParser) parsePrimary() (float64, error) {
	p.skipSpace()
	if p.accept("(") {
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if !p.accept(")") {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		return v, nil
	}
	return p.parseNumber()
}

func (p *exprParser) parseNumber() (float64, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= '0' && c <= '9') || c == '.' {
			p.pos++
			continue
		}
		// Exponent suffix, e.g. 1.5e-3.
		if (c == 'e' || c == 'E') && p.pos > start {
			next := p.pos + 1
			if next < len(p.input) && (p.input[next] == '+' || p.input[next] == '-') {
				next++
			}
			if next < len(p.input) && p.input[next] >= '0' && p.input[next] <= '9' {
				p.pos = next
				continue
			}
		}
		break
	}
	if p.pos == start {
		return 0, fmt.Errorf("expected number at position %d", start)
	}
	v, err := strconv.ParseFloat(string(p.input[start:p.pos]), 64)
	if err != nil {
		return 0, fmt.Errorf("bad number: %w", err)
	}
	return v, nil
}
