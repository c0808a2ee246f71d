// ABOUTME: Safe arithmetic expression evaluator for the calculate tool
// ABOUTME: Recursive descent over numbers and operators only; no identifiers, no calls

package builtins

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// maxExprLength bounds expression input before parsing.
const maxExprLength = 256

var errBadExpression = errors.New("invalid expression")

// evaluate parses and evaluates an arithmetic expression supporting
// + - * / %, unary minus, parentheses, and decimal numbers.
func evaluate(expr string) (float64, error) {
	if len(expr) > maxExprLength {
		return 0, fmt.Errorf("%w: too long", errBadExpression)
	}
	p := &exprParser{input: expr}
	v, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return 0, fmt.Errorf("%w: unexpected %q at position %d", errBadExpression, p.input[p.pos], p.pos)
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("%w: result is not finite", errBadExpression)
	}
	return v, nil
}

// round rounds to the given number of decimal places.
func round(v float64, precision int) float64 {
	if precision < 0 {
		precision = 0
	}
	if precision > 12 {
		precision = 12
	}
	shift := math.Pow(10, float64(precision))
	return math.Round(v*shift) / shift
}

type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *exprParser) peek() (byte, bool) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0, false
	}
	return p.input[p.pos], true
}

// parseExpr handles + and - at the lowest precedence.
func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		ch, ok := p.peek()
		if !ok || (ch != '+' && ch != '-') {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if ch == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

// parseTerm handles * / and % above + and -.
func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for {
		ch, ok := p.peek()
		if !ok || (ch != '*' && ch != '/' && ch != '%') {
			return left, nil
		}
		p.pos++
		right, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		switch ch {
		case '*':
			left *= right
		case '/':
			if right == 0 {
				return 0, fmt.Errorf("%w: division by zero", errBadExpression)
			}
			left /= right
		case '%':
			if right == 0 {
				return 0, fmt.Errorf("%w: division by zero", errBadExpression)
			}
			left = math.Mod(left, right)
		}
	}
}

// parseFactor handles numbers, unary minus, and parenthesized expressions.
func (p *exprParser) parseFactor() (float64, error) {
	ch, ok := p.peek()
	if !ok {
		return 0, fmt.Errorf("%w: unexpected end of input", errBadExpression)
	}

	switch {
	case ch == '-':
		p.pos++
		v, err := p.parseFactor()
		return -v, err
	case ch == '(':
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if ch, ok := p.peek(); !ok || ch != ')' {
			return 0, fmt.Errorf("%w: missing closing parenthesis", errBadExpression)
		}
		p.pos++
		return v, nil
	case unicode.IsDigit(rune(ch)) || ch == '.':
		return p.parseNumber()
	default:
		return 0, fmt.Errorf("%w: unexpected %q at position %d", errBadExpression, ch, p.pos)
	}
}

func (p *exprParser) parseNumber() (float64, error) {
	start := p.pos
	for p.pos < len(p.input) {
		ch := p.input[p.pos]
		if unicode.IsDigit(rune(ch)) || ch == '.' {
			p.pos++
			continue
		}
		break
	}
	text := p.input[start:p.pos]
	if strings.Count(text, ".") > 1 {
		return 0, fmt.Errorf("%w: malformed number %q", errBadExpression, text)
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed number %q", errBadExpression, text)
	}
	return v, nil
}
