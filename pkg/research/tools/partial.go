package tools

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// partialFields reads the top-level string fields of a JSON object that may
// be cut off anywhere. A string value that is still open is returned with
// what has arrived so far. Non-string values are skipped.
func partialFields(buf string) map[string]string {
	out := map[string]string{}
	p := &scanner{s: buf}
	p.ws()
	if !p.eat('{') {
		return out
	}
	for {
		p.ws()
		if p.done() || p.peek() == '}' {
			return out
		}
		if p.peek() == ',' {
			p.i++
			continue
		}
		key, closed := p.str()
		if !closed {
			return out
		}
		p.ws()
		if !p.eat(':') {
			return out
		}
		p.ws()
		if p.done() {
			return out
		}
		if p.peek() == '"' {
			val, _ := p.str()
			out[key] = val
			continue
		}
		if !p.skipValue() {
			return out
		}
	}
}

type scanner struct {
	s string
	i int
}

func (p *scanner) done() bool { return p.i >= len(p.s) }

func (p *scanner) peek() byte { return p.s[p.i] }

func (p *scanner) eat(c byte) bool {
	if !p.done() && p.s[p.i] == c {
		p.i++
		return true
	}
	return false
}

func (p *scanner) ws() {
	for !p.done() && strings.IndexByte(" \t\r\n", p.s[p.i]) >= 0 {
		p.i++
	}
}

// str decodes a string starting at the opening quote. It reports whether the
// closing quote was seen.
func (p *scanner) str() (string, bool) {
	if !p.eat('"') {
		return "", false
	}
	var sb strings.Builder
	for !p.done() {
		c := p.s[p.i]
		switch {
		case c == '"':
			p.i++
			return sb.String(), true
		case c == '\\':
			if p.i+1 >= len(p.s) {
				p.i = len(p.s)
				return sb.String(), false
			}
			e := p.s[p.i+1]
			switch e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case 'b':
				sb.WriteByte('\b')
			case 'f':
				sb.WriteByte('\f')
			case 'u':
				if p.i+6 > len(p.s) {
					p.i = len(p.s)
					return sb.String(), false
				}
				n, err := strconv.ParseUint(p.s[p.i+2:p.i+6], 16, 32)
				if err != nil {
					n = utf8.RuneError
				}
				sb.WriteRune(rune(n))
				p.i += 6
				continue
			default:
				sb.WriteByte(e)
			}
			p.i += 2
		default:
			sb.WriteByte(c)
			p.i++
		}
	}
	return sb.String(), false
}

// skipValue moves past a non-string value. Reports false when the input ends
// inside it.
func (p *scanner) skipValue() bool {
	depth := 0
	for !p.done() {
		switch c := p.s[p.i]; c {
		case '"':
			if _, closed := p.str(); !closed {
				return false
			}
			continue
		case '{', '[':
			depth++
		case '}', ']':
			if depth == 0 {
				return true
			}
			depth--
		case ',':
			if depth == 0 {
				return true
			}
		}
		p.i++
	}
	return false
}
