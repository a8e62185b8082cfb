package keyvalue

import "fmt"

// SyntaxError describes the first structural defect found while parsing.
// Parse still returns the tree built up to and around the defect.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("keyvalue: %s at offset %d", e.Msg, e.Offset)
}

type tokenKind uint8

const (
	tokString tokenKind = iota
	tokOpen
	tokClose
)

type token struct {
	kind   tokenKind
	text   string
	offset int
}

// Parse reads data as an implicit top-level object.
//
// Parsing is lenient: malformed or truncated input never prevents a result.
// A key followed by a closing brace is dropped, a stray opening brace is
// skipped, an unterminated quoted string is discarded, and a closing brace at
// the top level ends the document. The returned tree is always non-nil; the
// error is a *SyntaxError when any of the above was encountered, so callers
// can tell an empty file from a corrupt one.
func Parse(data []byte) (*Node, error) {
	toks, tokErr := tokenize(data)
	p := &parser{toks: toks, end: len(data)}
	if tokErr != nil {
		p.err = tokErr
	}
	root := p.parseObject(0)
	if p.err != nil {
		return root, p.err
	}
	return root, nil
}

// tokenize emits quoted strings without their delimiters and structural
// braces. Everything else outside quotes is ignored.
func tokenize(data []byte) ([]token, *SyntaxError) {
	var (
		toks    []token
		inQuote bool
		start   int
	)
	for i := 0; i < len(data); i++ {
		c := data[i]
		switch {
		case c == '"':
			if inQuote {
				toks = append(toks, token{kind: tokString, text: string(data[start:i]), offset: start - 1})
			} else {
				start = i + 1
			}
			inQuote = !inQuote
		case inQuote:
		case c == '{':
			toks = append(toks, token{kind: tokOpen, offset: i})
		case c == '}':
			toks = append(toks, token{kind: tokClose, offset: i})
		}
	}
	if inQuote {
		return toks, &SyntaxError{Offset: start - 1, Msg: "unterminated quoted string"}
	}
	return toks, nil
}

type parser struct {
	toks []token
	pos  int
	end  int
	err  *SyntaxError
}

func (p *parser) fail(offset int, format string, args ...any) {
	if p.err == nil {
		p.err = &SyntaxError{Offset: offset, Msg: fmt.Sprintf(format, args...)}
	}
}

func (p *parser) parseObject(depth int) *Node {
	obj := NewObject()
	for p.pos < len(p.toks) {
		t := p.toks[p.pos]
		switch t.kind {
		case tokClose:
			p.pos++
			if depth == 0 {
				p.fail(t.offset, "unexpected closing brace")
			}
			return obj
		case tokOpen:
			p.pos++
			p.fail(t.offset, "unexpected opening brace")
			continue
		}

		key := t.text
		p.pos++
		if p.pos >= len(p.toks) {
			p.fail(t.offset, "key %q has no value", key)
			break
		}
		v := p.toks[p.pos]
		switch v.kind {
		case tokOpen:
			p.pos++
			obj.Set(key, p.parseObject(depth+1))
		case tokClose:
			// The key is dropped and the brace consumed with it; the
			// current object continues.
			p.pos++
			p.fail(t.offset, "key %q has no value", key)
		default:
			p.pos++
			obj.Set(key, NewLeaf(v.text))
		}
	}
	if depth > 0 {
		p.fail(p.end, "unclosed object")
	}
	return obj
}
