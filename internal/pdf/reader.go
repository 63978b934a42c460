package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformed reports a file the parser cannot make sense of.
var ErrMalformed = errors.New("malformed pdf")

func isWS(b byte) bool {
	switch b {
	case 0x00, 0x09, 0x0a, 0x0c, 0x0d, 0x20:
		return true
	}
	return false
}

func isDelim(b byte) bool {
	switch b {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

type lexer struct {
	data []byte
	pos  int
}

func (l *lexer) eof() bool {
	return l.pos >= len(l.data)
}

// skipWS consumes whitespace and comments (through end of line).
func (l *lexer) skipWS() {
	for !l.eof() {
		b := l.data[l.pos]
		if isWS(b) {
			l.pos++
			continue
		}
		if b == '%' {
			for !l.eof() && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		return
	}
}

// token reads a bare token (keyword or number) up to the next delimiter.
func (l *lexer) token() string {
	l.skipWS()
	start := l.pos
	for !l.eof() && !isWS(l.data[l.pos]) && !isDelim(l.data[l.pos]) {
		l.pos++
	}
	return string(l.data[start:l.pos])
}

// match consumes kw if it appears next (as a full token).
func (l *lexer) match(kw string) bool {
	l.skipWS()
	save := l.pos
	if l.token() == kw {
		return true
	}
	l.pos = save
	return false
}

func (l *lexer) parseName() (Name, error) {
	// caller consumed '/'
	start := l.pos
	for !l.eof() && !isWS(l.data[l.pos]) && !isDelim(l.data[l.pos]) {
		l.pos++
	}
	raw := l.data[start:l.pos]
	if !bytes.ContainsRune(raw, '#') {
		return Name(raw), nil
	}
	var out []byte
	for i := 0; i < len(raw); i++ {
		if raw[i] == '#' && i+2 < len(raw) {
			n, err := strconv.ParseUint(string(raw[i+1:i+3]), 16, 8)
			if err == nil {
				out = append(out, byte(n))
				i += 2
				continue
			}
		}
		out = append(out, raw[i])
	}
	return Name(out), nil
}

func (l *lexer) parseLiteralString() (String, error) {
	// caller consumed '('
	var out []byte
	depth := 1
	for !l.eof() {
		b := l.data[l.pos]
		l.pos++
		switch b {
		case '\\':
			if l.eof() {
				return nil, ErrMalformed
			}
			e := l.data[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '(', ')', '\\':
				out = append(out, e)
			case '\r':
				if !l.eof() && l.data[l.pos] == '\n' {
					l.pos++
				}
			case '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for k := 0; k < 2 && !l.eof(); k++ {
						c := l.data[l.pos]
						if c < '0' || c > '7' {
							break
						}
						v = v*8 + int(c-'0')
						l.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		case '(':
			depth++
			out = append(out, b)
		case ')':
			depth--
			if depth == 0 {
				return String(out), nil
			}
			out = append(out, b)
		default:
			out = append(out, b)
		}
	}
	return nil, ErrMalformed
}

func (l *lexer) parseHexString() (String, error) {
	// caller consumed '<'
	var out []byte
	var hi byte
	have := false
	for !l.eof() {
		b := l.data[l.pos]
		l.pos++
		if b == '>' {
			if have {
				out = append(out, hi<<4)
			}
			return String(out), nil
		}
		var v byte
		switch {
		case b >= '0' && b <= '9':
			v = b - '0'
		case b >= 'a' && b <= 'f':
			v = b - 'a' + 10
		case b >= 'A' && b <= 'F':
			v = b - 'A' + 10
		default:
			continue
		}
		if have {
			out = append(out, hi<<4|v)
			have = false
		} else {
			hi = v
			have = true
		}
	}
	return nil, ErrMalformed
}

func (l *lexer) parseDict() (Dict, error) {
	// caller consumed "<<"
	d := Dict{}
	for {
		l.skipWS()
		if l.eof() {
			return nil, ErrMalformed
		}
		if l.data[l.pos] == '>' {
			if l.pos+1 < len(l.data) && l.data[l.pos+1] == '>' {
				l.pos += 2
				return d, nil
			}
			return nil, ErrMalformed
		}
		if l.data[l.pos] != '/' {
			return nil, fmt.Errorf("%w: expected name key", ErrMalformed)
		}
		l.pos++
		key, err := l.parseName()
		if err != nil {
			return nil, err
		}
		val, err := l.parseValue()
		if err != nil {
			return nil, err
		}
		d[key] = val
	}
}

func (l *lexer) parseArray() (Array, error) {
	// caller consumed '['
	var a Array
	for {
		l.skipWS()
		if l.eof() {
			return nil, ErrMalformed
		}
		if l.data[l.pos] == ']' {
			l.pos++
			return a, nil
		}
		v, err := l.parseValue()
		if err != nil {
			return nil, err
		}
		a = append(a, v)
	}
}

func (l *lexer) parseNumberOrRef() (any, error) {
	tok := l.token()
	if tok == "" {
		return nil, ErrMalformed
	}
	if i, err := strconv.ParseInt(tok, 10, 64); err == nil {
		// lookahead for "gen R"
		save := l.pos
		genTok := l.token()
		if gen, err := strconv.ParseInt(genTok, 10, 64); err == nil {
			if l.match("R") {
				return Ref{Num: int(i), Gen: int(gen)}, nil
			}
		}
		l.pos = save
		return i, nil
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return f, nil
	}
	return nil, fmt.Errorf("%w: bad number %q", ErrMalformed, tok)
}

func (l *lexer) parseValue() (any, error) {
	l.skipWS()
	if l.eof() {
		return nil, ErrMalformed
	}
	b := l.data[l.pos]
	switch {
	case b == '<':
		if l.pos+1 < len(l.data) && l.data[l.pos+1] == '<' {
			l.pos += 2
			return l.parseDict()
		}
		l.pos++
		return l.parseHexString()
	case b == '(':
		l.pos++
		return l.parseLiteralString()
	case b == '[':
		l.pos++
		return l.parseArray()
	case b == '/':
		l.pos++
		n, err := l.parseName()
		if err != nil {
			return nil, err
		}
		return n, nil
	case b == '+' || b == '-' || b == '.' || (b >= '0' && b <= '9'):
		return l.parseNumberOrRef()
	default:
		switch tok := l.token(); tok {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null":
			return nil, nil
		default:
			return nil, fmt.Errorf("%w: unexpected token %q", ErrMalformed, tok)
		}
	}
}

var kwEndstream = []byte("endstream")

// parseStreamData reads the raw stream payload following a stream dict.
func (l *lexer) parseStreamData(d Dict, length any) ([]byte, error) {
	// EOL after the "stream" keyword
	if !l.eof() && l.data[l.pos] == '\r' {
		l.pos++
	}
	if !l.eof() && l.data[l.pos] == '\n' {
		l.pos++
	}
	start := l.pos

	if n, ok := length.(int64); ok && start+int(n) <= len(l.data) {
		end := start + int(n)
		rest := l.data[end:]
		// trust /Length only when endstream actually follows
		probe := rest
		if len(probe) > 32 {
			probe = probe[:32]
		}
		if idx := bytes.Index(probe, kwEndstream); idx >= 0 {
			l.pos = end + idx + len(kwEndstream)
			return l.data[start:end], nil
		}
	}

	// /Length missing, indirect, or wrong: scan
	idx := bytes.Index(l.data[start:], kwEndstream)
	if idx < 0 {
		return nil, fmt.Errorf("%w: unterminated stream", ErrMalformed)
	}
	end := start + idx
	l.pos = end + len(kwEndstream)
	data := l.data[start:end]
	// strip the EOL preceding endstream
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}
	if len(data) > 0 && data[len(data)-1] == '\r' {
		data = data[:len(data)-1]
	}
	return data, nil
}

// skipXref consumes a classic xref table.
func (l *lexer) skipXref() {
	for {
		l.skipWS()
		save := l.pos
		startTok := l.token()
		start, err1 := strconv.Atoi(startTok)
		countTok := l.token()
		count, err2 := strconv.Atoi(countTok)
		if err1 != nil || err2 != nil || start < 0 || count < 0 {
			l.pos = save
			return
		}
		for i := 0; i < count; i++ {
			l.token() // offset
			l.token() // generation
			l.token() // n / f
		}
	}
}

// Parse scans the whole file for indirect objects, ignoring xref offsets.
// Later definitions of an object number win, matching incremental updates.
func Parse(data []byte) (*Document, error) {
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return nil, fmt.Errorf("%w: missing header", ErrMalformed)
	}

	doc := &Document{Objects: map[int]any{}, Trailer: Dict{}}
	l := &lexer{data: data}

	for {
		l.skipWS()
		if l.eof() {
			break
		}

		if l.match("xref") {
			l.skipXref()
			continue
		}
		if l.match("trailer") {
			v, err := l.parseValue()
			if err != nil {
				return nil, err
			}
			if d, ok := v.(Dict); ok {
				// later trailers overlay earlier ones
				for k, val := range d {
					doc.Trailer[k] = val
				}
			}
			continue
		}
		if l.match("startxref") {
			l.token()
			continue
		}

		numTok := l.token()
		num, err := strconv.Atoi(numTok)
		if err != nil {
			return nil, fmt.Errorf("%w: expected object number, got %q", ErrMalformed, numTok)
		}
		if _, err := strconv.Atoi(l.token()); err != nil {
			return nil, fmt.Errorf("%w: expected generation", ErrMalformed)
		}
		if !l.match("obj") {
			return nil, fmt.Errorf("%w: expected obj keyword", ErrMalformed)
		}

		val, err := l.parseValue()
		if err != nil {
			return nil, err
		}

		if l.match("stream") {
			d, ok := val.(Dict)
			if !ok {
				return nil, fmt.Errorf("%w: stream without dict", ErrMalformed)
			}
			// an indirect /Length is usually defined later; resolve by scan
			length := d["Length"]
			if _, ok := length.(int64); !ok {
				length = nil
			}
			sd, err := l.parseStreamData(d, length)
			if err != nil {
				return nil, err
			}
			val = &Stream{Dict: d, Data: sd}
		}

		// tolerate garbage before endobj
		if !l.match("endobj") {
			idx := bytes.Index(l.data[l.pos:], []byte("endobj"))
			if idx < 0 {
				return nil, fmt.Errorf("%w: unterminated object %d", ErrMalformed, num)
			}
			l.pos += idx + len("endobj")
		}

		doc.Objects[num] = val
	}

	if _, ok := doc.Trailer["Root"]; !ok {
		// recover the catalog by type scan
		for n, obj := range doc.Objects {
			if d, ok := obj.(Dict); ok && d["Type"] == Name("Catalog") {
				doc.Trailer["Root"] = Ref{Num: n}
				break
			}
		}
	}
	if _, ok := doc.Trailer["Root"]; !ok {
		return nil, fmt.Errorf("%w: no catalog", ErrMalformed)
	}

	if _, ok := doc.Trailer["Encrypt"]; ok {
		doc.encrypted = true
	}
	return doc, nil
}
