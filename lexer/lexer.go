// Package lexer turns NAAb source text into a token stream (§4.2).
package lexer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/naab-lang/naab/config"
	"github.com/naab-lang/naab/errs"
	"github.com/naab-lang/naab/token"
)

// PolyglotBlock is the verbatim body of a polyglot expression, captured
// line-oriented so foreign-language indentation survives (§4.2).
type PolyglotBlock struct {
	Language string
	Bindings []string
	JSON     bool // leading "-> JSON" directive requesting sovereign-pipe framing
	Body     string
	Pos      token.Pos
}

// Lexer produces tokens one at a time from src.
type Lexer struct {
	file string
	src  string
	caps config.Caps

	pos    int // byte offset of next rune to read
	line   int
	col    int
	eofHit bool

	// polyglots queues block bodies captured eagerly as POLYGLOT_OPEN tokens
	// are produced. The parser pops them in order via TakePolyglot: lexing
	// order equals consumption order, so parser lookahead past an open token
	// cannot lose a body.
	polyglots []*PolyglotBlock
}

// New creates a Lexer over src from the named file, enforcing the caps in c
// (pass config.DefaultCaps() for defaults).
func New(file, src string, c config.Caps) (*Lexer, error) {
	if int64(len(src)) > c.SourceFileBytes {
		return nil, errs.New(errs.ResourceLimit, token.Pos{File: file, Line: 1, Column: 1},
			"source file exceeds cap of %d bytes", c.SourceFileBytes)
	}
	// Tolerate a shebang line (§6 External interfaces).
	if strings.HasPrefix(src, "#!") {
		if idx := strings.IndexByte(src, '\n'); idx >= 0 {
			src = "//" + src[2:]
		}
	}
	return &Lexer{file: file, src: src, caps: c, line: 1, col: 1}, nil
}

// TakePolyglot pops the oldest queued polyglot block body, one per
// POLYGLOT_OPEN token produced, or nil if none is queued.
func (l *Lexer) TakePolyglot() *PolyglotBlock {
	if len(l.polyglots) == 0 {
		return nil
	}
	blk := l.polyglots[0]
	l.polyglots = l.polyglots[1:]
	return blk
}

func (l *Lexer) pos0() token.Pos { return token.Pos{File: l.file, Line: l.line, Column: l.col} }

func (l *Lexer) peekRune() (rune, int) {
	if l.pos >= len(l.src) {
		return 0, 0
	}
	r, size := utf8.DecodeRuneInString(l.src[l.pos:])
	return r, size
}

func (l *Lexer) advance() rune {
	r, size := l.peekRune()
	if size == 0 {
		return 0
	}
	l.pos += size
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *Lexer) peekAt(offset int) byte {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

// Next returns the next token, or a SyntaxError.
func (l *Lexer) Next() (token.Token, error) {
	if err := l.skipTrivia(); err != nil {
		return token.Token{}, err
	}
	start := l.pos0()
	r, size := l.peekRune()
	if size == 0 {
		if l.eofHit {
			return token.Token{Kind: token.EOF, Pos: start}, nil
		}
		l.eofHit = true
		return token.Token{Kind: token.EOF, Pos: start}, nil
	}

	switch {
	case r == '\n':
		l.advance()
		return token.Token{Kind: token.SEMI, Lexeme: "\n", Pos: start}, nil
	case r == ';':
		l.advance()
		return token.Token{Kind: token.SEMI, Lexeme: ";", Pos: start}, nil
	case unicode.IsLetter(r) || r == '_':
		return l.lexIdent(start)
	case unicode.IsDigit(r):
		return l.lexNumber(start)
	case r == '"' || r == '\'':
		return l.lexString(start, r)
	case r == '<':
		return l.lexLessOrPolyglot(start)
	}
	return l.lexOperator(start)
}

// skipTrivia consumes whitespace (except newline, which is significant) and
// comments. It does not consume leading newlines.
func (l *Lexer) skipTrivia() error {
	for {
		r, size := l.peekRune()
		if size == 0 {
			return nil
		}
		switch {
		case r == ' ' || r == '\t' || r == '\r':
			l.advance()
		case r == '/' && l.peekAt(1) == '/':
			for {
				r, sz := l.peekRune()
				if sz == 0 || r == '\n' {
					break
				}
				l.advance()
			}
		case r == '#':
			for {
				r, sz := l.peekRune()
				if sz == 0 || r == '\n' {
					break
				}
				l.advance()
			}
		case r == '/' && l.peekAt(1) == '*':
			startPos := l.pos0()
			l.advance()
			l.advance()
			closed := false
			for {
				r, sz := l.peekRune()
				if sz == 0 {
					break
				}
				if r == '*' && l.peekAt(1) == '/' {
					l.advance()
					l.advance()
					closed = true
					break
				}
				l.advance()
			}
			if !closed {
				return errs.New(errs.Syntax, startPos, "unterminated block comment")
			}
		default:
			return nil
		}
	}
}

var identTail = func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' }

func (l *Lexer) lexIdent(start token.Pos) (token.Token, error) {
	var b strings.Builder
	for {
		r, size := l.peekRune()
		if size == 0 || !identTail(r) {
			break
		}
		b.WriteRune(r)
		l.advance()
	}
	text := b.String()
	return token.Token{Kind: token.Lookup(text), Lexeme: text, Pos: start}, nil
}

func (l *Lexer) lexNumber(start token.Pos) (token.Token, error) {
	var b strings.Builder
	isFloat := false
	for {
		r, size := l.peekRune()
		if size == 0 || !unicode.IsDigit(r) {
			break
		}
		b.WriteRune(r)
		l.advance()
	}
	// Fractional part. The range operator ".." must not be mistaken for a
	// float, so '.' is only consumed here when it is not immediately followed
	// by another '.'.
	if l.peekAt(0) == '.' && l.peekAt(1) != '.' {
		isFloat = true
		b.WriteByte('.')
		l.advance()
		for {
			r, size := l.peekRune()
			if size == 0 || !unicode.IsDigit(r) {
				break
			}
			b.WriteRune(r)
			l.advance()
		}
	}
	text := b.String()
	if isFloat {
		return token.Token{Kind: token.FLOAT, Lexeme: text, Pos: start}, nil
	}
	if !fitsInt64(text) {
		return token.Token{}, errs.New(errs.Syntax, start, "integer literal %s overflows 64-bit range", text)
	}
	return token.Token{Kind: token.INT, Lexeme: text, Pos: start}, nil
}

// fitsInt64 reports whether the decimal digit string text fits in [0, 2^63-1],
// the accepted range for a positive integer literal (§8 boundary behavior:
// 2^63-1 accepted, 2^63 rejected).
func fitsInt64(text string) bool {
	const maxInt64 = "9223372036854775807"
	text = strings.TrimLeft(text, "0")
	if text == "" {
		return true
	}
	if len(text) < len(maxInt64) {
		return true
	}
	if len(text) > len(maxInt64) {
		return false
	}
	return text <= maxInt64
}

var validEscapes = map[rune]rune{
	'n': '\n', 't': '\t', 'r': '\r', '\\': '\\', '"': '"', '\'': '\'', '0': 0,
}

func (l *Lexer) lexString(start token.Pos, quote rune) (token.Token, error) {
	l.advance() // opening quote
	var b strings.Builder
	for {
		r, size := l.peekRune()
		if size == 0 {
			return token.Token{}, errs.New(errs.Syntax, start, "unterminated string literal")
		}
		if r == quote {
			l.advance()
			break
		}
		if r == '\n' {
			return token.Token{}, errs.New(errs.Syntax, start, "unterminated string literal")
		}
		if r == '\\' {
			escPos := l.pos0()
			l.advance()
			er, esize := l.peekRune()
			if esize == 0 {
				return token.Token{}, errs.New(errs.Syntax, start, "unterminated string literal")
			}
			repl, ok := validEscapes[er]
			if !ok {
				return token.Token{}, errs.New(errs.Syntax, escPos, "unknown escape sequence \\%c", er)
			}
			if repl != 0 || er == '0' {
				b.WriteRune(repl)
			}
			l.advance()
			continue
		}
		b.WriteRune(r)
		l.advance()
		if int64(b.Len()) > l.caps.StringLiteralBytes {
			return token.Token{}, errs.New(errs.ResourceLimit, start, "string literal exceeds cap of %d bytes", l.caps.StringLiteralBytes)
		}
	}
	return token.Token{Kind: token.STRING, Lexeme: b.String(), Pos: start}, nil
}

// lexLessOrPolyglot disambiguates '<', "<=", and the polyglot-open delimiter
// "<<lang[bindings]" (§4.2, §4.3).
func (l *Lexer) lexLessOrPolyglot(start token.Pos) (token.Token, error) {
	l.advance() // first '<'
	if l.peekAt(0) == '<' {
		l.advance()
		return l.lexPolyglotOpen(start)
	}
	if l.peekAt(0) == '=' {
		l.advance()
		return token.Token{Kind: token.LTE, Lexeme: "<=", Pos: start}, nil
	}
	return token.Token{Kind: token.LT, Lexeme: "<", Pos: start}, nil
}

// lexPolyglotOpen parses "<<lang[b1, b2] -> JSON\n<body>\n>>" where the close
// delimiter terminates only when ">>" appears at column one (§4.2).
func (l *Lexer) lexPolyglotOpen(start token.Pos) (token.Token, error) {
	var lang strings.Builder
	for {
		r, size := l.peekRune()
		if size == 0 || !identTail(r) {
			break
		}
		lang.WriteRune(r)
		l.advance()
	}
	var bindings []string
	if l.peekAt(0) == '[' {
		l.advance()
		var cur strings.Builder
		for {
			r, size := l.peekRune()
			if size == 0 {
				return token.Token{}, errs.New(errs.Syntax, start, "unterminated polyglot binding list")
			}
			if r == ']' {
				l.advance()
				if s := strings.TrimSpace(cur.String()); s != "" {
					bindings = append(bindings, s)
				}
				break
			}
			if r == ',' {
				if s := strings.TrimSpace(cur.String()); s != "" {
					bindings = append(bindings, s)
				}
				cur.Reset()
				l.advance()
				continue
			}
			cur.WriteRune(r)
			l.advance()
		}
	}
	jsonMode := false
	// Optional leading "-> JSON" directive before the body begins.
	lineRest := l.restOfLine()
	trimmed := strings.TrimSpace(lineRest)
	if trimmed == "-> JSON" || trimmed == "->JSON" {
		jsonMode = true
		l.consumeRestOfLine()
	}
	// Consume to end of the open line.
	l.consumeRestOfLine()
	if l.peekAt(0) == '\n' {
		l.advance()
	}

	var body strings.Builder
	for {
		if l.pos >= len(l.src) {
			return token.Token{}, errs.New(errs.Syntax, start, "unterminated polyglot block")
		}
		if l.col == 1 && strings.HasPrefix(l.src[l.pos:], ">>") {
			l.advance()
			l.advance()
			break
		}
		r, size := l.peekRune()
		if size == 0 {
			return token.Token{}, errs.New(errs.Syntax, start, "unterminated polyglot block")
		}
		body.WriteRune(r)
		l.advance()
		if int64(body.Len()) > l.caps.PolyglotBodyBytes {
			return token.Token{}, errs.New(errs.ResourceLimit, start, "polyglot body exceeds cap of %d bytes", l.caps.PolyglotBodyBytes)
		}
	}
	bodyText := strings.TrimSuffix(body.String(), "\n")
	l.polyglots = append(l.polyglots, &PolyglotBlock{
		Language: lang.String(),
		Bindings: bindings,
		JSON:     jsonMode,
		Body:     bodyText,
		Pos:      start,
	})
	return token.Token{Kind: token.POLYGLOT_OPEN, Lexeme: lang.String(), Pos: start}, nil
}

func (l *Lexer) restOfLine() string {
	end := strings.IndexByte(l.src[l.pos:], '\n')
	if end < 0 {
		return l.src[l.pos:]
	}
	return l.src[l.pos : l.pos+end]
}

func (l *Lexer) consumeRestOfLine() {
	for {
		r, size := l.peekRune()
		if size == 0 || r == '\n' {
			return
		}
		l.advance()
	}
}

func (l *Lexer) lexOperator(start token.Pos) (token.Token, error) {
	two := func(second byte, k2 token.Kind, k1 token.Kind, lex1 string) (token.Token, error) {
		l.advance()
		if l.peekAt(0) == second {
			l.advance()
			return token.Token{Kind: k2, Lexeme: lex1 + string(second), Pos: start}, nil
		}
		return token.Token{Kind: k1, Lexeme: lex1, Pos: start}, nil
	}
	r, _ := l.peekRune()
	switch r {
	case '(':
		l.advance()
		return token.Token{Kind: token.LPAREN, Lexeme: "(", Pos: start}, nil
	case ')':
		l.advance()
		return token.Token{Kind: token.RPAREN, Lexeme: ")", Pos: start}, nil
	case '{':
		l.advance()
		return token.Token{Kind: token.LBRACE, Lexeme: "{", Pos: start}, nil
	case '}':
		l.advance()
		return token.Token{Kind: token.RBRACE, Lexeme: "}", Pos: start}, nil
	case '[':
		l.advance()
		return token.Token{Kind: token.LBRACKET, Lexeme: "[", Pos: start}, nil
	case ']':
		l.advance()
		return token.Token{Kind: token.RBRACKET, Lexeme: "]", Pos: start}, nil
	case ',':
		l.advance()
		return token.Token{Kind: token.COMMA, Lexeme: ",", Pos: start}, nil
	case ':':
		l.advance()
		return token.Token{Kind: token.COLON, Lexeme: ":", Pos: start}, nil
	case '.':
		l.advance()
		if l.peekAt(0) == '.' {
			l.advance()
			return token.Token{Kind: token.RANGE, Lexeme: "..", Pos: start}, nil
		}
		return token.Token{Kind: token.DOT, Lexeme: ".", Pos: start}, nil
	case '+':
		l.advance()
		return token.Token{Kind: token.PLUS, Lexeme: "+", Pos: start}, nil
	case '-':
		l.advance()
		if l.peekAt(0) == '>' {
			l.advance()
			return token.Token{Kind: token.ARROW, Lexeme: "->", Pos: start}, nil
		}
		return token.Token{Kind: token.MINUS, Lexeme: "-", Pos: start}, nil
	case '*':
		l.advance()
		if l.peekAt(0) == '*' {
			l.advance()
			return token.Token{Kind: token.POW, Lexeme: "**", Pos: start}, nil
		}
		return token.Token{Kind: token.STAR, Lexeme: "*", Pos: start}, nil
	case '/':
		l.advance()
		return token.Token{Kind: token.SLASH, Lexeme: "/", Pos: start}, nil
	case '%':
		l.advance()
		return token.Token{Kind: token.PERCENT, Lexeme: "%", Pos: start}, nil
	case '=':
		return two('=', token.EQ, token.ASSIGN, "=")
	case '!':
		return two('=', token.NEQ, token.NOT, "!")
	case '>':
		return two('=', token.GTE, token.GT, ">")
	case '&':
		l.advance()
		if l.peekAt(0) == '&' {
			l.advance()
			return token.Token{Kind: token.AND, Lexeme: "&&", Pos: start}, nil
		}
		return token.Token{}, errs.New(errs.Syntax, start, "unexpected character '&'")
	case '|':
		l.advance()
		if l.peekAt(0) == '|' {
			l.advance()
			return token.Token{Kind: token.OR, Lexeme: "||", Pos: start}, nil
		}
		if l.peekAt(0) == '>' {
			l.advance()
			return token.Token{Kind: token.PIPE, Lexeme: "|>", Pos: start}, nil
		}
		return token.Token{}, errs.New(errs.Syntax, start, "unexpected character '|'")
	case '?':
		l.advance()
		return token.Token{Kind: token.QUESTION, Lexeme: "?", Pos: start}, nil
	}
	l.advance()
	return token.Token{}, errs.New(errs.Syntax, start, "unexpected character %q", r)
}
