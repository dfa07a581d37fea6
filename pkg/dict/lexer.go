package dict

import (
	"fmt"
	"strings"
)

// TokenType identifies the lexical class of a token.
type TokenType string

// Token types produced by the lexer.
const (
	TokenID            TokenType = "ID"
	TokenIntConst      TokenType = "INT_CONST"
	TokenFloatConst    TokenType = "FLOAT_CONST"
	TokenStringLiteral TokenType = "STRING_LITERAL"
	TokenMacroVar      TokenType = "MACRO_VAR"
	TokenDirectives    TokenType = "DIRECTIVES"
	TokenCodeStream    TokenType = "CODESTREAM"
	TokenCodeBlock     TokenType = "CODE_BLOCK"
	TokenDimensions    TokenType = "DIMENSIONS"
	TokenUniform       TokenType = "UNIFORM"
	TokenNonuniform    TokenType = "NONUNIFORM"
	TokenLBrace        TokenType = "LBRACE"
	TokenRBrace        TokenType = "RBRACE"
	TokenLParen        TokenType = "LPAREN"
	TokenRParen        TokenType = "RPAREN"
	TokenLBracket      TokenType = "LBRACKET"
	TokenRBracket      TokenType = "RBRACKET"
	TokenSemi          TokenType = "SEMI"
	TokenEOF           TokenType = "EOF"
)

var keywords = map[string]TokenType{
	"dimensions": TokenDimensions,
	"uniform":    TokenUniform,
	"nonuniform": TokenNonuniform,
}

var directives = map[string]bool{
	"#include":          true,
	"#includeEtc":       true,
	"#includeIfPresent": true,
	"#includeFunc":      true,
	"#inputMode":        true,
	"#remove":           true,
}

// Token is a single lexical unit with its source line.
type Token struct {
	Type  TokenType
	Value string
	Line  int
}

// SyntaxError reports a lexical or parse failure with its location.
type SyntaxError struct {
	File string
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Lexer tokenizes Caelus dictionary input.
type Lexer struct {
	src  string
	pos  int
	line int
}

// NewLexer returns a lexer over the given input.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src, line: 1}
}

// ScanTokens runs the lexer to completion and returns all tokens.
func ScanTokens(src string) ([]Token, error) {
	lex := NewLexer(src)
	var toks []Token
	for {
		tok, err := lex.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == TokenEOF {
			return toks, nil
		}
		toks = append(toks, tok)
	}
}

func (l *Lexer) errf(format string, args ...any) error {
	return &SyntaxError{Line: l.line, Msg: fmt.Sprintf(format, args...)}
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekAt(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) advance() byte {
	ch := l.src[l.pos]
	l.pos++
	if ch == '\n' {
		l.line++
	}
	return ch
}

// Next returns the next token, or a token of type TokenEOF at end of input.
func (l *Lexer) Next() (Token, error) {
	if err := l.skipSpaceAndComments(); err != nil {
		return Token{}, err
	}
	if l.pos >= len(l.src) {
		return Token{Type: TokenEOF, Line: l.line}, nil
	}

	start := l.line
	ch := l.peek()
	switch ch {
	case '{':
		l.advance()
		return Token{Type: TokenLBrace, Value: "{", Line: start}, nil
	case '}':
		l.advance()
		return Token{Type: TokenRBrace, Value: "}", Line: start}, nil
	case '(':
		l.advance()
		return Token{Type: TokenLParen, Value: "(", Line: start}, nil
	case ')':
		l.advance()
		return Token{Type: TokenRParen, Value: ")", Line: start}, nil
	case '[':
		l.advance()
		return Token{Type: TokenLBracket, Value: "[", Line: start}, nil
	case ']':
		l.advance()
		return Token{Type: TokenRBracket, Value: "]", Line: start}, nil
	case ';':
		l.advance()
		return Token{Type: TokenSemi, Value: ";", Line: start}, nil
	case '"':
		return l.lexString()
	case '$':
		return l.lexMacro()
	case '#':
		return l.lexDirective()
	}

	if isNumberStart(ch, l.peekAt(1)) {
		return l.lexNumber()
	}
	if isWordChar(ch) {
		return l.lexWord()
	}
	return Token{}, l.errf("unexpected character %q", ch)
}

func (l *Lexer) skipSpaceAndComments() error {
	for l.pos < len(l.src) {
		ch := l.peek()
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n':
			l.advance()
		case ch == '/' && l.peekAt(1) == '/':
			for l.pos < len(l.src) && l.peek() != '\n' {
				l.advance()
			}
		case ch == '/' && l.peekAt(1) == '*':
			startLine := l.line
			l.advance()
			l.advance()
			closed := false
			for l.pos < len(l.src) {
				if l.peek() == '*' && l.peekAt(1) == '/' {
					l.advance()
					l.advance()
					closed = true
					break
				}
				l.advance()
			}
			if !closed {
				l.line = startLine
				return l.errf("unterminated block comment")
			}
		default:
			return nil
		}
	}
	return nil
}

func (l *Lexer) lexString() (Token, error) {
	start := l.line
	l.advance() // opening quote
	var sb strings.Builder
	for l.pos < len(l.src) {
		ch := l.advance()
		if ch == '"' {
			return Token{Type: TokenStringLiteral, Value: sb.String(), Line: start}, nil
		}
		if ch == '\n' {
			break
		}
		sb.WriteByte(ch)
	}
	l.line = start
	return Token{}, l.errf("unterminated string literal")
}

func (l *Lexer) lexMacro() (Token, error) {
	start := l.line
	l.advance() // $
	var sb strings.Builder
	for l.pos < len(l.src) && isWordChar(l.peek()) {
		sb.WriteByte(l.advance())
	}
	if sb.Len() == 0 {
		return Token{}, l.errf("empty macro variable")
	}
	return Token{Type: TokenMacroVar, Value: sb.String(), Line: start}, nil
}

func (l *Lexer) lexDirective() (Token, error) {
	start := l.line
	if l.peekAt(1) == '{' {
		return l.lexCodeBlock()
	}
	var sb strings.Builder
	sb.WriteByte(l.advance()) // #
	for l.pos < len(l.src) && isWordChar(l.peek()) {
		sb.WriteByte(l.advance())
	}
	word := sb.String()
	if word == "#codeStream" {
		return Token{Type: TokenCodeStream, Value: word, Line: start}, nil
	}
	if directives[word] {
		return Token{Type: TokenDirectives, Value: word, Line: start}, nil
	}
	return Token{}, l.errf("unknown directive %q", word)
}

func (l *Lexer) lexCodeBlock() (Token, error) {
	start := l.line
	l.advance() // #
	l.advance() // {
	var sb strings.Builder
	for l.pos < len(l.src) {
		if l.peek() == '#' && l.peekAt(1) == '}' {
			l.advance()
			l.advance()
			return Token{Type: TokenCodeBlock, Value: strings.TrimSpace(sb.String()), Line: start}, nil
		}
		sb.WriteByte(l.advance())
	}
	l.line = start
	return Token{}, l.errf("unterminated code block")
}

func (l *Lexer) lexNumber() (Token, error) {
	start := l.line
	var sb strings.Builder
	isFloat := false
	if l.peek() == '+' || l.peek() == '-' {
		sb.WriteByte(l.advance())
	}
	for l.pos < len(l.src) {
		ch := l.peek()
		switch {
		case ch >= '0' && ch <= '9':
			sb.WriteByte(l.advance())
		case ch == '.':
			isFloat = true
			sb.WriteByte(l.advance())
		case ch == 'e' || ch == 'E':
			isFloat = true
			sb.WriteByte(l.advance())
			if l.peek() == '+' || l.peek() == '-' {
				sb.WriteByte(l.advance())
			}
		default:
			goto done
		}
	}
done:
	// Trailing word characters turn the token into a word (e.g. 0.05Coeffs).
	if l.pos < len(l.src) && isWordChar(l.peek()) {
		for l.pos < len(l.src) && isWordChar(l.peek()) {
			sb.WriteByte(l.advance())
		}
		return Token{Type: TokenID, Value: sb.String(), Line: start}, nil
	}
	typ := TokenIntConst
	if isFloat {
		typ = TokenFloatConst
	}
	return Token{Type: typ, Value: sb.String(), Line: start}, nil
}

func (l *Lexer) lexWord() (Token, error) {
	start := l.line
	var sb strings.Builder
	for l.pos < len(l.src) {
		ch := l.peek()
		if isWordChar(ch) {
			sb.WriteByte(l.advance())
			continue
		}
		// Function-style identifiers such as div(phi,U) or grad(p) keep
		// their balanced parentheses as part of the word.
		if ch == '(' && sb.Len() > 0 {
			depth := 0
			ok := false
			for l.pos < len(l.src) {
				c := l.advance()
				sb.WriteByte(c)
				if c == '(' {
					depth++
				} else if c == ')' {
					depth--
					if depth == 0 {
						ok = true
						break
					}
				}
			}
			if !ok {
				l.line = start
				return Token{}, l.errf("unbalanced parentheses in identifier")
			}
			continue
		}
		break
	}
	word := sb.String()
	if typ, ok := keywords[word]; ok {
		return Token{Type: typ, Value: word, Line: start}, nil
	}
	return Token{Type: TokenID, Value: word, Line: start}, nil
}

func isWordChar(ch byte) bool {
	switch {
	case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		return true
	}
	switch ch {
	case '_', '.', ',', ':', '<', '>', '*', '|', '&', '!', '?', '%', '+', '-', '/', '\\', '=', '~':
		return true
	}
	return false
}

func isNumberStart(ch, next byte) bool {
	if ch >= '0' && ch <= '9' {
		return true
	}
	if ch == '+' || ch == '-' {
		return next >= '0' && next <= '9' || next == '.'
	}
	return ch == '.' && next >= '0' && next <= '9'
}
