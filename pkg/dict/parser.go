package dict

import (
	"strconv"
)

// Parser builds a Dict from tokenized Caelus input.
type Parser struct {
	file string
	toks []Token
	pos  int
}

// Parse tokenizes and parses src, returning the top-level dictionary.
// name is used for error reporting only.
func Parse(src, name string) (*Dict, error) {
	toks, err := ScanTokens(src)
	if err != nil {
		if serr, ok := err.(*SyntaxError); ok {
			serr.File = name
		}
		return nil, err
	}
	p := &Parser{file: name, toks: toks}
	d, err := p.parseEntries(false)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (p *Parser) errf(tok Token, msg string) error {
	return &SyntaxError{File: p.file, Line: tok.Line, Msg: msg}
}

func (p *Parser) peek() Token {
	if p.pos >= len(p.toks) {
		return Token{Type: TokenEOF, Line: p.lastLine()}
	}
	return p.toks[p.pos]
}

func (p *Parser) next() Token {
	tok := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return tok
}

func (p *Parser) lastLine() int {
	if len(p.toks) == 0 {
		return 1
	}
	return p.toks[len(p.toks)-1].Line
}

// parseEntries reads keyword/value statements until EOF, or until the
// closing brace of a sub-dictionary when nested is true.
func (p *Parser) parseEntries(nested bool) (*Dict, error) {
	d := New()
	for {
		tok := p.peek()
		switch tok.Type {
		case TokenEOF:
			if nested {
				return nil, p.errf(tok, "missing closing brace")
			}
			return d, nil
		case TokenRBrace:
			if !nested {
				return nil, p.errf(tok, "unexpected closing brace")
			}
			p.next()
			return d, nil
		case TokenDirectives:
			p.next()
			arg, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			d.Set(tok.Value, arg)
		case TokenID, TokenDimensions, TokenUniform, TokenNonuniform, TokenStringLiteral:
			p.next()
			if err := p.parseEntry(d, tok.Value); err != nil {
				return nil, err
			}
		default:
			return nil, p.errf(tok, "expected keyword, found "+string(tok.Type))
		}
	}
}

// parseEntry reads the value part of a statement: either a brace-delimited
// sub-dictionary or a token list terminated by a semicolon.
func (p *Parser) parseEntry(d *Dict, key string) error {
	if p.peek().Type == TokenLBrace {
		p.next()
		sub, err := p.parseEntries(true)
		if err != nil {
			return err
		}
		d.Set(key, sub)
		return nil
	}
	var values []any
	for {
		tok := p.peek()
		switch tok.Type {
		case TokenSemi:
			p.next()
			switch len(values) {
			case 0:
				d.Set(key, "")
			case 1:
				d.Set(key, values[0])
			default:
				d.Set(key, Tokens(values))
			}
			return nil
		case TokenEOF:
			return p.errf(tok, "missing ';' after entry "+key)
		default:
			v, err := p.parseValue()
			if err != nil {
				return err
			}
			values = append(values, v)
		}
	}
}

// parseValue reads a single value: scalar, list, dimension set, macro,
// string, code block, or nested dictionary (within lists).
func (p *Parser) parseValue() (any, error) {
	tok := p.next()
	switch tok.Type {
	case TokenIntConst:
		n, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			return nil, p.errf(tok, "invalid integer "+tok.Value)
		}
		return n, nil
	case TokenFloatConst:
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, p.errf(tok, "invalid float "+tok.Value)
		}
		return f, nil
	case TokenStringLiteral:
		return Literal(tok.Value), nil
	case TokenMacroVar:
		return Macro(tok.Value), nil
	case TokenCodeBlock:
		return Code(tok.Value), nil
	case TokenID, TokenDimensions, TokenUniform, TokenNonuniform, TokenCodeStream:
		return tok.Value, nil
	case TokenLParen:
		var items []any
		for p.peek().Type != TokenRParen {
			if p.peek().Type == TokenEOF {
				return nil, p.errf(tok, "unterminated list")
			}
			v, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		p.next()
		return List(items), nil
	case TokenLBracket:
		var items []any
		for p.peek().Type != TokenRBracket {
			if p.peek().Type == TokenEOF {
				return nil, p.errf(tok, "unterminated dimension set")
			}
			v, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		p.next()
		return Dimensions(items), nil
	case TokenLBrace:
		return p.parseEntries(true)
	default:
		return nil, p.errf(tok, "unexpected token "+string(tok.Type))
	}
}
