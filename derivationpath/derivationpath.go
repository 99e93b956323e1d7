package derivationpath

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	tokenMaster      = 0x6D // char m
	tokenMasterUpper = 0x4D // char M
	tokenSeparator   = 0x2F // char /
	tokenHardened    = 0x27 // char '

	hardenedStart = 0x80000000 // 2^31
)

// ErrIndexOutOfRange is returned for indexes that do not fit 31 bits before hardening.
var ErrIndexOutOfRange = errors.New("index must be lower than 2^31")

// ParseError describes a malformed path string.
type ParseError struct {
	Path string
	Pos  int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid path %q at position %d, %s", e.Path, e.Pos, e.Err.Error())
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type parseFunc = func() error

type rawSegment struct {
	index    uint32
	hardened bool
}

type parser struct {
	r                    *strings.Reader
	f                    parseFunc
	pos                  int
	segments             []rawSegment
	currentToken         string
	currentTokenHardened bool
}

func newParser(path string) *parser {
	p := &parser{
		r: strings.NewReader(path),
	}

	p.reset()

	return p
}

func (p *parser) reset() {
	p.r.Seek(0, io.SeekStart)
	p.pos = 0
	p.f = p.parseStart
	p.segments = make([]rawSegment, 0, Levels)
	p.resetCurrentToken()
}

func (p *parser) resetCurrentToken() {
	p.currentToken = ""
	p.currentTokenHardened = false
}

func (p *parser) parse() ([]rawSegment, error) {
	for {
		err := p.f()
		if err == io.EOF {
			return p.segments, nil
		}

		if err != nil {
			return nil, err
		}
	}
}

func (p *parser) readByte() (byte, error) {
	b, err := p.r.ReadByte()
	if err != nil {
		return b, err
	}

	p.pos++

	return b, nil
}

func (p *parser) parseStart() error {
	b, err := p.readByte()
	if err == io.EOF {
		return errors.New("expected m, got EOF")
	}

	if b != tokenMaster && b != tokenMasterUpper {
		return fmt.Errorf("expected m, got %s", string(b))
	}

	p.f = p.parseSeparator

	b, err = p.readByte()
	if err == io.EOF {
		// a bare root has no components, the count check reports it
		return io.EOF
	}

	if b != tokenSeparator {
		return fmt.Errorf("expected %s, got %s", string(rune(tokenSeparator)), string(b))
	}

	p.f = p.parseSegment

	return nil
}

func (p *parser) saveSegment() error {
	if len(p.currentToken) > 0 {
		i, err := strconv.ParseUint(p.currentToken, 10, 32)
		if err != nil {
			if errors.Is(err, strconv.ErrRange) {
				return fmt.Errorf("%w, got %s", ErrIndexOutOfRange, p.currentToken)
			}

			return err
		}

		if i >= hardenedStart {
			p.pos -= len(p.currentToken) - 1
			return fmt.Errorf("%w, got %d", ErrIndexOutOfRange, i)
		}

		p.segments = append(p.segments, rawSegment{
			index:    uint32(i),
			hardened: p.currentTokenHardened,
		})
	}

	p.f = p.parseSegment
	p.resetCurrentToken()

	return nil
}

func (p *parser) parseSeparator() error {
	b, err := p.readByte()
	if err == io.EOF {
		if newErr := p.saveSegment(); newErr != nil {
			return newErr
		}

		return err
	}

	if b == tokenSeparator {
		return p.saveSegment()
	}

	return fmt.Errorf("expected %s, got %s", string(rune(tokenSeparator)), string(b))
}

func (p *parser) parseSegment() error {
	b, err := p.readByte()
	if err == io.EOF {
		if len(p.currentToken) == 0 {
			return errors.New("expected number, got EOF")
		}

		if newErr := p.saveSegment(); newErr != nil {
			return newErr
		}

		return err
	}

	if len(p.currentToken) > 0 && b == tokenSeparator {
		return p.saveSegment()
	}

	if len(p.currentToken) > 0 && b == tokenHardened {
		p.currentTokenHardened = true
		p.f = p.parseSeparator
		return nil
	}

	if b < 0x30 || b > 0x39 {
		return fmt.Errorf("expected number, got %s", string(b))
	}

	p.currentToken += string(b)

	return nil
}

// Parse parses a BIP44 path string such as m/44'/536'/0'/0/1 into a Path.
func Parse(str string) (Path, error) {
	p := newParser(str)
	segments, err := p.parse()
	if err != nil {
		return Path{}, &ParseError{Path: str, Pos: p.pos, Err: err}
	}

	if len(segments) != Levels {
		return Path{}, &ParseError{
			Path: str,
			Pos:  p.pos,
			Err:  fmt.Errorf("expected %d components, got %d", Levels, len(segments)),
		}
	}

	components := make([]Component, Levels)
	for level, s := range segments {
		components[level] = Component{
			index:    s.index,
			hardened: s.hardened,
			level:    level,
			name:     levelNames[level],
		}
	}

	path, err := New(components...)
	if err != nil {
		return Path{}, &ParseError{Path: str, Pos: p.pos, Err: err}
	}

	return path, nil
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(str string) Path {
	p, err := Parse(str)
	if err != nil {
		panic(err)
	}

	return p
}
