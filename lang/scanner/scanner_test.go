package scanner_test

import (
	"testing"

	"github.com/mna/clox/lang/scanner"
	"github.com/mna/clox/lang/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanAll(src string) []token.Token {
	s := scanner.New(src)
	var toks []token.Token
	for {
		tok := s.ScanToken()
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			return toks
		}
	}
}

func TestBasicTokens(t *testing.T) {
	toks := scanAll("var a = 1 + 2;")
	kinds := make([]token.Kind, len(toks))
	for i, tk := range toks {
		kinds[i] = tk.Kind
	}
	assert.Equal(t, []token.Kind{
		token.VAR, token.IDENTIFIER, token.EQUAL, token.NUMBER,
		token.PLUS, token.NUMBER, token.SEMICOLON, token.EOF,
	}, kinds)
}

func TestStringSpansNewlines(t *testing.T) {
	s := scanner.New("\"a\nb\"")
	tok := s.ScanToken()
	require.Equal(t, token.STRING, tok.Kind)
	assert.Equal(t, "\"a\nb\"", s.Lexeme(tok))

	eof := s.ScanToken()
	assert.Equal(t, token.EOF, eof.Kind)
	assert.Equal(t, 2, eof.Line)
}

func TestUnterminatedString(t *testing.T) {
	s := scanner.New("\"abc")
	tok := s.ScanToken()
	assert.Equal(t, token.ILLEGAL, tok.Kind)
	assert.Equal(t, "Unterminated string.", tok.Msg)
}

func TestNumberTrailingDotNotConsumed(t *testing.T) {
	toks := scanAll("1.")
	require.Len(t, toks, 3)
	assert.Equal(t, token.NUMBER, toks[0].Kind)
	assert.Equal(t, token.DOT, toks[1].Kind)
}

func TestLineCommentsSkipped(t *testing.T) {
	toks := scanAll("// hi\nvar")
	require.Len(t, toks, 2)
	assert.Equal(t, token.VAR, toks[0].Kind)
	assert.Equal(t, 2, toks[0].Line)
}

func TestKeywordsVsIdentifiers(t *testing.T) {
	toks := scanAll("classic class")
	require.Len(t, toks, 3)
	assert.Equal(t, token.IDENTIFIER, toks[0].Kind)
	assert.Equal(t, token.CLASS, toks[1].Kind)
}
