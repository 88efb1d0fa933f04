package scanner_test

import (
	"testing"

	"github.com/mna/loxvm/lang/scanner"
	"github.com/mna/loxvm/lang/token"
	"github.com/stretchr/testify/require"
)

func scanAll(t *testing.T, src string) []token.Token {
	t.Helper()

	s := scanner.New(src)
	var toks []token.Token
	for {
		tok := s.Scan()
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks
		}
	}
}

func TestScanPunctuationAndOperators(t *testing.T) {
	toks := scanAll(t, "(){};,.+-*!= == <= >= < > = /")
	want := []token.Type{
		token.LPAREN, token.RPAREN, token.LBRACE, token.RBRACE, token.SEMI,
		token.COMMA, token.DOT, token.PLUS, token.MINUS, token.STAR,
		token.BANG_EQ, token.EQ_EQ, token.LESS_EQ, token.GREATER_EQ,
		token.LESS, token.GREATER, token.EQ, token.SLASH, token.EOF,
	}
	require.Len(t, toks, len(want))
	for i, tt := range want {
		require.Equalf(t, tt, toks[i].Type, "token %d", i)
	}
}

func TestScanKeywordsAndIdentifiers(t *testing.T) {
	toks := scanAll(t, "var x = fun or nil println")
	want := []token.Type{
		token.VAR, token.IDENT, token.EQ, token.FUN, token.OR, token.NIL,
		token.IDENT, token.EOF,
	}
	require.Len(t, toks, len(want))
	for i, tt := range want {
		require.Equalf(t, tt, toks[i].Type, "token %d", i)
	}
	require.Equal(t, "println", toks[6].Lexeme)
}

func TestScanNumbers(t *testing.T) {
	toks := scanAll(t, "123 4.5 0")
	require.Equal(t, []string{"123", "4.5", "0"}, []string{toks[0].Lexeme, toks[1].Lexeme, toks[2].Lexeme})
	for _, tok := range toks[:3] {
		require.Equal(t, token.NUMBER, tok.Type)
	}
}

func TestScanString(t *testing.T) {
	toks := scanAll(t, `"hello world"`)
	require.Equal(t, token.STRING, toks[0].Type)
	require.Equal(t, `"hello world"`, toks[0].Lexeme)
}

func TestScanUnterminatedString(t *testing.T) {
	toks := scanAll(t, `"unterminated`)
	require.Equal(t, token.ILLEGAL, toks[0].Type)
	require.Equal(t, "Unterminated string.", toks[0].Lexeme)
}

func TestScanLineTracking(t *testing.T) {
	toks := scanAll(t, "var x =\n1;\n// comment\nprint x;")
	// var(1) x(1) =(1) 1(2) ;(2) print(4) x(4) ;(4) EOF(4)
	wantLines := []int{1, 1, 1, 2, 2, 4, 4, 4, 4}
	require.Len(t, toks, len(wantLines))
	for i, line := range wantLines {
		require.Equalf(t, line, toks[i].Line, "token %d (%s)", i, toks[i])
	}
}

func TestScanCommentsSkipped(t *testing.T) {
	toks := scanAll(t, "// a full line comment\nvar")
	require.Equal(t, token.VAR, toks[0].Type)
}

func TestScanIllegalCharacter(t *testing.T) {
	toks := scanAll(t, "@")
	require.Equal(t, token.ILLEGAL, toks[0].Type)
	require.Equal(t, "Unexpected character.", toks[0].Lexeme)
}
