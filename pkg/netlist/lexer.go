package netlist

import (
	"fmt"

	"github.com/alecthomas/participle/v2/lexer"
)

// lineLexer splits one netlist line into words, blanks and an inline ';' comment.
var lineLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `;[^\n]*`},
	{Name: "Whitespace", Pattern: `[ \t\r\f\v]+`},
	{Name: "Word", Pattern: `[^\s;]+`},
})

var (
	wordToken    = lineLexer.Symbols()["Word"]
	commentToken = lineLexer.Symbols()["Comment"]
)

type token struct {
	text       string
	start, end int // byte offsets in the raw line
}

// lineTokens is the typed view of a raw line.
type lineTokens struct {
	words   []token
	comment *token
}

// tail returns the offset where the component part of the line ends:
// everything from here on (blanks, comment, '\r') is kept verbatim on rewrite.
func (lt lineTokens) tail() int {
	if len(lt.words) == 0 {
		return 0
	}
	return lt.words[len(lt.words)-1].end
}

func (lt lineTokens) texts() []string {
	out := make([]string, len(lt.words))
	for i, w := range lt.words {
		out[i] = w.text
	}
	return out
}

func tokenize(line string) (lineTokens, error) {
	var lt lineTokens

	lex, err := lineLexer.LexString("", line)
	if err != nil {
		return lt, fmt.Errorf("tokenize: %w", err)
	}

	for {
		tok, err := lex.Next()
		if err != nil {
			return lt, fmt.Errorf("tokenize: %w", err)
		}
		if tok.EOF() {
			return lt, nil
		}

		t := token{text: tok.Value, start: tok.Pos.Offset, end: tok.Pos.Offset + len(tok.Value)}
		switch tok.Type {
		case wordToken:
			lt.words = append(lt.words, t)
		case commentToken:
			lt.comment = &t
		}
	}
}
