package linker

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// ScriptLexer tokenises the GNU ld command language. It is deliberately
// loose: anything the grammar does not model is still tokenised so it can be
// skipped.
var ScriptLexer = lexer.MustSimple([]lexer.SimpleRule{
	// C style comments
	{Name: "Comment", Pattern: `/\*(?s:.*?)\*/|//[^\n]*`},

	// Whitespace
	{Name: "Whitespace", Pattern: `\s+`},

	{Name: "String", Pattern: `"[^"]*"`},

	// Hex or decimal, with the K and M multipliers ld accepts
	{Name: "Number", Pattern: `0[xX][0-9a-fA-F]+[KkMm]?|[0-9]+[KkMm]?`},

	// Section and symbol names; wildcards are allowed after the first
	// character so input section patterns like .text* stay one token.
	{Name: "Ident", Pattern: `/DISCARD/|[A-Za-z_.$][A-Za-z0-9_.$*?\[\]]*`},

	{Name: "LBrace", Pattern: `\{`},
	{Name: "RBrace", Pattern: `\}`},
	{Name: "LParen", Pattern: `\(`},
	{Name: "RParen", Pattern: `\)`},
	{Name: "Semi", Pattern: `;`},

	// Operators, multi-character first
	{Name: "Punct", Pattern: `<<=|>>=|<<|>>|==|!=|<=|>=|&&|\|\||[-+*/%&|^]=|[-+*/%<>=!&|~^:,?]`},
})
