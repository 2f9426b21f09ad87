// Package linker reads GNU ld linker scripts far enough to check where a
// section lands: the memory regions, and which output section goes into
// which region with which type.
package linker

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/participle/v2"
)

var scriptParser = participle.MustBuild[File](
	participle.Lexer(ScriptLexer),
	participle.Elide("Comment", "Whitespace"),
	participle.UseLookahead(4),
)

// Parse parses a linker script from a reader.
func Parse(r io.Reader) (*Script, error) {
	f, err := scriptParser.Parse("", r)
	if err != nil {
		return nil, fmt.Errorf("linker: parse error: %w", err)
	}
	return newScript(f)
}

// ParseString parses a linker script held in memory.
func ParseString(input string) (*Script, error) {
	return Parse(strings.NewReader(input))
}

// ParseFile parses the linker script at filename.
func ParseFile(filename string) (*Script, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("linker: failed to open file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}
