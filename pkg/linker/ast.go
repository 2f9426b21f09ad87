package linker

// File is the parse tree of a linker script.
type File struct {
	Commands []*Command `@@*`
}

// Command is a top-level linker script command.
type Command struct {
	Memory   *MemoryBlock   `  @@`
	Sections *SectionsBlock `| @@`
	Other    *Statement     `| @@`
}

// MemoryBlock is the MEMORY { ... } command.
type MemoryBlock struct {
	Regions []*MemoryRegion `"MEMORY" "{" @@* "}"`
}

// MemoryRegion is one line of a MEMORY block.
// Example: RAM2 (xrw) : ORIGIN = 0x10000000, LENGTH = 32K
type MemoryRegion struct {
	Name   string `@Ident`
	Attrs  string `( "(" @( Ident | Punct )* ")" )?`
	Origin *Expr  `":" ( "ORIGIN" | "org" | "o" ) "=" @@`
	Length *Expr  `"," ( "LENGTH" | "len" | "l" ) "=" @@`
}

// SectionsBlock is the SECTIONS { ... } command.
type SectionsBlock struct {
	Items []*SectionItem `"SECTIONS" "{" @@* "}"`
}

// SectionItem is an output section description or any other statement
// inside SECTIONS.
type SectionItem struct {
	Section *OutputSection `  @@`
	Other   *Statement     `| @@`
}

// OutputSection describes one output section.
// Example: .CoreDump (NOLOAD) : { *(.CoreDump) } >RAM2
type OutputSection struct {
	Name        string   `@Ident`
	Address     string   `@Number?`
	Type        string   `( "(" @Ident ")" )?`
	LoadAddress *Expr    `":" ( "AT" "(" @@ ")" )?`
	Align       *Expr    `( "ALIGN" "(" @@ ")" )?`
	Body        *Body    `@@`
	Region      string   `( ">" @Ident )?`
	LoadRegion  string   `( "AT" ">" @Ident )?`
	Phdrs       []string `( ":" @Ident )*`
	Fill        string   `( "=" @Number )? ","?`
}

// Body is a brace-delimited token sequence, kept verbatim.
type Body struct {
	Items []*BodyItem `"{" @@* "}"`
}

// BodyItem is a nested block or a single token.
type BodyItem struct {
	Block *Body  `  @@`
	Text  string `| @( Ident | Number | String | Punct | Semi | LParen | RParen )`
}

// Statement is a symbol assignment or a directive such as ENTRY(...) or
// PROVIDE(...).
type Statement struct {
	Assign    *Assignment `  @@`
	Directive *Directive  `| @@`
	Empty     bool        `| @";"`
}

// Assignment is symbol = expression; Rest holds whatever follows the part
// of the expression this grammar understands (a ternary, say).
type Assignment struct {
	Symbol string       `@Ident`
	Op     string       `@( "=" | "+=" | "-=" | "*=" | "/=" | "<<=" | ">>=" | "&=" | "|=" )`
	Value  *Expr        `@@`
	Rest   []*GroupItem `@@* ";"`
}

// Directive is NAME(args) with an optional trailing semicolon.
type Directive struct {
	Name string `@Ident`
	Args *Group `@@ ";"?`
}

// Group is a parenthesised token sequence, kept verbatim.
type Group struct {
	Items []*GroupItem `"(" @@* ")"`
}

// GroupItem is a nested group or a single token.
type GroupItem struct {
	Group *Group `  @@`
	Text  string `| @( Ident | Number | String | Punct )`
}

// Expr is a sum of products.
type Expr struct {
	Left  *Product `@@`
	Right []*SumOp `@@*`
}

// SumOp is one "+ term" or "- term".
type SumOp struct {
	Op   string   `@( "+" | "-" )`
	Term *Product `@@`
}

// Product is a product of factors.
type Product struct {
	Left  *Factor  `@@`
	Right []*MulOp `@@*`
}

// MulOp is one "* factor" or "/ factor".
type MulOp struct {
	Op     string  `@( "*" | "/" )`
	Factor *Factor `@@`
}

// Factor is a number, a builtin call, a parenthesised expression or a
// symbol.
type Factor struct {
	Number *string `  @Number`
	Call   *Call   `| @@`
	Sub    *Expr   `| "(" @@ ")"`
	Symbol *string `| @Ident`
}

// Call is a builtin such as ORIGIN(RAM) or ALIGN(8).
type Call struct {
	Func string  `@Ident "("`
	Args []*Expr `( @@ ( "," @@ )* )? ")"`
}
