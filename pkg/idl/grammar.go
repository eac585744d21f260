package idl

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var idlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "DocComment", Pattern: `///[^\n]*`},
	{Name: "Comment", Pattern: `//[^\n]*`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Number", Pattern: `[0-9]+`},
	{Name: "Arrow", Pattern: `->`},
	{Name: "Punct", Pattern: `[{}()\[\]<>:;,=]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var idlParser = participle.MustBuild[gFile](
	participle.Lexer(idlLexer),
	participle.Elide("Comment", "Whitespace"),
	participle.UseLookahead(4),
)

type gFile struct {
	Items []*gItem `@@*`
}

type gItem struct {
	Docs []string   `@DocComment*`
	Body *gItemBody `@@`
}

type gItemBody struct {
	Type    *gType    `  @@`
	Ctor    *gCtor    `| @@`
	Service *gService `| @@`
}

type gType struct {
	Pos    lexer.Position
	EndPos lexer.Position

	Name   string     `"type" @Ident`
	Params []string   `( "<" @Ident ( "," @Ident )* ">" )?`
	Body   *gTypeBody `"=" @@ ";"`
}

type gTypeBody struct {
	IsEnum bool   `  @"enum" "{"`
	Enum   *gEnum `  @@? "}"`
	Decl   *gDecl `| @@`
}

type gEnum struct {
	Variants []*gVariant `( @@ ( "," @@ )* ","? )?`
}

type gVariant struct {
	Docs []string `@DocComment*`
	Name string   `@Ident`
	Type *gDecl   `( ":" @@ )?`
}

type gDecl struct {
	Pos    lexer.Position
	EndPos lexer.Position

	Opt      *gDecl   `  "opt" @@`
	Vec      *gDecl   `| "vec" @@`
	Result   *gPair   `| "result" "(" @@ ")"`
	Map      *gPair   `| "map" "(" @@ ")"`
	Array    *gArray  `| "[" @@ "]"`
	IsTuple  bool     `| @"("`
	Tuple    *gTuple  `  @@? ")"`
	IsStruct bool     `| @"struct" "{"`
	Struct   *gStruct `  @@? "}"`
	Named    *gNamed  `| @@`
}

type gPair struct {
	A *gDecl `@@ ","`
	B *gDecl `@@`
}

type gArray struct {
	Elem *gDecl `@@ ","`
	Len  string `@Number`
}

type gTuple struct {
	Items []*gDecl `( @@ ( "," @@ )* ","? )?`
}

type gStruct struct {
	Fields []*gField `( @@ ( "," @@ )* ","? )?`
}

type gField struct {
	Docs []string `@DocComment*`
	Name string   `( @Ident ":" )?`
	Type *gDecl   `@@`
}

type gNamed struct {
	Name string   `@Ident`
	Args []*gDecl `( "<" @@ ( "," @@ )* ">" )?`
}

type gCtor struct {
	Funcs []*gCtorFunc `"constructor" "{" @@* "}" ";"?`
}

type gCtorFunc struct {
	Docs []string `@DocComment*`

	Pos    lexer.Position
	EndPos lexer.Position

	Name   string   `@Ident ":"`
	Params *gParams `"(" @@? ")" ";"`
}

type gParams struct {
	List []*gParam `( @@ ( "," @@ )* ","? )?`
}

type gParam struct {
	Name string `@Ident ":"`
	Type *gDecl `@@`
}

type gService struct {
	Pos    lexer.Position
	EndPos lexer.Position

	Name    string    `"service" @Ident?`
	Extends []string  `( ":" @Ident ( "," @Ident )* )?`
	Funcs   []*gFunc  `"{" @@*`
	Events  []*gEvent `( "events" "{" @@* "}" ";"? )? "}" ";"?`
}

type gFunc struct {
	Docs []string `@DocComment*`

	Pos    lexer.Position
	EndPos lexer.Position

	Query  bool     `@"query"?`
	Name   string   `@Ident ":"`
	Params *gParams `"(" @@? ")"`
	Output *gDecl   `"->" @@`
	Throws *gDecl   `( "throws" @@ )? ";"`
}

type gEvent struct {
	Docs []string `@DocComment*`

	Pos    lexer.Position
	EndPos lexer.Position

	Name string `@Ident`
	Type *gDecl `( ":" @@ )? ";"`
}
