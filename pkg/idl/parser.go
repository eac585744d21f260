package idl

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/rotisserie/eris"
)

type Rule uint8

const (
	RuleExpected Rule = iota + 1
	RuleUnexpected
)

func (r Rule) String() string {
	if r == RuleExpected {
		return "Expected"
	}
	return "Unexpected"
}

// ParseError is a lexing or parsing failure.
type ParseError struct {
	Rule Rule
	Msg  string
	Span Span
}

func (e *ParseError) Error() string {
	switch e.Rule {
	case RuleExpected:
		return fmt.Sprintf("%s: expected %s", e.Span, e.Msg)
	default:
		return fmt.Sprintf("%s: unexpected %s", e.Span, e.Msg)
	}
}

// Parse parses and validates an IDL document.
func Parse(src string) (*Document, error) {
	doc, err := ParseUnchecked(src)
	if err != nil {
		return nil, err
	}
	if err := Validate(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ParseFile reads and parses an IDL file.
func ParseFile(path string) (*Document, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read idl %s", path)
	}
	doc, err := Parse(string(src))
	if err != nil {
		return nil, eris.Wrapf(err, "idl %s", path)
	}
	return doc, nil
}

// ParseUnchecked builds the syntax tree without running Validate.
func ParseUnchecked(src string) (*Document, error) {
	g, err := idlParser.ParseString("", src)
	if err != nil {
		return nil, toParseError(err)
	}
	c := converter{}
	doc := c.file(g)
	if c.err != nil {
		return nil, c.err
	}
	return doc, nil
}

func toParseError(err error) error {
	var pe participle.Error
	if !errors.As(err, &pe) {
		return &ParseError{Rule: RuleUnexpected, Msg: err.Error()}
	}
	pos := pe.Position()
	span := Span{Start: pos.Offset, End: pos.Offset, Line: pos.Line, Column: pos.Column}

	var ute *participle.UnexpectedTokenError
	if errors.As(err, &ute) {
		span.End = span.Start + len(ute.Unexpected.Value)
		if ute.Expect != "" {
			return &ParseError{Rule: RuleExpected, Msg: ute.Expect, Span: span}
		}
		tok := strconv.Quote(ute.Unexpected.Value)
		if ute.Unexpected.EOF() {
			tok = "end of input"
		}
		return &ParseError{Rule: RuleUnexpected, Msg: tok, Span: span}
	}
	return &ParseError{Rule: RuleUnexpected, Msg: pe.Message(), Span: span}
}

type converter struct {
	err error
}

func (c *converter) fail(pos lexer.Position, format string, args ...any) {
	if c.err != nil {
		return
	}
	c.err = &ParseError{
		Rule: RuleUnexpected,
		Msg:  fmt.Sprintf(format, args...),
		Span: Span{Start: pos.Offset, End: pos.Offset, Line: pos.Line, Column: pos.Column},
	}
}

func span(start, end lexer.Position) Span {
	return Span{Start: start.Offset, End: end.Offset, Line: start.Line, Column: start.Column}
}

func docs(lines []string) []string {
	if len(lines) == 0 {
		return nil
	}
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimPrefix(l, "///")
		l = strings.TrimPrefix(l, " ")
		out = append(out, strings.TrimRight(l, " \t\r"))
	}
	return out
}

func (c *converter) file(g *gFile) *Document {
	doc := &Document{}
	for _, item := range g.Items {
		switch b := item.Body; {
		case b.Type != nil:
			doc.Types = append(doc.Types, c.typ(b.Type, docs(item.Docs)))
		case b.Ctor != nil:
			if doc.Ctor != nil {
				c.fail(lexer.Position{}, "second constructor block")
				continue
			}
			doc.Ctor = c.ctor(b.Ctor, docs(item.Docs))
		case b.Service != nil:
			doc.Services = append(doc.Services, c.service(b.Service, docs(item.Docs)))
		}
	}
	return doc
}

func (c *converter) typ(g *gType, d []string) *Type {
	t := &Type{Name: g.Name, Params: g.Params, Docs: d, Span: span(g.Pos, g.EndPos)}
	switch {
	case g.Body.IsEnum:
		t.Kind = DefEnum
		t.Enum = c.enum(g.Body.Enum)
	case g.Body.Decl != nil && g.Body.Decl.IsStruct:
		t.Kind = DefStruct
		t.Struct = c.strct(g.Body.Decl.Struct)
	default:
		t.Kind = DefAlias
		t.Alias = c.decl(g.Body.Decl)
	}
	return t
}

func (c *converter) enum(g *gEnum) *EnumDef {
	e := &EnumDef{}
	if g == nil {
		return e
	}
	for _, v := range g.Variants {
		ev := &EnumVariant{Name: v.Name, Docs: docs(v.Docs)}
		if v.Type != nil {
			ev.Type = c.decl(v.Type)
		}
		e.Variants = append(e.Variants, ev)
	}
	return e
}

func (c *converter) strct(g *gStruct) *StructDef {
	s := &StructDef{}
	if g == nil {
		return s
	}
	for _, f := range g.Fields {
		s.Fields = append(s.Fields, &StructField{Name: f.Name, Type: c.decl(f.Type), Docs: docs(f.Docs)})
	}
	return s
}

func (c *converter) decl(g *gDecl) *TypeDecl {
	if g == nil {
		return Prim(Null)
	}
	var t *TypeDecl
	switch {
	case g.Opt != nil:
		t = Opt(c.decl(g.Opt))
	case g.Vec != nil:
		t = Vec(c.decl(g.Vec))
	case g.Result != nil:
		t = Result(c.decl(g.Result.A), c.decl(g.Result.B))
	case g.Map != nil:
		t = Map(c.decl(g.Map.A), c.decl(g.Map.B))
	case g.Array != nil:
		n, err := strconv.ParseUint(g.Array.Len, 10, 32)
		if err != nil {
			c.fail(g.Pos, "array length %q", g.Array.Len)
		}
		t = Array(c.decl(g.Array.Elem), uint32(n))
	case g.IsTuple:
		t = &TypeDecl{Kind: DeclTuple}
		if g.Tuple != nil {
			for _, item := range g.Tuple.Items {
				t.Items = append(t.Items, c.decl(item))
			}
		}
	case g.IsStruct:
		t = &TypeDecl{Kind: DeclStruct, Struct: c.strct(g.Struct)}
	case g.Named != nil:
		if p, ok := PrimitiveByName(g.Named.Name); ok {
			if len(g.Named.Args) > 0 {
				c.fail(g.Pos, "type arguments on primitive %s", g.Named.Name)
			}
			t = Prim(p)
			break
		}
		t = Named(g.Named.Name)
		for _, a := range g.Named.Args {
			t.Args = append(t.Args, c.decl(a))
		}
	default:
		c.fail(g.Pos, "empty type declaration")
		t = Prim(Null)
	}
	t.Span = span(g.Pos, g.EndPos)
	return t
}

func (c *converter) params(g *gParams) []*Param {
	if g == nil {
		return nil
	}
	out := make([]*Param, 0, len(g.List))
	for _, p := range g.List {
		out = append(out, &Param{Name: p.Name, Type: c.decl(p.Type)})
	}
	return out
}

func (c *converter) ctor(g *gCtor, d []string) *Ctor {
	ct := &Ctor{Docs: d}
	for _, f := range g.Funcs {
		ct.Funcs = append(ct.Funcs, &CtorFunc{
			Name:   f.Name,
			Params: c.params(f.Params),
			Docs:   docs(f.Docs),
			Span:   span(f.Pos, f.EndPos),
		})
	}
	return ct
}

func (c *converter) service(g *gService, d []string) *Service {
	s := &Service{Name: g.Name, Extends: g.Extends, Docs: d, Span: span(g.Pos, g.EndPos)}
	for _, f := range g.Funcs {
		fn := &Func{
			Name:   f.Name,
			Params: c.params(f.Params),
			Output: c.decl(f.Output),
			Query:  f.Query,
			Docs:   docs(f.Docs),
			Span:   span(f.Pos, f.EndPos),
		}
		if f.Throws != nil {
			fn.Throws = c.decl(f.Throws)
		}
		s.Funcs = append(s.Funcs, fn)
	}
	for _, e := range g.Events {
		ev := &Event{Name: e.Name, Docs: docs(e.Docs), Span: span(e.Pos, e.EndPos)}
		if e.Type != nil {
			ev.Type = c.decl(e.Type)
		}
		s.Events = append(s.Events, ev)
	}
	return s
}
