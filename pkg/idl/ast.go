// Package idl parses, validates and formats interface descriptions.
package idl

import "fmt"

// Span locates a node in the source text. Offsets are in bytes.
type Span struct {
	Start  int
	End    int
	Line   int
	Column int
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d", s.Line, s.Column)
}

// Document is a parsed IDL file.
type Document struct {
	Types    []*Type
	Ctor     *Ctor
	Services []*Service
}

// Binding is a (route, service) pair exposed by a program. Every service of a
// document is exposed under its own name.
type Binding struct {
	Route   string
	Service *Service
}

func (d *Document) Bindings() []Binding {
	out := make([]Binding, 0, len(d.Services))
	for _, s := range d.Services {
		out = append(out, Binding{Route: s.Name, Service: s})
	}
	return out
}

func (d *Document) Type(name string) *Type {
	for _, t := range d.Types {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func (d *Document) Service(name string) *Service {
	for _, s := range d.Services {
		if s.Name == name {
			return s
		}
	}
	return nil
}

type TypeDefKind uint8

const (
	DefStruct TypeDefKind = iota + 1
	DefEnum
	DefAlias
)

// Type is a named top-level definition.
type Type struct {
	Name   string
	Params []string
	Kind   TypeDefKind
	Struct *StructDef
	Enum   *EnumDef
	Alias  *TypeDecl
	Docs   []string
	Span   Span
}

type StructDef struct {
	Fields []*StructField
}

// IsTuple reports whether all fields are unnamed.
func (s *StructDef) IsTuple() bool {
	for _, f := range s.Fields {
		if f.Name != "" {
			return false
		}
	}
	return true
}

type StructField struct {
	Name string // empty for positional fields
	Type *TypeDecl
	Docs []string
}

type EnumDef struct {
	Variants []*EnumVariant
}

type EnumVariant struct {
	Name string
	Type *TypeDecl // nil for unit variants
	Docs []string
}

type DeclKind uint8

const (
	DeclPrimitive DeclKind = iota + 1
	DeclOpt
	DeclVec
	DeclArray
	DeclMap
	DeclResult
	DeclTuple
	DeclStruct
	DeclNamed
)

// TypeDecl is a use-site reference to a type.
type TypeDecl struct {
	Kind DeclKind

	Prim   Primitive   // DeclPrimitive
	Elem   *TypeDecl   // DeclOpt, DeclVec, DeclArray
	Len    uint32      // DeclArray
	Key    *TypeDecl   // DeclMap
	Value  *TypeDecl   // DeclMap
	Ok     *TypeDecl   // DeclResult
	Err    *TypeDecl   // DeclResult
	Items  []*TypeDecl // DeclTuple
	Struct *StructDef  // DeclStruct
	Name   string      // DeclNamed
	Args   []*TypeDecl // DeclNamed generic arguments

	Span Span
}

// Constructors of TypeDecl values.

func Prim(p Primitive) *TypeDecl { return &TypeDecl{Kind: DeclPrimitive, Prim: p} }
func Opt(t *TypeDecl) *TypeDecl  { return &TypeDecl{Kind: DeclOpt, Elem: t} }
func Vec(t *TypeDecl) *TypeDecl  { return &TypeDecl{Kind: DeclVec, Elem: t} }
func Array(t *TypeDecl, n uint32) *TypeDecl {
	return &TypeDecl{Kind: DeclArray, Elem: t, Len: n}
}
func Map(k, v *TypeDecl) *TypeDecl       { return &TypeDecl{Kind: DeclMap, Key: k, Value: v} }
func Result(ok, err *TypeDecl) *TypeDecl { return &TypeDecl{Kind: DeclResult, Ok: ok, Err: err} }
func TupleOf(items ...*TypeDecl) *TypeDecl {
	return &TypeDecl{Kind: DeclTuple, Items: items}
}
func Named(name string, args ...*TypeDecl) *TypeDecl {
	return &TypeDecl{Kind: DeclNamed, Name: name, Args: args}
}

// IsUnit reports whether t is null or the empty tuple.
func (t *TypeDecl) IsUnit() bool {
	if t == nil {
		return true
	}
	return (t.Kind == DeclPrimitive && t.Prim == Null) || (t.Kind == DeclTuple && len(t.Items) == 0)
}

// Ctor is the constructor set of a program.
type Ctor struct {
	Funcs []*CtorFunc
	Docs  []string
}

type CtorFunc struct {
	Name    string
	Params  []*Param
	Docs    []string
	EntryID uint16
	Span    Span
}

type Param struct {
	Name string
	Type *TypeDecl
}

type Service struct {
	Name    string
	Extends []string
	Funcs   []*Func
	Events  []*Event
	Docs    []string
	Span    Span
}

// Commands returns the state mutating functions in source order.
func (s *Service) Commands() []*Func {
	var out []*Func
	for _, f := range s.Funcs {
		if !f.Query {
			out = append(out, f)
		}
	}
	return out
}

// Queries returns the read-only functions in source order.
func (s *Service) Queries() []*Func {
	var out []*Func
	for _, f := range s.Funcs {
		if f.Query {
			out = append(out, f)
		}
	}
	return out
}

type Func struct {
	Name    string
	Params  []*Param
	Output  *TypeDecl
	Throws  *TypeDecl
	Query   bool
	Docs    []string
	EntryID uint16
	Span    Span
}

type Event struct {
	Name    string
	Type    *TypeDecl // nil when the event carries no payload
	Docs    []string
	EntryID uint16
	Span    Span
}
