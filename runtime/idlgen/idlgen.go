// Package idlgen builds interface descriptions from the Go types a program
// registers.
package idlgen

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/kanengo/rigging/pkg/idl"
	"github.com/kanengo/rigging/runtime/scale"
)

// Program describes a program to generate an IDL document for.
type Program struct {
	Name     string
	Docs     []string
	Ctors    []Func
	Services []*Service
}

// Service is exposed under Name. Extends lists the services it embeds, they
// are described as separate services of the document.
type Service struct {
	Name    string
	Docs    []string
	Extends []*Service
	Funcs   []Func
	Events  []Event
}

// Func is a command, a query or a constructor. Params is a struct whose
// fields are the parameters in order, Reply is nil for constructors.
type Func struct {
	Name   string
	Docs   []string
	Params reflect.Type
	Reply  reflect.Type
	Throws reflect.Type
	Query  bool
}

// Event has a nil Type when it carries no payload.
type Event struct {
	Name string
	Docs []string
	Type reflect.Type
}

var (
	unitType    = reflect.TypeFor[scale.Unit]()
	charType    = reflect.TypeFor[scale.Char]()
	u128Type    = reflect.TypeFor[scale.U128]()
	i128Type    = reflect.TypeFor[scale.I128]()
	h160Type    = reflect.TypeFor[scale.H160]()
	h256Type    = reflect.TypeFor[scale.H256]()
	u256Type    = reflect.TypeFor[scale.U256]()
	actorIDType = reflect.TypeFor[scale.ActorID]()
	msgIDType   = reflect.TypeFor[scale.MessageID]()
	codeIDType  = reflect.TypeFor[scale.CodeID]()
)

var wellKnown = map[reflect.Type]idl.Primitive{
	unitType:    idl.Null,
	charType:    idl.Char,
	u128Type:    idl.U128,
	i128Type:    idl.I128,
	h160Type:    idl.H160,
	h256Type:    idl.H256,
	u256Type:    idl.U256,
	actorIDType: idl.ActorID,
	msgIDType:   idl.MessageID,
	codeIDType:  idl.CodeID,
}

var kindPrimitives = map[reflect.Kind]idl.Primitive{
	reflect.Bool:   idl.Bool,
	reflect.String: idl.Str,
	reflect.Uint8:  idl.U8,
	reflect.Uint16: idl.U16,
	reflect.Uint32: idl.U32,
	reflect.Uint64: idl.U64,
	reflect.Int8:   idl.I8,
	reflect.Int16:  idl.I16,
	reflect.Int32:  idl.I32,
	reflect.Int64:  idl.I64,
}

// Generate returns the validated document of p. Output is deterministic:
// types appear in the order they are first reached, services in declaration
// order with their bases after them.
func Generate(p *Program) (*idl.Document, error) {
	g := &generator{named: map[reflect.Type]string{}, taken: map[string]reflect.Type{}}
	doc, err := g.program(p)
	if err != nil {
		return nil, err
	}
	if err := idl.Validate(doc); err != nil {
		return nil, fmt.Errorf("idlgen: %s: %w", p.Name, err)
	}
	return doc, nil
}

// Text renders the document of p.
func Text(p *Program) (string, error) {
	doc, err := Generate(p)
	if err != nil {
		return "", err
	}
	return idl.Format(doc), nil
}

type generator struct {
	types []*idl.Type
	named map[reflect.Type]string
	taken map[string]reflect.Type
	// lineage of the type being described, for error messages.
	path []string
}

type genError struct{ err error }

func (g *generator) fail(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if len(g.path) > 0 {
		msg = strings.Join(g.path, ".") + ": " + msg
	}
	panic(genError{fmt.Errorf("idlgen: %s", msg)})
}

func (g *generator) program(p *Program) (doc *idl.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			ge, ok := r.(genError)
			if !ok {
				panic(r)
			}
			doc, err = nil, ge.err
		}
	}()

	doc = &idl.Document{}
	if len(p.Ctors) > 0 {
		doc.Ctor = &idl.Ctor{Docs: p.Docs}
		for _, c := range p.Ctors {
			g.path = []string{p.Name, c.Name}
			doc.Ctor.Funcs = append(doc.Ctor.Funcs, &idl.CtorFunc{
				Name:   c.Name,
				Docs:   c.Docs,
				Params: g.params(c.Params),
			})
		}
	}

	seen := map[*Service]bool{}
	var walk func(s *Service)
	walk = func(s *Service) {
		if seen[s] {
			return
		}
		seen[s] = true
		doc.Services = append(doc.Services, g.service(s))
		for _, b := range s.Extends {
			walk(b)
		}
	}
	for _, s := range p.Services {
		walk(s)
	}
	doc.Types = g.types
	return doc, nil
}

func (g *generator) service(s *Service) *idl.Service {
	out := &idl.Service{Name: s.Name, Docs: s.Docs}
	for _, b := range s.Extends {
		out.Extends = append(out.Extends, b.Name)
	}
	// commands, then queries, then events, each in declaration order
	for _, query := range []bool{false, true} {
		for _, f := range s.Funcs {
			if f.Query != query {
				continue
			}
			g.path = []string{s.Name, f.Name}
			fn := &idl.Func{
				Name:   f.Name,
				Docs:   f.Docs,
				Query:  f.Query,
				Params: g.params(f.Params),
				Output: g.decl(f.Reply),
			}
			if f.Throws != nil {
				fn.Throws = g.decl(f.Throws)
			}
			out.Funcs = append(out.Funcs, fn)
		}
	}
	for _, e := range s.Events {
		g.path = []string{s.Name, e.Name}
		ev := &idl.Event{Name: e.Name, Docs: e.Docs}
		if e.Type != nil && e.Type != unitType {
			ev.Type = g.decl(e.Type)
		}
		out.Events = append(out.Events, ev)
	}
	return out
}

func (g *generator) params(t reflect.Type) []*idl.Param {
	if t == nil || t == unitType {
		return nil
	}
	if t.Kind() != reflect.Struct {
		g.fail("params %v must be a struct", t)
	}
	var out []*idl.Param
	for _, f := range scale.Fields(t) {
		name := f.Tag.Get("idl")
		if name == "" {
			name = SnakeCase(f.Name)
		}
		out = append(out, &idl.Param{Name: name, Type: g.field(f)})
	}
	return out
}

func (g *generator) field(f scale.Field) *idl.TypeDecl {
	g.path = append(g.path, f.Name)
	defer func() { g.path = g.path[:len(g.path)-1] }()
	return g.decl(f.Type)
}

func (g *generator) decl(t reflect.Type) *idl.TypeDecl {
	if t == nil {
		return idl.Prim(idl.Null)
	}
	if p, ok := wellKnown[t]; ok {
		return idl.Prim(p)
	}
	if d, ok := g.generic(t); ok {
		return d
	}
	if t.Name() != "" && t.PkgPath() != "" {
		return idl.Named(g.namedType(t))
	}
	switch t.Kind() {
	case reflect.Pointer:
		return idl.Opt(g.decl(t.Elem()))
	case reflect.Slice:
		return idl.Vec(g.decl(t.Elem()))
	case reflect.Array:
		return idl.Array(g.decl(t.Elem()), uint32(t.Len()))
	case reflect.Map:
		return idl.Map(g.decl(t.Key()), g.decl(t.Elem()))
	case reflect.Struct:
		if t.NumField() == 0 {
			return idl.Prim(idl.Null)
		}
		if scale.IsEnum(t) {
			g.fail("anonymous enum %v", t)
		}
		if scale.IsTuple(t) {
			return idl.TupleOf(g.tupleItems(t)...)
		}
		return &idl.TypeDecl{Kind: idl.DeclStruct, Struct: g.structDef(t)}
	case reflect.Int, reflect.Uint, reflect.Uintptr, reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128, reflect.Chan, reflect.Func, reflect.Interface,
		reflect.UnsafePointer:
		g.fail("type %v has no SCALE encoding", t)
	}
	if p, ok := kindPrimitives[t.Kind()]; ok {
		return idl.Prim(p)
	}
	g.fail("unsupported type %v", t)
	return nil
}

// generic maps the codec's Option, Result and TupleN onto IDL constructs.
func (g *generator) generic(t reflect.Type) (*idl.TypeDecl, bool) {
	if t.Kind() != reflect.Struct || t.PkgPath() != unitType.PkgPath() {
		return nil, false
	}
	name := t.Name()
	switch {
	case strings.HasPrefix(name, "Option["):
		f, _ := t.FieldByName("Value")
		return idl.Opt(g.decl(f.Type)), true
	case strings.HasPrefix(name, "Result["):
		ok, _ := t.FieldByName("Ok")
		err, _ := t.FieldByName("Err")
		return idl.Result(g.decl(ok.Type), g.decl(err.Type)), true
	case strings.HasPrefix(name, "Tuple") && strings.Contains(name, "["):
		return idl.TupleOf(g.tupleItems(t)...), true
	}
	return nil, false
}

func (g *generator) tupleItems(t reflect.Type) []*idl.TypeDecl {
	var out []*idl.TypeDecl
	for _, f := range scale.Fields(t) {
		out = append(out, g.field(f))
	}
	return out
}

func (g *generator) structDef(t reflect.Type) *idl.StructDef {
	def := &idl.StructDef{}
	tuple := scale.IsTuple(t)
	for _, f := range scale.Fields(t) {
		sf := &idl.StructField{Type: g.field(f)}
		if !tuple {
			sf.Name = f.Tag.Get("idl")
			if sf.Name == "" {
				sf.Name = SnakeCase(f.Name)
			}
		}
		if d := f.Tag.Get("doc"); d != "" {
			sf.Docs = []string{d}
		}
		def.Fields = append(def.Fields, sf)
	}
	return def
}

func (g *generator) enumDef(t reflect.Type) *idl.EnumDef {
	def := &idl.EnumDef{}
	for _, f := range scale.Fields(t) {
		v := &idl.EnumVariant{Name: f.Name}
		if d := f.Tag.Get("doc"); d != "" {
			v.Docs = []string{d}
		}
		elem := f.Type.Elem()
		if elem != unitType && !(elem.Kind() == reflect.Struct && elem.Name() == "" && elem.NumField() == 0) {
			g.path = append(g.path, f.Name)
			v.Type = g.decl(elem)
			g.path = g.path[:len(g.path)-1]
		}
		def.Variants = append(def.Variants, v)
	}
	return def
}

// namedType registers t as a top-level type and returns its IDL name.
func (g *generator) namedType(t reflect.Type) string {
	if name, ok := g.named[t]; ok {
		return name
	}
	name := typeName(t)
	if other, ok := g.taken[name]; ok && other != t {
		name = exportedPkg(t.PkgPath()) + name
	}
	if other, ok := g.taken[name]; ok && other != t {
		g.fail("types %v and %v both map to %s", other, t, name)
	}
	g.named[t] = name
	g.taken[name] = t

	def := &idl.Type{Name: name}
	g.types = append(g.types, def)
	switch {
	case t.Kind() != reflect.Struct:
		def.Kind = idl.DefAlias
		def.Alias = g.underlying(t)
	case scale.IsEnum(t):
		def.Kind = idl.DefEnum
		def.Enum = g.enumDef(t)
	default:
		def.Kind = idl.DefStruct
		def.Struct = g.structDef(t)
	}
	return name
}

// underlying describes a defined non-struct type by its kind.
func (g *generator) underlying(t reflect.Type) *idl.TypeDecl {
	if p, ok := kindPrimitives[t.Kind()]; ok {
		return idl.Prim(p)
	}
	switch t.Kind() {
	case reflect.Slice:
		return idl.Vec(g.decl(t.Elem()))
	case reflect.Array:
		return idl.Array(g.decl(t.Elem()), uint32(t.Len()))
	case reflect.Map:
		return idl.Map(g.decl(t.Key()), g.decl(t.Elem()))
	case reflect.Pointer:
		return idl.Opt(g.decl(t.Elem()))
	}
	g.fail("unsupported type %v", t)
	return nil
}

// typeName turns Pair[uint32,string] into PairU32Str.
func typeName(t reflect.Type) string {
	name := t.Name()
	base, args, ok := strings.Cut(name, "[")
	if !ok {
		return name
	}
	var b strings.Builder
	b.WriteString(base)
	for _, a := range strings.Split(strings.TrimSuffix(args, "]"), ",") {
		if i := strings.LastIndexAny(a, "./"); i >= 0 {
			a = a[i+1:]
		}
		b.WriteString(PascalCase(argAlias(a)))
	}
	return b.String()
}

func argAlias(a string) string {
	switch a {
	case "uint8":
		return "u8"
	case "uint16":
		return "u16"
	case "uint32":
		return "u32"
	case "uint64":
		return "u64"
	case "int8":
		return "i8"
	case "int16":
		return "i16"
	case "int32":
		return "i32"
	case "int64":
		return "i64"
	case "string":
		return "str"
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return -1
	}, a)
}

func exportedPkg(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	return PascalCase(path)
}
