package idl

import (
	"fmt"
	"math"
	"strings"
)

// ValidationError is a semantic error found after parsing.
type ValidationError struct {
	Msg  string
	Span Span
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func invalid(span Span, format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...), Span: span}
}

const mixedFieldsMsg = "Mixing named and unnamed fields in a struct or enum variant is not allowed."

// Validate resolves type references, checks uniqueness and the extends graph
// and assigns entry ids. It mutates doc only to set EntryID fields.
func Validate(doc *Document) error {
	if doc.Ctor == nil && len(doc.Services) == 0 {
		return invalid(Span{}, "document must contain a constructor or a service")
	}

	v := &validator{doc: doc, types: map[string]*Type{}}
	for _, t := range doc.Types {
		if IsKeyword(t.Name) {
			return invalid(t.Span, "type name '%s' is reserved", t.Name)
		}
		key := strings.ToLower(t.Name)
		if _, dup := v.types[key]; dup {
			return invalid(t.Span, "duplicate type '%s'", t.Name)
		}
		v.types[key] = t
	}

	for _, t := range doc.Types {
		if err := v.typeDef(t); err != nil {
			return err
		}
	}
	if err := v.ctor(doc.Ctor); err != nil {
		return err
	}
	if err := v.services(); err != nil {
		return err
	}
	AssignEntryIDs(doc)
	return nil
}

type validator struct {
	doc   *Document
	types map[string]*Type
}

func (v *validator) typeDef(t *Type) error {
	scope := map[string]bool{}
	for _, p := range t.Params {
		if scope[p] {
			return invalid(t.Span, "duplicate type parameter '%s' in '%s'", p, t.Name)
		}
		scope[p] = true
	}
	switch t.Kind {
	case DefStruct:
		return v.structDef(t.Struct, scope, t.Span)
	case DefEnum:
		seen := map[string]bool{}
		for _, variant := range t.Enum.Variants {
			key := strings.ToLower(variant.Name)
			if seen[key] {
				return invalid(t.Span, "duplicate enum variant '%s'", variant.Name)
			}
			seen[key] = true
			if variant.Type == nil {
				continue
			}
			if err := v.decl(variant.Type, scope); err != nil {
				return err
			}
		}
		return nil
	default:
		return v.decl(t.Alias, scope)
	}
}

func (v *validator) structDef(s *StructDef, scope map[string]bool, span Span) error {
	named, unnamed := 0, 0
	seen := map[string]bool{}
	for _, f := range s.Fields {
		if f.Name == "" {
			unnamed++
		} else {
			named++
			key := strings.ToLower(f.Name)
			if seen[key] {
				return invalid(span, "duplicate struct field '%s'", f.Name)
			}
			seen[key] = true
		}
		if err := v.decl(f.Type, scope); err != nil {
			return err
		}
	}
	if named > 0 && unnamed > 0 {
		return invalid(span, mixedFieldsMsg)
	}
	return nil
}

func (v *validator) decl(t *TypeDecl, scope map[string]bool) error {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case DeclPrimitive:
		return nil
	case DeclOpt, DeclVec, DeclArray:
		return v.decl(t.Elem, scope)
	case DeclMap:
		if err := v.decl(t.Key, scope); err != nil {
			return err
		}
		return v.decl(t.Value, scope)
	case DeclResult:
		if err := v.decl(t.Ok, scope); err != nil {
			return err
		}
		return v.decl(t.Err, scope)
	case DeclTuple:
		for _, item := range t.Items {
			if err := v.decl(item, scope); err != nil {
				return err
			}
		}
		return nil
	case DeclStruct:
		return v.structDef(t.Struct, scope, t.Span)
	case DeclNamed:
		if scope[t.Name] {
			if len(t.Args) > 0 {
				return invalid(t.Span, "type parameter '%s' takes no arguments", t.Name)
			}
			return nil
		}
		def, ok := v.types[strings.ToLower(t.Name)]
		if !ok || def.Name != t.Name {
			return invalid(t.Span, "Unknown type '%s'", t.Name)
		}
		if len(def.Params) != len(t.Args) {
			return invalid(t.Span, "type '%s' expects %d type arguments, got %d", t.Name, len(def.Params), len(t.Args))
		}
		for _, a := range t.Args {
			if err := v.decl(a, scope); err != nil {
				return err
			}
		}
		return nil
	}
	return invalid(t.Span, "invalid type declaration")
}

func (v *validator) params(ps []*Param, owner string, span Span) error {
	seen := map[string]bool{}
	for _, p := range ps {
		if seen[p.Name] {
			return invalid(span, "duplicate parameter '%s' in '%s'", p.Name, owner)
		}
		seen[p.Name] = true
		if err := v.decl(p.Type, nil); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) ctor(c *Ctor) error {
	if c == nil {
		return nil
	}
	seen := map[string]bool{}
	for _, f := range c.Funcs {
		key := strings.ToLower(f.Name)
		if seen[key] {
			return invalid(f.Span, "duplicate constructor '%s'", f.Name)
		}
		seen[key] = true
		if err := v.params(f.Params, f.Name, f.Span); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) services() error {
	byName := map[string]*Service{}
	for _, s := range v.doc.Services {
		key := strings.ToLower(s.Name)
		if _, dup := byName[key]; dup {
			if s.Name == "" {
				return invalid(s.Span, "duplicate unnamed service")
			}
			return invalid(s.Span, "duplicate service '%s'", s.Name)
		}
		byName[key] = s

		funcs := map[string]bool{}
		for _, f := range s.Funcs {
			key := strings.ToLower(f.Name)
			if funcs[key] {
				return invalid(f.Span, "duplicate function '%s' in service '%s'", f.Name, s.Name)
			}
			funcs[key] = true
			if err := v.params(f.Params, f.Name, f.Span); err != nil {
				return err
			}
			if err := v.decl(f.Output, nil); err != nil {
				return err
			}
			if err := v.decl(f.Throws, nil); err != nil {
				return err
			}
		}
		events := map[string]bool{}
		for _, e := range s.Events {
			key := strings.ToLower(e.Name)
			if events[key] {
				return invalid(e.Span, "duplicate event '%s' in service '%s'", e.Name, s.Name)
			}
			if funcs[key] {
				return invalid(e.Span, "event '%s' collides with a function in service '%s'", e.Name, s.Name)
			}
			events[key] = true
			if err := v.decl(e.Type, nil); err != nil {
				return err
			}
		}
		if len(s.Funcs) > math.MaxUint16+1 || len(s.Events) > math.MaxUint16+1 {
			return invalid(s.Span, "service '%s' has too many entries", s.Name)
		}
	}

	for _, s := range v.doc.Services {
		for _, base := range s.Extends {
			b, ok := byName[strings.ToLower(base)]
			if !ok || b.Name != base {
				return invalid(s.Span, "service '%s' extends unknown service '%s'", s.Name, base)
			}
		}
	}

	// 检查 extends 是否成环
	const (
		white = iota
		grey
		black
	)
	color := map[*Service]int{}
	var visit func(s *Service, path []string) error
	visit = func(s *Service, path []string) error {
		path = append(path, s.Name)
		switch color[s] {
		case grey:
			return invalid(s.Span, "service extension cycle: %s", strings.Join(path, " -> "))
		case black:
			return nil
		}
		color[s] = grey
		for _, base := range s.Extends {
			if err := visit(byName[strings.ToLower(base)], path); err != nil {
				return err
			}
		}
		color[s] = black
		return nil
	}
	for _, s := range v.doc.Services {
		if err := visit(s, nil); err != nil {
			return err
		}
	}
	return nil
}

// AssignEntryIDs numbers commands then queries of every service from zero,
// events separately from zero, and constructors in order.
func AssignEntryIDs(doc *Document) {
	if doc.Ctor != nil {
		for i, f := range doc.Ctor.Funcs {
			f.EntryID = uint16(i)
		}
	}
	for _, s := range doc.Services {
		id := uint16(0)
		for _, f := range s.Commands() {
			f.EntryID = id
			id++
		}
		for _, f := range s.Queries() {
			f.EntryID = id
			id++
		}
		for i, e := range s.Events {
			e.EntryID = uint16(i)
		}
	}
}
