package idl

import (
	"fmt"
	"strings"
)

const indent = "  "

// Format renders doc in canonical text form. Parsing the output yields the
// same document.
func Format(doc *Document) string {
	f := &formatter{}
	for _, t := range doc.Types {
		f.typ(t)
	}
	if doc.Ctor != nil {
		f.ctor(doc.Ctor)
	}
	for _, s := range doc.Services {
		f.service(s)
	}
	return strings.TrimRight(f.b.String(), "\n") + "\n"
}

// FormatDecl renders a single type declaration.
func FormatDecl(t *TypeDecl) string {
	return declString(t, "")
}

type formatter struct {
	b strings.Builder
}

func (f *formatter) p(depth int, format string, args ...any) {
	f.b.WriteString(strings.Repeat(indent, depth))
	fmt.Fprintf(&f.b, format, args...)
	f.b.WriteByte('\n')
}

func (f *formatter) docs(depth int, lines []string) {
	for _, l := range lines {
		if l == "" {
			f.p(depth, "///")
			continue
		}
		f.p(depth, "/// %s", l)
	}
}

func (f *formatter) typ(t *Type) {
	f.docs(0, t.Docs)
	name := t.Name
	if len(t.Params) > 0 {
		name += "<" + strings.Join(t.Params, ", ") + ">"
	}
	switch t.Kind {
	case DefStruct:
		if len(t.Struct.Fields) == 0 {
			f.p(0, "type %s = struct {};", name)
			break
		}
		f.p(0, "type %s = struct {", name)
		f.fields(1, t.Struct)
		f.p(0, "};")
	case DefEnum:
		if len(t.Enum.Variants) == 0 {
			f.p(0, "type %s = enum {};", name)
			break
		}
		f.p(0, "type %s = enum {", name)
		for _, v := range t.Enum.Variants {
			f.docs(1, v.Docs)
			if v.Type == nil {
				f.p(1, "%s,", v.Name)
				continue
			}
			f.p(1, "%s: %s,", v.Name, declString(v.Type, strings.Repeat(indent, 1)))
		}
		f.p(0, "};")
	default:
		f.p(0, "type %s = %s;", name, declString(t.Alias, ""))
	}
	f.b.WriteByte('\n')
}

func (f *formatter) fields(depth int, s *StructDef) {
	pad := strings.Repeat(indent, depth)
	for _, fd := range s.Fields {
		f.docs(depth, fd.Docs)
		if fd.Name == "" {
			f.p(depth, "%s,", declString(fd.Type, pad))
			continue
		}
		f.p(depth, "%s: %s,", fd.Name, declString(fd.Type, pad))
	}
}

func (f *formatter) ctor(c *Ctor) {
	f.docs(0, c.Docs)
	if len(c.Funcs) == 0 {
		f.p(0, "constructor {};")
		f.b.WriteByte('\n')
		return
	}
	f.p(0, "constructor {")
	for _, fn := range c.Funcs {
		f.docs(1, fn.Docs)
		f.p(1, "%s : (%s);", fn.Name, paramsString(fn.Params))
	}
	f.p(0, "};")
	f.b.WriteByte('\n')
}

func (f *formatter) service(s *Service) {
	f.docs(0, s.Docs)
	head := "service"
	if s.Name != "" {
		head += " " + s.Name
	}
	if len(s.Extends) > 0 {
		head += " : " + strings.Join(s.Extends, ", ")
	}
	if len(s.Funcs) == 0 && len(s.Events) == 0 {
		f.p(0, "%s {};", head)
		f.b.WriteByte('\n')
		return
	}
	f.p(0, "%s {", head)
	for _, fn := range s.Funcs {
		f.docs(1, fn.Docs)
		q := ""
		if fn.Query {
			q = "query "
		}
		line := fmt.Sprintf("%s%s : (%s) -> %s", q, fn.Name, paramsString(fn.Params), declString(fn.Output, indent))
		if fn.Throws != nil {
			line += " throws " + declString(fn.Throws, indent)
		}
		f.p(1, "%s;", line)
	}
	if len(s.Events) > 0 {
		if len(s.Funcs) > 0 {
			f.b.WriteByte('\n')
		}
		f.p(1, "events {")
		for _, e := range s.Events {
			f.docs(2, e.Docs)
			if e.Type == nil {
				f.p(2, "%s;", e.Name)
				continue
			}
			f.p(2, "%s: %s;", e.Name, declString(e.Type, strings.Repeat(indent, 2)))
		}
		f.p(1, "}")
	}
	f.p(0, "};")
	f.b.WriteByte('\n')
}

func paramsString(ps []*Param) string {
	parts := make([]string, 0, len(ps))
	for _, p := range ps {
		parts = append(parts, p.Name+": "+declString(p.Type, indent))
	}
	return strings.Join(parts, ", ")
}

// declString renders t. pad is the indentation of the line t starts on, used
// when an inline struct with documented fields spans several lines.
func declString(t *TypeDecl, pad string) string {
	switch t.Kind {
	case DeclPrimitive:
		return t.Prim.String()
	case DeclOpt:
		return "opt " + declString(t.Elem, pad)
	case DeclVec:
		return "vec " + declString(t.Elem, pad)
	case DeclArray:
		return fmt.Sprintf("[%s, %d]", declString(t.Elem, pad), t.Len)
	case DeclMap:
		return fmt.Sprintf("map (%s, %s)", declString(t.Key, pad), declString(t.Value, pad))
	case DeclResult:
		return fmt.Sprintf("result (%s, %s)", declString(t.Ok, pad), declString(t.Err, pad))
	case DeclTuple:
		items := make([]string, 0, len(t.Items))
		for _, item := range t.Items {
			items = append(items, declString(item, pad))
		}
		return "(" + strings.Join(items, ", ") + ")"
	case DeclStruct:
		return structString(t.Struct, pad)
	case DeclNamed:
		if len(t.Args) == 0 {
			return t.Name
		}
		args := make([]string, 0, len(t.Args))
		for _, a := range t.Args {
			args = append(args, declString(a, pad))
		}
		return t.Name + "<" + strings.Join(args, ", ") + ">"
	}
	return "null"
}

func structString(s *StructDef, pad string) string {
	if len(s.Fields) == 0 {
		return "struct {}"
	}
	documented := false
	for _, f := range s.Fields {
		if len(f.Docs) > 0 {
			documented = true
		}
	}
	if !documented {
		parts := make([]string, 0, len(s.Fields))
		for _, f := range s.Fields {
			if f.Name == "" {
				parts = append(parts, declString(f.Type, pad))
				continue
			}
			parts = append(parts, f.Name+": "+declString(f.Type, pad))
		}
		return "struct { " + strings.Join(parts, ", ") + " }"
	}

	inner := pad + indent
	var b strings.Builder
	b.WriteString("struct {\n")
	for _, f := range s.Fields {
		for _, l := range f.Docs {
			b.WriteString(strings.TrimRight(inner+"/// "+l, " ") + "\n")
		}
		b.WriteString(inner)
		if f.Name != "" {
			b.WriteString(f.Name + ": ")
		}
		b.WriteString(declString(f.Type, inner) + ",\n")
	}
	b.WriteString(pad + "}")
	return b.String()
}
