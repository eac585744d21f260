package codegen

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/kanengo/rigging/pkg/idl"
	"github.com/kanengo/rigging/runtime/idlgen"
)

const (
	riggingPackagePath = "github.com/kanengo/rigging"
)

// importSet 记录生成代码导入过的包
type importSet struct {
	imported       []importPkg
	importedByPath map[string]importPkg
	importedByName map[string]importPkg
}

// importPkg 已生成代码导入过的包
type importPkg struct {
	path  string // e.g., "github.com/kanengo/rigging/runtime/scale"
	pkg   string // e.g., "scale"
	alias string // e.g., foo in `import foo "context"`
}

func (i importPkg) name() string {
	if i.alias != "" {
		return i.alias
	}
	return i.pkg
}

func (i importPkg) qualify(member string) string {
	return fmt.Sprintf("%s.%s", i.name(), member)
}

func newImportSet() *importSet {
	return &importSet{
		importedByPath: map[string]importPkg{},
		importedByName: map[string]importPkg{},
	}
}

// importPackage 导入包, 包名冲突时使用别名
func (s *importSet) importPackage(path, pkg string) importPkg {
	if imp, ok := s.importedByPath[path]; ok {
		return imp
	}
	imp := importPkg{path: path, pkg: pkg}
	if _, taken := s.importedByName[pkg]; taken {
		for i := 1; ; i++ {
			alias := fmt.Sprintf("%s%d", pkg, i)
			if _, taken := s.importedByName[alias]; !taken {
				imp.alias = alias
				break
			}
		}
	}
	s.imported = append(s.imported, imp)
	s.importedByPath[path] = imp
	s.importedByName[imp.name()] = imp
	return imp
}

func (s *importSet) imports() []importPkg {
	out := append([]importPkg(nil), s.imported...)
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

func (s *importSet) scale() importPkg {
	return s.importPackage(path.Join(riggingPackagePath, "runtime/scale"), "scale")
}

var primitiveTypes = map[idl.Primitive]string{
	idl.Bool: "bool",
	idl.Str:  "string",
	idl.U8:   "uint8",
	idl.U16:  "uint16",
	idl.U32:  "uint32",
	idl.U64:  "uint64",
	idl.I8:   "int8",
	idl.I16:  "int16",
	idl.I32:  "int32",
	idl.I64:  "int64",
}

var scalePrimitives = map[idl.Primitive]string{
	idl.Null:      "Unit",
	idl.Char:      "Char",
	idl.U128:      "U128",
	idl.I128:      "I128",
	idl.H160:      "H160",
	idl.H256:      "H256",
	idl.U256:      "U256",
	idl.ActorID:   "ActorID",
	idl.MessageID: "MessageID",
	idl.CodeID:    "CodeID",
}

// goType 返回 IDL 类型声明对应的 Go 类型
func (g *generator) goType(t *idl.TypeDecl) string {
	if t == nil {
		return g.imports.scale().qualify("Unit")
	}
	switch t.Kind {
	case idl.DeclPrimitive:
		if s, ok := primitiveTypes[t.Prim]; ok {
			return s
		}
		return g.imports.scale().qualify(scalePrimitives[t.Prim])
	case idl.DeclOpt:
		return fmt.Sprintf("%s[%s]", g.imports.scale().qualify("Option"), g.goType(t.Elem))
	case idl.DeclVec:
		return "[]" + g.goType(t.Elem)
	case idl.DeclArray:
		return fmt.Sprintf("[%d]%s", t.Len, g.goType(t.Elem))
	case idl.DeclMap:
		return fmt.Sprintf("map[%s]%s", g.goType(t.Key), g.goType(t.Value))
	case idl.DeclResult:
		return fmt.Sprintf("%s[%s, %s]", g.imports.scale().qualify("Result"), g.goType(t.Ok), g.goType(t.Err))
	case idl.DeclTuple:
		return g.tupleType(t.Items)
	case idl.DeclStruct:
		return g.structType(t.Struct, "")
	case idl.DeclNamed:
		name := g.typeName(t.Name)
		if len(t.Args) == 0 {
			return name
		}
		args := make([]string, len(t.Args))
		for i, a := range t.Args {
			args[i] = g.goType(a)
		}
		return fmt.Sprintf("%s[%s]", name, strings.Join(args, ", "))
	}
	panic(fmt.Sprintf("unexpected type declaration kind %d", t.Kind))
}

func (g *generator) tupleType(items []*idl.TypeDecl) string {
	switch len(items) {
	case 0:
		return g.imports.scale().qualify("Unit")
	case 2, 3, 4:
		args := make([]string, len(items))
		for i, it := range items {
			args[i] = g.goType(it)
		}
		return fmt.Sprintf("%s[%s]", g.imports.scale().qualify(fmt.Sprintf("Tuple%d", len(items))), strings.Join(args, ", "))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "struct { %s; ", g.imports.scale().qualify("Tuple"))
	for i, it := range items {
		fmt.Fprintf(&b, "F%d %s; ", i, g.goType(it))
	}
	b.WriteString("}")
	return b.String()
}

// structType 生成结构体类型, indent 非空时每个字段单独一行
func (g *generator) structType(s *idl.StructDef, indent string) string {
	if len(s.Fields) == 0 {
		return "struct{}"
	}
	tuple := s.IsTuple()
	var b strings.Builder
	b.WriteString("struct {")
	sep := " "
	if indent != "" {
		sep = "\n" + indent
	}
	if tuple {
		fmt.Fprintf(&b, "%s%s", sep, g.imports.scale().qualify("Tuple"))
		if indent == "" {
			b.WriteString(";")
		}
	}
	for i, f := range s.Fields {
		if indent != "" {
			for _, d := range f.Docs {
				fmt.Fprintf(&b, "%s// %s", sep, d)
			}
		}
		if tuple {
			fmt.Fprintf(&b, "%sF%d %s", sep, i, g.goType(f.Type))
		} else {
			fmt.Fprintf(&b, "%s%s %s%s", sep, fieldName(f.Name), g.goType(f.Type), idlTag(f.Name))
		}
		if indent == "" {
			b.WriteString(";")
		}
	}
	if indent != "" {
		b.WriteString("\n")
	} else {
		b.WriteString(" ")
	}
	b.WriteString("}")
	return b.String()
}

// typeName 返回 IDL 类型名对应的 Go 名字, 泛型参数保持原样
func (g *generator) typeName(name string) string {
	if g.typeParams[name] {
		return name
	}
	return exported(idlgen.PascalCase(name))
}

func fieldName(name string) string {
	return exported(idlgen.PascalCase(name))
}

// idlTag 在 Go 字段名无法还原 IDL 名字时记录原名
func idlTag(name string) string {
	if idlgen.SnakeCase(fieldName(name)) == name {
		return ""
	}
	return fmt.Sprintf(" `idl:%q`", name)
}
