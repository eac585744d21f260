// Package codegen generates Go clients from IDL documents.
package codegen

import (
	"bytes"
	"fmt"
	"go/token"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/tools/imports"

	"github.com/kanengo/rigging/internal/files"
	"github.com/kanengo/rigging/pkg/idl"
	"github.com/kanengo/rigging/runtime/idlgen"
)

const (
	generatedCodeSuffix = "_client.go"

	Usage = `Generate a Go client for a program from its IDL.

Usage:
  rigging generate-client <idl file> [-o dir] [--package name] [--program-name name] [--mocks]

Description:
  generate-client writes <program>_client.go into the output directory. The
  file holds, for every service of the IDL, the I/O descriptors of its
  functions, an interface, a client implementing it on any transport, an
  event listener and, with --mocks, a mock implementing the interface. A
  factory activates the program with its constructors.

Examples:
  # Generate counter_client.go in the current directory.
  rigging generate-client counter.idl

  # Generate into ./client with mocks.
  rigging generate-client -o client --mocks counter.idl`
)

// Options 控制生成的客户端代码
type Options struct {
	// Package is the package clause of the generated file. Defaults to the
	// program name lower cased.
	Package string
	// ProgramName names the factory and the program client.
	ProgramName string
	Mocks       bool
}

type generator struct {
	doc        *idl.Document
	opts       Options
	imports    *importSet
	typeParams map[string]bool
}

type printFn func(format string, args ...any)

// Generate returns the formatted client source of doc. doc must be
// validated.
func Generate(doc *idl.Document, opts Options) ([]byte, error) {
	if opts.ProgramName == "" {
		return nil, fmt.Errorf("missing program name")
	}
	opts.ProgramName = exported(idlgen.PascalCase(opts.ProgramName))
	if opts.Package == "" {
		opts.Package = packageName(opts.ProgramName)
	}
	if !token.IsIdentifier(opts.Package) {
		return nil, fmt.Errorf("invalid package name %q", opts.Package)
	}

	g := &generator{doc: doc, opts: opts, imports: newImportSet(), typeParams: map[string]bool{}}

	var body bytes.Buffer
	{
		p := func(format string, args ...any) {
			_, _ = fmt.Fprintln(&body, fmt.Sprintf(format, args...))
		}
		g.generateTypes(p)
		g.generateFactory(p)
		g.generateProgram(p)
		for _, svc := range doc.Services {
			if err := g.generateService(p, svc); err != nil {
				return nil, err
			}
		}
		if opts.Mocks {
			for _, svc := range doc.Services {
				g.generateMock(p, svc)
			}
		}
	}

	var header bytes.Buffer
	{
		p := func(format string, args ...any) {
			_, _ = fmt.Fprintln(&header, fmt.Sprintf(format, args...))
		}
		g.generateImports(p)
	}

	src := append(header.Bytes(), body.Bytes()...)
	formatted, err := imports.Process(strings.ToLower(opts.ProgramName)+generatedCodeSuffix, src, &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("format generated client: %w", err)
	}
	return formatted, nil
}

// GenerateFile parses idlFile and writes the client into outDir. It returns
// the path of the written file.
func GenerateFile(idlFile, outDir string, opts Options) (string, error) {
	doc, err := idl.ParseFile(idlFile)
	if err != nil {
		return "", err
	}
	if opts.ProgramName == "" {
		base := filepath.Base(idlFile)
		opts.ProgramName = strings.TrimSuffix(base, filepath.Ext(base))
	}
	src, err := Generate(doc, opts)
	if err != nil {
		return "", fmt.Errorf("%s: %w", idlFile, err)
	}
	name := idlgen.SnakeCase(exported(idlgen.PascalCase(opts.ProgramName))) + generatedCodeSuffix
	filename := filepath.Join(outDir, name)
	if err := files.WriteFile(filename, src); err != nil {
		return "", err
	}
	return filename, nil
}

func (g *generator) generateImports(p printFn) {
	p(`// Code generated by "rigging generate-client". DO NOT EDIT.`)
	p(``)
	p(`package %s`, g.opts.Package)
	p(``)
	p(`import (`)
	for _, imp := range g.imports.imports() {
		if imp.alias == "" {
			p(`	%s`, strconv.Quote(imp.path))
		} else {
			p(`	%s %s`, imp.alias, strconv.Quote(imp.path))
		}
	}
	p(`)`)
}

func (g *generator) context() importPkg {
	return g.imports.importPackage("context", "context")
}

func (g *generator) fmt() importPkg {
	return g.imports.importPackage("fmt", "fmt")
}

func (g *generator) rigging() importPkg {
	return g.imports.importPackage(riggingPackagePath, "rigging")
}

func (g *generator) codegen() importPkg {
	return g.imports.importPackage(path.Join(riggingPackagePath, "runtime/codegen"), "codegen")
}

func (g *generator) remoting() importPkg {
	return g.imports.importPackage(path.Join(riggingPackagePath, "runtime/remoting"), "remoting")
}

func (g *generator) wire() importPkg {
	return g.imports.importPackage(path.Join(riggingPackagePath, "runtime/wire"), "wire")
}

func docs(p printFn, indent string, lines []string) {
	for _, l := range lines {
		p(`%s// %s`, indent, l)
	}
}

// generateTypes 生成 IDL 里的顶层类型
func (g *generator) generateTypes(p printFn) {
	for _, t := range g.doc.Types {
		g.typeParams = map[string]bool{}
		for _, tp := range t.Params {
			g.typeParams[tp] = true
		}
		name := g.typeName(t.Name)
		params := ""
		if len(t.Params) > 0 {
			params = "[" + strings.Join(t.Params, ", ") + " any]"
		}
		docs(p, "", t.Docs)
		switch t.Kind {
		case idl.DefStruct:
			p(`type %s%s %s`, name, params, g.structType(t.Struct, "\t"))
		case idl.DefEnum:
			p(`type %s%s struct {`, name, params)
			p(`	%s`, g.imports.scale().qualify("Enum"))
			for _, v := range t.Enum.Variants {
				docs(p, "\t", v.Docs)
				elem := "struct{}"
				if v.Type != nil {
					elem = g.goType(v.Type)
				}
				p(`	%s *%s%s`, fieldName(v.Name), elem, variantTag(v.Name))
			}
			p(`}`)
		case idl.DefAlias:
			if params == "" {
				p(`type %s = %s`, name, g.goType(t.Alias))
			} else {
				p(`type %s%s %s`, name, params, g.goType(t.Alias))
			}
		}
		p(``)
	}
	g.typeParams = map[string]bool{}
}

// variantTag 在 Go 字段名和事件或变体名不同的时候记录原名
func variantTag(name string) string {
	if fieldName(name) == name {
		return ""
	}
	return fmt.Sprintf(" `idl:%q`", name)
}

// param 是一个函数参数在生成代码里的形式
type param struct {
	name  string // Go 参数名
	field string // params 结构体字段
	typ   string
}

func (g *generator) params(ps []*idl.Param) []param {
	out := make([]param, len(ps))
	for i, x := range ps {
		out[i] = param{name: paramName(x.Name), field: fieldName(x.Name), typ: g.goType(x.Type)}
	}
	return out
}

// signature 返回 ctx 之后的参数列表
func signature(ps []param) string {
	var b strings.Builder
	for _, x := range ps {
		fmt.Fprintf(&b, ", %s %s", x.name, x.typ)
	}
	return b.String()
}

func argNames(ps []param) string {
	var b strings.Builder
	for _, x := range ps {
		fmt.Fprintf(&b, ", %s", x.name)
	}
	return b.String()
}

// paramsValue 构造 params 结构体, 没有参数时为 scale.Unit
func (g *generator) paramsValue(typ string, ps []param) string {
	if len(ps) == 0 {
		return g.imports.scale().qualify("Unit") + "{}"
	}
	fields := make([]string, len(ps))
	for i, x := range ps {
		fields[i] = fmt.Sprintf("%s: %s", x.field, x.name)
	}
	return fmt.Sprintf("%s{%s}", typ, strings.Join(fields, ", "))
}

// paramsStruct 生成 params 结构体并返回其类型名
func (g *generator) paramsStruct(p printFn, name string, ps []*idl.Param) string {
	if len(ps) == 0 {
		return g.imports.scale().qualify("Unit")
	}
	p(`type %s struct {`, name)
	for _, x := range ps {
		p(`	%s %s%s`, fieldName(x.Name), g.goType(x.Type), idlTag(x.Name))
	}
	p(`}`)
	p(``)
	return name
}

func (g *generator) factoryName() string { return g.opts.ProgramName + "Factory" }

func (g *generator) programName() string { return g.opts.ProgramName + "Program" }

func (g *generator) generateFactory(p printFn) {
	factory := g.factoryName()
	remoting, scale := g.remoting(), g.imports.scale()
	future := fmt.Sprintf("*%s[%s]", remoting.qualify("Future"), scale.qualify("ActorID"))

	type ctor struct {
		fn     *idl.CtorFunc
		io     string
		params string
	}
	var ctors []ctor
	if c := g.doc.Ctor; c != nil && len(c.Funcs) > 0 {
		for _, f := range c.Funcs {
			name := exported(idlgen.PascalCase(f.Name))
			ctors = append(ctors, ctor{
				fn:     f,
				io:     g.opts.ProgramName + "Ctor" + name + "IO",
				params: g.paramsStruct(p, g.opts.ProgramName+"Ctor"+name+"Params", f.Params),
			})
		}
		p(`var (`)
		for _, c := range ctors {
			p(`	%s = %s[%s](%q, %d)`, c.io, g.wire().qualify("NewCtorIO"), c.params, c.fn.Name, c.fn.EntryID)
		}
		p(`)`)
		p(``)
	}

	p(`// %s activates %s programs from an uploaded code.`, factory, g.opts.ProgramName)
	p(`type %s struct {`, factory)
	p(`	remoting %s`, remoting.qualify("Remoting"))
	p(`	code     %s`, scale.qualify("CodeID"))
	p(`	args     %s`, remoting.qualify("Args"))
	p(`}`)
	p(``)
	p(`func New%s(r %s, code %s) *%s {`, factory, remoting.qualify("Remoting"), scale.qualify("CodeID"), factory)
	p(`	return &%s{remoting: r, code: code}`, factory)
	p(`}`)
	p(``)
	p(`// WithArgs returns a copy of f activating with args.`)
	p(`func (f *%s) WithArgs(args %s) *%s {`, factory, remoting.qualify("Args"), factory)
	p(`	c := *f`)
	p(`	c.args = args`)
	p(`	return &c`)
	p(`}`)
	p(``)

	if len(ctors) == 0 {
		p(`// Default activates a program without constructor.`)
		p(`func (f *%s) Default(ctx %s, salt []byte) (%s, error) {`, factory, g.context().qualify("Context"), future)
		p(`	fut, err := f.remoting.Activate(ctx, f.code, salt, nil, f.args)`)
		p(`	if err != nil {`)
		p(`		return nil, err`)
		p(`	}`)
		p(`	return %s(fut, func(a %s) (%s, error) {`, remoting.qualify("Then"), remoting.qualify("Activation"), scale.qualify("ActorID"))
		p(`		return a.ProgramID, nil`)
		p(`	}), nil`)
		p(`}`)
		p(``)
		return
	}
	for _, c := range ctors {
		ps := g.params(c.fn.Params)
		docs(p, "", c.fn.Docs)
		p(`func (f *%s) %s(ctx %s, salt []byte%s) (%s, error) {`,
			factory, methodName(exported(idlgen.PascalCase(c.fn.Name)), factoryMethods), g.context().qualify("Context"), signature(ps), future)
		p(`	return %s(ctx, f.remoting, f.code, salt, %s, %s, f.args)`, g.codegen().qualify("Activate"), c.io, g.paramsValue(c.params, ps))
		p(`}`)
		p(``)
	}
}

// generateProgram 生成访问程序各个服务的入口
func (g *generator) generateProgram(p printFn) {
	name := g.programName()
	remoting, scale := g.remoting(), g.imports.scale()
	p(`// %s gives access to the services of a running %s program.`, name, g.opts.ProgramName)
	p(`type %s struct {`, name)
	p(`	remoting %s`, remoting.qualify("Remoting"))
	p(`	id       %s`, scale.qualify("ActorID"))
	p(`}`)
	p(``)
	p(`func New%s(r %s, id %s) *%s {`, name, remoting.qualify("Remoting"), scale.qualify("ActorID"), name)
	p(`	return &%s{remoting: r, id: id}`, name)
	p(`}`)
	p(``)
	p(`func (p *%s) ID() %s { return p.id }`, name, scale.qualify("ActorID"))
	p(``)
	for _, svc := range g.doc.Services {
		svcName := serviceName(svc)
		p(`func (p *%s) %s() *%sClient {`, name, methodName(svcName, programMethods), svcName)
		p(`	return New%sClient(p.remoting, p.id)`, svcName)
		p(`}`)
		p(``)
	}
}

// fn 是某个路由下可调用的函数, 继承来的函数沿用基础服务的参数类型
type fn struct {
	f      *idl.Func
	owner  *idl.Service
	io     string
	params string
	reply  string
}

// funcs 列出服务自己的函数和未被覆盖的继承函数
func (g *generator) funcs(svc *idl.Service) []*fn {
	var out []*fn
	seen := map[string]bool{}
	visited := map[string]bool{}
	var walk func(s *idl.Service)
	walk = func(s *idl.Service) {
		if visited[s.Name] {
			return
		}
		visited[s.Name] = true
		for _, f := range ordered(s) {
			if seen[f.Name] {
				continue
			}
			seen[f.Name] = true
			out = append(out, &fn{f: f, owner: s})
		}
		for _, b := range s.Extends {
			if base := g.doc.Service(b); base != nil {
				walk(base)
			}
		}
	}
	walk(svc)
	svcName := serviceName(svc)
	for _, x := range out {
		name := exported(idlgen.PascalCase(x.f.Name))
		x.io = svcName + name + "IO"
		x.params = serviceName(x.owner) + name + "Params"
		x.reply = g.goType(x.f.Output)
		if x.f.Throws != nil {
			x.reply = fmt.Sprintf("%s[%s, %s]", g.imports.scale().qualify("Result"), g.goType(x.f.Output), g.goType(x.f.Throws))
		}
	}
	return out
}

// ordered 返回命令在前查询在后的函数
func ordered(s *idl.Service) []*idl.Func {
	return append(s.Commands(), s.Queries()...)
}

func (g *generator) generateService(p printFn, svc *idl.Service) error {
	name := serviceName(svc)
	client := name + "Client"
	codegen, remoting, scale := g.codegen(), g.remoting(), g.imports.scale()
	ctx := g.context().qualify("Context")
	funcs := g.funcs(svc)

	for _, f := range ordered(svc) {
		g.paramsStruct(p, name+exported(idlgen.PascalCase(f.Name))+"Params", f.Params)
	}
	if len(funcs) > 0 {
		p(`var (`)
		for _, x := range funcs {
			params := scale.qualify("Unit")
			if len(x.f.Params) > 0 {
				params = x.params
			}
			p(`	%s = %s[%s, %s](%q, %q, %d)`, x.io, g.wire().qualify("NewIO"), params, x.reply, svc.Name, x.f.Name, x.f.EntryID)
		}
		p(`)`)
		p(``)
	}

	events := name + "Events"
	if len(svc.Events) > 0 {
		p(`// %s is the union of the events of %s.`, events, name)
		p(`type %s struct {`, events)
		p(`	%s`, scale.qualify("Enum"))
		for _, ev := range svc.Events {
			docs(p, "\t", ev.Docs)
			elem := "struct{}"
			if !ev.Type.IsUnit() {
				elem = g.goType(ev.Type)
			}
			p(`	%s *%s%s`, fieldName(ev.Name), elem, variantTag(ev.Name))
		}
		p(`}`)
		p(``)
		names := make([]string, len(svc.Events))
		for i, ev := range svc.Events {
			names[i] = strconv.Quote(ev.Name)
		}
		p(`var %sEventSet = %s(%q, %s)`, name, g.wire().qualify("NewEventSet"), svc.Name, strings.Join(names, ", "))
		p(``)
		p(`// Listen%s streams the events of %s emitted by source, or by every`, name, name)
		p(`// program when source is zero.`)
		p(`func Listen%s(ctx %s, r %s, source %s) (<-chan %s[%s], error) {`, name, ctx, remoting.qualify("Remoting"), scale.qualify("ActorID"), codegen.qualify("Received"), events)
		p(`	return %s[%s](ctx, r, %sEventSet, source)`, codegen.qualify("Listen"), events, name)
		p(`}`)
		p(``)
	}

	id, err := idl.InterfaceID(g.doc, svc)
	if err != nil {
		return err
	}
	own := append([]*idl.Func(nil), svc.Funcs...)
	sort.SliceStable(own, func(i, j int) bool { return own[i].EntryID < own[j].EntryID })
	p(`func init() {`)
	p(`	%s(%s{`, codegen.qualify("Register"), codegen.qualify("Meta"))
	p(`		Route:       %q,`, svc.Name)
	p(`		InterfaceID: 0x%016x,`, id)
	p(`		Entries: []%s{`, codegen.qualify("Entry"))
	for _, f := range own {
		p(`			{Name: %q, ID: %d, Query: %t},`, f.Name, f.EntryID, f.Query)
	}
	p(`		},`)
	if len(svc.Events) > 0 {
		names := make([]string, len(svc.Events))
		for i, ev := range svc.Events {
			names[i] = strconv.Quote(ev.Name)
		}
		p(`		Events: []string{%s},`, strings.Join(names, ", "))
	}
	p(`	})`)
	p(`}`)
	p(``)

	docs(p, "", svc.Docs)
	p(`type %s interface {`, name)
	for _, x := range funcs {
		docs(p, "\t", x.f.Docs)
		p(`	%s`, g.methodSig(x))
	}
	if len(svc.Events) > 0 {
		p(`	Listen(ctx %s) (<-chan %s[%s], error)`, ctx, codegen.qualify("Received"), events)
	}
	p(`}`)
	p(``)
	p(`// %s calls %s on a program through any transport.`, client, name)
	p(`type %s struct {`, client)
	p(`	stub *%s`, codegen.qualify("Stub"))
	p(`}`)
	p(``)
	p(`var _ %s = (*%s)(nil)`, name, client)
	p(``)
	p(`func New%s(r %s, target %s) *%s {`, client, remoting.qualify("Remoting"), scale.qualify("ActorID"), client)
	p(`	return &%s{stub: %s(r, target, %q)}`, client, codegen.qualify("NewStub"), g.opts.ProgramName)
	p(`}`)
	p(``)
	p(`// WithArgs returns a copy of c sending every call with args.`)
	p(`func (c *%s) WithArgs(args %s) *%s {`, client, remoting.qualify("Args"), client)
	p(`	return &%s{stub: c.stub.WithArgs(args)}`, client)
	p(`}`)
	p(``)
	p(`func (c *%s) Stub() *%s { return c.stub }`, client, codegen.qualify("Stub"))
	p(``)

	for _, x := range funcs {
		ps := g.params(x.f.Params)
		value := g.paramsValue(x.params, ps)
		helper := codegen.qualify("Call")
		if x.f.Query {
			helper = codegen.qualify("Query")
		}
		p(`func (c *%s) %s {`, client, g.methodSig(x))
		g.callBody(p, x, fmt.Sprintf("%s(ctx, c.stub, %s, %s)", helper, x.io, value))
		p(`}`)
		p(``)
		if x.f.Query {
			continue
		}
		p(`// Send%s sends %s without waiting for its reply.`, methodName(exported(idlgen.PascalCase(x.f.Name)), clientMethods), x.f.Name)
		p(`func (c *%s) Send%s(ctx %s%s) (*%s[%s], error) {`,
			client, methodName(exported(idlgen.PascalCase(x.f.Name)), clientMethods), ctx, signature(ps), remoting.qualify("Future"), x.reply)
		p(`	return %s(ctx, c.stub, %s, %s)`, codegen.qualify("Send"), x.io, value)
		p(`}`)
		p(``)
	}
	if len(svc.Events) > 0 {
		p(`// Listen streams the events emitted by the target program.`)
		p(`func (c *%s) Listen(ctx %s) (<-chan %s[%s], error) {`, client, ctx, codegen.qualify("Received"), events)
		p(`	return Listen%s(ctx, c.stub.Remoting(), c.stub.Target())`, name)
		p(`}`)
		p(``)
	}
	return nil
}

// results 返回方法的返回值类型, 返回 unit 的函数只返回 error
func (g *generator) results(x *fn) string {
	if x.f.Output.IsUnit() {
		return "error"
	}
	return fmt.Sprintf("(%s, error)", g.goType(x.f.Output))
}

func (g *generator) methodSig(x *fn) string {
	ps := g.params(x.f.Params)
	return fmt.Sprintf("%s(ctx %s%s) %s",
		methodName(exported(idlgen.PascalCase(x.f.Name)), clientMethods), g.context().qualify("Context"), signature(ps), g.results(x))
}

// callBody 生成调用并把 throws 的 Err 分支转成 error
func (g *generator) callBody(p printFn, x *fn, call string) {
	unit := x.f.Output.IsUnit()
	if x.f.Throws == nil {
		if unit {
			p(`	_, err := %s`, call)
			p(`	return err`)
			return
		}
		p(`	return %s`, call)
		return
	}
	p(`	r, err := %s`, call)
	p(`	if err == nil && r.IsErr {`)
	p(`		err = %s(r.Err)`, g.rigging().qualify("Throw"))
	p(`	}`)
	if unit {
		p(`	return err`)
		return
	}
	p(`	return r.Ok, err`)
}

// generateMock 生成用函数字段实现服务接口的 mock
func (g *generator) generateMock(p printFn, svc *idl.Service) {
	name := serviceName(svc)
	mock := name + "Mock"
	ctx := g.context().qualify("Context")
	funcs := g.funcs(svc)

	p(`// %s implements %s with function fields. Unset fields fail with`, mock, name)
	p(`// codegen.ErrNotMocked.`)
	p(`type %s struct {`, mock)
	for _, x := range funcs {
		ps := g.params(x.f.Params)
		p(`	%sFunc func(ctx %s%s) %s`, methodName(exported(idlgen.PascalCase(x.f.Name)), clientMethods), ctx, signature(ps), g.results(x))
	}
	events := name + "Events"
	if len(svc.Events) > 0 {
		p(`	ListenFunc func(ctx %s) (<-chan %s[%s], error)`, ctx, g.codegen().qualify("Received"), events)
	}
	p(`}`)
	p(``)
	p(`var _ %s = (*%s)(nil)`, name, mock)
	p(``)
	for _, x := range funcs {
		method := methodName(exported(idlgen.PascalCase(x.f.Name)), clientMethods)
		ps := g.params(x.f.Params)
		p(`func (m *%s) %s {`, mock, g.methodSig(x))
		p(`	if m.%sFunc == nil {`, method)
		notMocked := fmt.Sprintf("%s(\"%%w: %s.%s\", %s)", g.fmt().qualify("Errorf"), name, x.f.Name, g.codegen().qualify("ErrNotMocked"))
		if x.f.Output.IsUnit() {
			p(`		return %s`, notMocked)
		} else {
			p(`		var zero %s`, g.goType(x.f.Output))
			p(`		return zero, %s`, notMocked)
		}
		p(`	}`)
		p(`	return m.%sFunc(ctx%s)`, method, argNames(ps))
		p(`}`)
		p(``)
	}
	if len(svc.Events) > 0 {
		p(`func (m *%s) Listen(ctx %s) (<-chan %s[%s], error) {`, mock, ctx, g.codegen().qualify("Received"), events)
		p(`	if m.ListenFunc == nil {`)
		p(`		return nil, %s("%%w: %s.Listen", %s)`, g.fmt().qualify("Errorf"), name, g.codegen().qualify("ErrNotMocked"))
		p(`	}`)
		p(`	return m.ListenFunc(ctx)`)
		p(`}`)
		p(``)
	}
}

// 生成的类型已经占用的方法名
var (
	clientMethods  = map[string]bool{"WithArgs": true, "Stub": true, "Listen": true}
	factoryMethods = map[string]bool{"WithArgs": true}
	programMethods = map[string]bool{"ID": true}
)

// methodName 给和生成方法冲突的名字加上前缀
func methodName(name string, taken map[string]bool) string {
	if taken[name] {
		return "Call" + name
	}
	return name
}

// 生成代码里已经使用的局部变量名
var reservedParams = map[string]bool{
	"ctx": true, "c": true, "m": true, "f": true, "p": true, "r": true,
	"err": true, "salt": true, "fut": true, "zero": true,
}

// paramName 把 IDL 参数名转成 Go 参数名, 关键字和保留名加前缀 _
func paramName(name string) string {
	n := notExported(idlgen.PascalCase(name))
	if token.IsKeyword(n) || reservedParams[n] || isPredeclared(n) {
		return "_" + n
	}
	return n
}

func isPredeclared(name string) bool {
	switch name {
	case "bool", "byte", "error", "string", "rune", "any", "int", "uint", "len", "cap",
		"make", "new", "nil", "true", "false", "append", "copy", "delete", "panic", "recover",
		"int8", "int16", "int32", "int64", "uint8", "uint16", "uint32", "uint64", "min", "max",
		"print", "println", "close", "clear", "iota", "complex", "real", "imag":
		return true
	}
	return false
}

// serviceName 返回服务的 Go 名字, 匿名服务叫 Service
func serviceName(s *idl.Service) string {
	if s.Name == "" {
		return "Service"
	}
	return exported(idlgen.PascalCase(s.Name))
}

func packageName(program string) string {
	return strings.ReplaceAll(strings.ToLower(idlgen.SnakeCase(program)), "_", "")
}

func notExported(name string) string {
	if len(name) == 0 {
		return name
	}
	a := []rune(name)
	a[0] = unicode.ToLower(a[0])
	return string(a)
}

func exported(name string) string {
	if len(name) == 0 {
		return name
	}
	a := []rune(name)
	a[0] = unicode.ToUpper(a[0])
	return string(a)
}
