package parser

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// Top-level standard library modules. Imports of these are dropped so the
// graph only tracks project-internal dependencies.
var pythonStdlibModules = map[string]bool{
	"abc": true, "argparse": true, "array": true, "ast": true, "asyncio": true,
	"atexit": true, "base64": true, "binascii": true, "bisect": true,
	"builtins": true, "bz2": true, "calendar": true, "cmath": true, "cmd": true,
	"codecs": true, "collections": true, "concurrent": true, "configparser": true,
	"contextlib": true, "copy": true, "copyreg": true, "csv": true, "ctypes": true,
	"dataclasses": true, "datetime": true, "decimal": true, "difflib": true,
	"dis": true, "doctest": true, "email": true, "enum": true, "errno": true,
	"faulthandler": true, "filecmp": true, "fileinput": true, "fnmatch": true,
	"fractions": true, "ftplib": true, "functools": true, "gc": true,
	"getopt": true, "getpass": true, "gettext": true, "glob": true,
	"graphlib": true, "gzip": true, "hashlib": true, "heapq": true, "hmac": true,
	"html": true, "http": true, "importlib": true, "inspect": true, "io": true,
	"ipaddress": true, "itertools": true, "json": true, "keyword": true,
	"linecache": true, "locale": true, "logging": true, "lzma": true,
	"mailbox": true, "marshal": true, "math": true, "mimetypes": true,
	"mmap": true, "multiprocessing": true, "numbers": true, "operator": true,
	"os": true, "pathlib": true, "pdb": true, "pickle": true, "pkgutil": true,
	"platform": true, "plistlib": true, "pprint": true, "pstats": true,
	"pty": true, "pwd": true, "py_compile": true, "pydoc": true, "queue": true,
	"random": true, "re": true, "readline": true, "reprlib": true,
	"resource": true, "runpy": true, "sched": true, "secrets": true,
	"select": true, "selectors": true, "shelve": true, "shlex": true,
	"shutil": true, "signal": true, "site": true, "smtplib": true,
	"socket": true, "socketserver": true, "sqlite3": true, "ssl": true,
	"stat": true, "statistics": true, "string": true, "struct": true,
	"subprocess": true, "sys": true, "sysconfig": true, "syslog": true,
	"tarfile": true, "tempfile": true, "termios": true, "test": true,
	"textwrap": true, "threading": true, "time": true, "timeit": true,
	"tkinter": true, "token": true, "tokenize": true, "trace": true,
	"traceback": true, "tracemalloc": true, "tty": true, "types": true,
	"typing": true, "unicodedata": true, "unittest": true, "urllib": true,
	"uuid": true, "venv": true, "warnings": true, "wave": true, "weakref": true,
	"webbrowser": true, "wsgiref": true, "xml": true, "xmlrpc": true,
	"zipapp": true, "zipfile": true, "zipimport": true, "zlib": true,
}

func isPythonStdlib(module string) bool {
	top, _, _ := strings.Cut(module, ".")
	return pythonStdlibModules[top]
}

type pythonExtractor struct{}

func (e *pythonExtractor) extract(root *sitter.Node, source []byte, result *ParseResult) {
	e.walkDefinitions(root, source, "", result)
	e.walkImports(root, source, result)
	e.walkCalls(root, source, []string{ModuleCaller}, result)
}

// walkDefinitions collects function and class definitions. className carries
// the nearest enclosing class so methods keep their owner.
func (e *pythonExtractor) walkDefinitions(n *sitter.Node, source []byte, className string, result *ParseResult) {
	switch n.Kind() {
	case "function_definition":
		if name := n.ChildByFieldName("name"); name != nil {
			params := e.parameters(n.ChildByFieldName("parameters"), source)
			returnType := ""
			if rt := n.ChildByFieldName("return_type"); rt != nil {
				returnType = text(rt, source)
			}
			result.Functions = append(result.Functions, Function{
				Name:       text(name, source),
				Line:       line(n),
				Column:     column(n),
				Signature:  buildPythonSignature(text(name, source), params, returnType),
				Parameters: params,
				ReturnType: returnType,
				Docstring:  e.docstring(n, source),
				ClassName:  className,
			})
		}
	case "class_definition":
		if name := n.ChildByFieldName("name"); name != nil {
			result.Classes = append(result.Classes, Class{
				Name:        text(name, source),
				Line:        line(n),
				Column:      column(n),
				BaseClasses: e.baseClasses(n, source),
				Members:     e.methodNames(n.ChildByFieldName("body"), source),
				Docstring:   e.docstring(n, source),
			})
			className = text(name, source)
		}
	}

	for i := uint(0); i < n.ChildCount(); i++ {
		e.walkDefinitions(n.Child(i), source, className, result)
	}
}

func (e *pythonExtractor) parameters(params *sitter.Node, source []byte) []string {
	if params == nil {
		return nil
	}
	var names []string
	for i := uint(0); i < params.ChildCount(); i++ {
		child := params.Child(i)
		switch child.Kind() {
		case "identifier":
			names = append(names, text(child, source))
		case "typed_parameter", "default_parameter", "typed_default_parameter":
			// Parameter name is the leading identifier.
			if child.ChildCount() > 0 && child.Child(0).Kind() == "identifier" {
				names = append(names, text(child.Child(0), source))
			}
		}
	}
	return names
}

func buildPythonSignature(name string, params []string, returnType string) string {
	sig := name + "(" + strings.Join(params, ", ") + ")"
	if returnType != "" {
		sig += " -> " + returnType
	}
	return sig
}

// docstring returns the first string literal in a definition body, quotes
// stripped.
func (e *pythonExtractor) docstring(n *sitter.Node, source []byte) string {
	body := n.ChildByFieldName("body")
	if body == nil {
		return ""
	}
	for i := uint(0); i < body.ChildCount(); i++ {
		child := body.Child(i)
		if child.Kind() != "expression_statement" || child.ChildCount() == 0 {
			continue
		}
		expr := child.Child(0)
		if expr.Kind() != "string" {
			continue
		}
		s := text(expr, source)
		for _, q := range []string{`"""`, "'''"} {
			if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
				return strings.TrimSpace(s[len(q) : len(s)-len(q)])
			}
		}
		return strings.TrimSpace(strings.Trim(s, `"'`))
	}
	return ""
}

func (e *pythonExtractor) baseClasses(classNode *sitter.Node, source []byte) []string {
	super := classNode.ChildByFieldName("superclasses")
	if super == nil {
		return nil
	}
	var bases []string
	for i := uint(0); i < super.ChildCount(); i++ {
		child := super.Child(i)
		if child.Kind() == "identifier" || child.Kind() == "attribute" {
			bases = append(bases, text(child, source))
		}
	}
	return bases
}

func (e *pythonExtractor) methodNames(body *sitter.Node, source []byte) []string {
	if body == nil {
		return nil
	}
	var methods []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Kind() == "function_definition" {
			if name := n.ChildByFieldName("name"); name != nil {
				methods = append(methods, text(name, source))
			}
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			walk(n.Child(i))
		}
	}
	walk(body)
	return methods
}

// walkImports collects the three import forms. Function-local imports are
// flattened to module scope; only position is recorded.
func (e *pythonExtractor) walkImports(n *sitter.Node, source []byte, result *ParseResult) {
	switch n.Kind() {
	case "import_statement":
		if imp, ok := e.importStatement(n, source); ok && !isPythonStdlib(imp.Module) {
			result.Imports = append(result.Imports, imp)
		}
	case "import_from_statement":
		if imp, ok := e.importFromStatement(n, source); ok && !isPythonStdlib(imp.Module) {
			result.Imports = append(result.Imports, imp)
		}
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		e.walkImports(n.Child(i), source, result)
	}
}

func (e *pythonExtractor) importStatement(n *sitter.Node, source []byte) (Import, bool) {
	imp := Import{Text: text(n, source), Line: line(n)}
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		switch child.Kind() {
		case "dotted_name", "identifier":
			if imp.Module == "" {
				imp.Module = text(child, source)
			}
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name != nil {
				if imp.Module == "" {
					imp.Module = text(name, source)
				} else {
					imp.ImportedItems = append(imp.ImportedItems, text(name, source))
				}
			}
			if alias != nil {
				imp.Alias = text(alias, source)
			}
		}
	}
	return imp, imp.Module != ""
}

func (e *pythonExtractor) importFromStatement(n *sitter.Node, source []byte) (Import, bool) {
	imp := Import{Text: text(n, source), Line: line(n)}
	if mod := n.ChildByFieldName("module_name"); mod != nil {
		imp.Module = text(mod, source)
	}

	// Items follow the "import" keyword.
	afterImport := false
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child.Kind() == "import" {
			afterImport = true
			continue
		}
		if !afterImport {
			continue
		}
		switch child.Kind() {
		case "identifier", "dotted_name":
			imp.ImportedItems = append(imp.ImportedItems, text(child, source))
		case "aliased_import":
			if name := child.ChildByFieldName("name"); name != nil {
				imp.ImportedItems = append(imp.ImportedItems, text(name, source))
			}
			if alias := child.ChildByFieldName("alias"); alias != nil {
				imp.Alias = text(alias, source)
			}
		}
	}
	return imp, imp.Module != ""
}

// walkCalls records one FunctionCall per call site. Only the terminal
// attribute name is kept as callee so method calls match their definitions.
func (e *pythonExtractor) walkCalls(n *sitter.Node, source []byte, callerStack []string, result *ParseResult) {
	if n.Kind() == "function_definition" {
		if name := n.ChildByFieldName("name"); name != nil {
			callerStack = append(callerStack, text(name, source))
		}
	}

	if n.Kind() == "call" {
		if callee, isMethod, ok := e.callee(n, source); ok {
			result.Calls = append(result.Calls, FunctionCall{
				CallerName:   callerStack[len(callerStack)-1],
				CalleeName:   callee,
				Line:         line(n),
				IsMethodCall: isMethod,
			})
		}
	}

	for i := uint(0); i < n.ChildCount(); i++ {
		e.walkCalls(n.Child(i), source, callerStack, result)
	}
}

func (e *pythonExtractor) callee(call *sitter.Node, source []byte) (name string, isMethod bool, ok bool) {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return "", false, false
	}
	switch fn.Kind() {
	case "identifier":
		return text(fn, source), false, true
	case "attribute":
		if attr := fn.ChildByFieldName("attribute"); attr != nil && attr.Kind() == "identifier" {
			return text(attr, source), true, true
		}
	}
	return "", false, false
}
