package parser

import (
	"regexp"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// Fallback for includes tree-sitter could not split into path tokens.
var includeRe = regexp.MustCompile(`#include\s+["<]([^">]+)[">]`)

type cExtractor struct{}

func (e *cExtractor) extract(root *sitter.Node, source []byte, result *ParseResult) {
	e.walkFunctions(root, source, result)
	e.walkAggregates(root, source, result)
	e.walkIncludes(root, source, result)
	e.walkTypedefs(root, source, result)
	e.walkCalls(root, source, []string{ModuleCaller}, result)
	e.walkMacros(root, source, result)
	e.walkVariables(root, source, nil, result)
	e.walkFieldAccesses(root, source, result)
	e.collectUsages(root, source, result)
}

// functionDeclarator digs the function_declarator out of a definition or
// declaration, unwrapping pointer declarators for pointer-returning
// functions.
func functionDeclarator(n *sitter.Node) *sitter.Node {
	decl := n.ChildByFieldName("declarator")
	if decl == nil {
		decl = childOfKind(n, "function_declarator")
	}
	if decl != nil && decl.Kind() == "pointer_declarator" {
		if fd := childOfKind(decl, "function_declarator"); fd != nil {
			decl = fd
		}
	}
	if decl == nil || decl.Kind() != "function_declarator" {
		if pd := childOfKind(n, "pointer_declarator"); pd != nil {
			if fd := childOfKind(pd, "function_declarator"); fd != nil {
				return fd
			}
		}
		return nil
	}
	return decl
}

func functionName(declarator *sitter.Node, source []byte) string {
	if id := childOfKind(declarator, "identifier"); id != nil {
		return text(id, source)
	}
	return ""
}

func (e *cExtractor) walkFunctions(n *sitter.Node, source []byte, result *ParseResult) {
	isDeclaration := false
	isFunction := n.Kind() == "function_definition"
	if n.Kind() == "declaration" {
		if functionDeclarator(n) != nil {
			isFunction = true
			isDeclaration = true
		}
	}

	if isFunction {
		if decl := functionDeclarator(n); decl != nil {
			if name := functionName(decl, source); name != "" {
				params := e.parameters(decl.ChildByFieldName("parameters"), source)
				returnType := e.returnType(n, source)
				result.Functions = append(result.Functions, Function{
					Name:          name,
					Line:          line(n),
					Column:        column(n),
					Signature:     buildCSignature(name, params, returnType, isDeclaration),
					Parameters:    params,
					ReturnType:    returnType,
					IsDeclaration: isDeclaration,
				})
			}
		}
	}

	for i := uint(0); i < n.ChildCount(); i++ {
		e.walkFunctions(n.Child(i), source, result)
	}
}

func (e *cExtractor) parameters(list *sitter.Node, source []byte) []string {
	if list == nil {
		return nil
	}
	var names []string
	for i := uint(0); i < list.ChildCount(); i++ {
		child := list.Child(i)
		if child.Kind() != "parameter_declaration" {
			continue
		}
		name := ""
		if id := childOfKind(child, "identifier"); id != nil {
			name = text(id, source)
		} else if pd := childOfKind(child, "pointer_declarator"); pd != nil {
			if id := childOfKind(pd, "identifier"); id != nil {
				name = text(id, source)
			}
		} else if decl := child.ChildByFieldName("declarator"); decl != nil {
			switch decl.Kind() {
			case "identifier":
				name = text(decl, source)
			case "pointer_declarator":
				if id := childOfKind(decl, "identifier"); id != nil {
					name = text(id, source)
				}
			}
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

func (e *cExtractor) returnType(n *sitter.Node, source []byte) string {
	if n.ChildCount() == 0 {
		return ""
	}
	first := n.Child(0)
	switch first.Kind() {
	case "primitive_type", "type_identifier", "sized_type_specifier":
		rt := text(first, source)
		if n.ChildCount() > 1 && n.Child(1).Kind() == "pointer_declarator" {
			rt += "*"
		}
		return rt
	}
	return ""
}

func buildCSignature(name string, params []string, returnType string, isDeclaration bool) string {
	var sb strings.Builder
	if returnType != "" {
		sb.WriteString(returnType)
		sb.WriteByte(' ')
	}
	sb.WriteString(name)
	sb.WriteByte('(')
	sb.WriteString(strings.Join(params, ", "))
	sb.WriteByte(')')
	if isDeclaration {
		sb.WriteByte(';')
	}
	return sb.String()
}

// walkAggregates records struct/union/enum definitions as Class entries.
// A typedef'd anonymous aggregate becomes one entry under the alias name and
// never shows up again as a Typedef.
func (e *cExtractor) walkAggregates(n *sitter.Node, source []byte, result *ParseResult) {
	switch n.Kind() {
	case "type_definition":
		var specifier *sitter.Node
		alias := ""
		for i := uint(0); i < n.ChildCount(); i++ {
			child := n.Child(i)
			switch child.Kind() {
			case "struct_specifier", "union_specifier", "enum_specifier":
				specifier = child
			case "type_identifier":
				alias = text(child, source)
			}
		}
		// Aliases of named aggregates without a body stay typedefs; only
		// typedefs that define the aggregate become Class entries.
		if specifier != nil && alias != "" && e.aggregateBody(specifier) != nil {
			result.Classes = append(result.Classes, Class{
				Name:    alias,
				Line:    line(n),
				Column:  column(n),
				Members: e.aggregateMembers(specifier, source),
			})
		}
	case "struct_specifier", "union_specifier", "enum_specifier":
		// Bare definitions only; references like "struct User u;" have a
		// name but no body.
		name := n.ChildByFieldName("name")
		if name != nil && e.aggregateBody(n) != nil {
			result.Classes = append(result.Classes, Class{
				Name:    text(name, source),
				Line:    line(n),
				Column:  column(n),
				Members: e.aggregateMembers(n, source),
			})
		}
	}

	for i := uint(0); i < n.ChildCount(); i++ {
		e.walkAggregates(n.Child(i), source, result)
	}
}

func (e *cExtractor) aggregateBody(specifier *sitter.Node) *sitter.Node {
	if body := specifier.ChildByFieldName("body"); body != nil {
		return body
	}
	if body := childOfKind(specifier, "field_declaration_list"); body != nil {
		return body
	}
	return childOfKind(specifier, "enumerator_list")
}

// aggregateMembers returns field names for structs/unions and enumerator
// names for enums.
func (e *cExtractor) aggregateMembers(specifier *sitter.Node, source []byte) []string {
	body := e.aggregateBody(specifier)
	if body == nil {
		return nil
	}
	var members []string
	for i := uint(0); i < body.ChildCount(); i++ {
		child := body.Child(i)
		switch child.Kind() {
		case "field_declaration":
			if name := e.fieldName(child, source); name != "" {
				members = append(members, name)
			}
		case "enumerator":
			if id := childOfKind(child, "identifier"); id != nil {
				members = append(members, text(id, source))
			}
		}
	}
	return members
}

func (e *cExtractor) fieldName(field *sitter.Node, source []byte) string {
	for i := uint(0); i < field.ChildCount(); i++ {
		child := field.Child(i)
		if child.Kind() == "field_identifier" || child.Kind() == "identifier" {
			return text(child, source)
		}
	}
	decl := field.ChildByFieldName("declarator")
	if decl == nil {
		return ""
	}
	switch decl.Kind() {
	case "identifier", "field_identifier":
		return text(decl, source)
	case "pointer_declarator":
		for i := uint(0); i < decl.ChildCount(); i++ {
			child := decl.Child(i)
			if child.Kind() == "identifier" || child.Kind() == "field_identifier" {
				return text(child, source)
			}
		}
	case "array_declarator":
		inner := decl.ChildByFieldName("declarator")
		if inner == nil {
			return ""
		}
		if inner.Kind() == "identifier" || inner.Kind() == "field_identifier" {
			return text(inner, source)
		}
		for i := uint(0); i < inner.ChildCount(); i++ {
			child := inner.Child(i)
			if child.Kind() == "identifier" || child.Kind() == "field_identifier" {
				return text(child, source)
			}
		}
	}
	return ""
}

func (e *cExtractor) walkIncludes(n *sitter.Node, source []byte, result *ParseResult) {
	if n.Kind() == "preproc_include" {
		raw := text(n, source)
		module := ""
		system := false
		for i := uint(0); i < n.ChildCount(); i++ {
			child := n.Child(i)
			switch child.Kind() {
			case "system_lib_string":
				module = strings.Trim(text(child, source), "<>")
				system = true
			case "string_literal":
				module = strings.Trim(text(child, source), `"`)
			}
			if module != "" {
				break
			}
		}
		if module == "" {
			if m := includeRe.FindStringSubmatch(raw); m != nil {
				module = m[1]
				system = strings.Contains(raw, "<")
			} else {
				module = strings.TrimSpace(raw)
			}
		}
		tag := IncludeLocal
		if system {
			tag = IncludeSystem
		}
		result.Imports = append(result.Imports, Import{
			Module:        module,
			Text:          raw,
			ImportedItems: []string{tag},
			Line:          line(n),
			IsStdlib:      system,
		})
	}

	for i := uint(0); i < n.ChildCount(); i++ {
		e.walkIncludes(n.Child(i), source, result)
	}
}

// walkTypedefs records simple alias typedefs. Aggregate typedefs are already
// Class entries and are skipped here.
func (e *cExtractor) walkTypedefs(n *sitter.Node, source []byte, result *ParseResult) {
	if n.Kind() == "type_definition" {
		var specifier *sitter.Node
		alias := ""
		underlying := ""
		for i := uint(0); i < n.ChildCount(); i++ {
			child := n.Child(i)
			switch child.Kind() {
			case "struct_specifier", "union_specifier", "enum_specifier":
				specifier = child
			case "type_identifier":
				if underlying == "" && alias != "" {
					// Second type_identifier: the first was the source type.
					underlying = alias
				}
				alias = text(child, source)
			case "primitive_type", "sized_type_specifier":
				underlying = text(child, source)
			}
		}
		switch {
		case specifier != nil:
			// Typedefs that define an aggregate body are Class entries.
			// Aliases of already-named aggregates stay typedefs so field
			// accesses can resolve through them.
			if e.aggregateBody(specifier) == nil && alias != "" {
				if name := specifier.ChildByFieldName("name"); name != nil {
					keyword, _, _ := strings.Cut(specifier.Kind(), "_")
					result.Typedefs = append(result.Typedefs, Typedef{
						Name:           alias,
						UnderlyingType: keyword + " " + text(name, source),
						Line:           line(n),
					})
				}
			}
		case alias != "":
			if underlying == "" {
				underlying = "unknown"
			}
			result.Typedefs = append(result.Typedefs, Typedef{
				Name:           alias,
				UnderlyingType: underlying,
				Line:           line(n),
			})
		}
	}

	for i := uint(0); i < n.ChildCount(); i++ {
		e.walkTypedefs(n.Child(i), source, result)
	}
}

func (e *cExtractor) walkCalls(n *sitter.Node, source []byte, callerStack []string, result *ParseResult) {
	if n.Kind() == "function_definition" {
		if decl := functionDeclarator(n); decl != nil {
			if name := functionName(decl, source); name != "" {
				callerStack = append(callerStack, name)
			}
		}
	}

	if n.Kind() == "call_expression" && n.ChildCount() > 0 {
		if callee, isMethod, ok := e.callee(n.Child(0), source); ok {
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

func (e *cExtractor) callee(fn *sitter.Node, source []byte) (name string, isMethod bool, ok bool) {
	switch fn.Kind() {
	case "identifier":
		return text(fn, source), false, true
	case "field_expression":
		// obj->method() or obj.method()
		if field := fn.ChildByFieldName("field"); field != nil {
			return text(field, source), true, true
		}
		for i := int(fn.ChildCount()) - 1; i >= 0; i-- {
			child := fn.Child(uint(i))
			if child.Kind() == "field_identifier" || child.Kind() == "identifier" {
				return text(child, source), true, true
			}
		}
	case "parenthesized_expression", "pointer_expression":
		// (*func_ptr)() and friends.
		for i := uint(0); i < fn.ChildCount(); i++ {
			child := fn.Child(i)
			if child.Kind() == "identifier" {
				return text(child, source), false, true
			}
			if child.Kind() == "pointer_expression" {
				if id := childOfKind(child, "identifier"); id != nil {
					return text(id, source), false, true
				}
			}
		}
	}
	return "", false, false
}

func (e *cExtractor) walkMacros(n *sitter.Node, source []byte, result *ParseResult) {
	switch n.Kind() {
	case "preproc_def":
		if id := childOfKind(n, "identifier"); id != nil {
			value := ""
			if arg := n.ChildByFieldName("value"); arg != nil {
				value = strings.TrimSpace(text(arg, source))
			}
			result.Macros = append(result.Macros, Macro{
				Name:  text(id, source),
				Value: value,
				Line:  line(n),
			})
		}
	case "preproc_function_def":
		if id := childOfKind(n, "identifier"); id != nil {
			value := ""
			if arg := n.ChildByFieldName("value"); arg != nil {
				value = strings.TrimSpace(text(arg, source))
			}
			result.Macros = append(result.Macros, Macro{
				Name:           text(id, source),
				Value:          value,
				Line:           line(n),
				IsFunctionLike: true,
			})
		}
	}

	for i := uint(0); i < n.ChildCount(); i++ {
		e.walkMacros(n.Child(i), source, result)
	}
}

func (e *cExtractor) walkVariables(n *sitter.Node, source []byte, functionStack []string, result *ParseResult) {
	if n.Kind() == "function_definition" {
		if decl := functionDeclarator(n); decl != nil {
			if name := functionName(decl, source); name != "" {
				functionStack = append(functionStack, name)
			}
		}
	}

	if n.Kind() == "declaration" && functionDeclarator(n) == nil {
		if name := e.variableName(n, source); name != "" {
			enclosing := ""
			if len(functionStack) > 0 {
				enclosing = functionStack[len(functionStack)-1]
			}
			result.Variables = append(result.Variables, Variable{
				Name:     name,
				TypeName: e.declarationType(n, source),
				Function: enclosing,
				Line:     line(n),
			})
		}
	}

	for i := uint(0); i < n.ChildCount(); i++ {
		e.walkVariables(n.Child(i), source, functionStack, result)
	}
}

func (e *cExtractor) variableName(decl *sitter.Node, source []byte) string {
	d := decl.ChildByFieldName("declarator")
	if d == nil {
		return ""
	}
	if d.Kind() == "init_declarator" {
		if inner := d.ChildByFieldName("declarator"); inner != nil {
			d = inner
		}
	}
	switch d.Kind() {
	case "identifier":
		return text(d, source)
	case "pointer_declarator":
		if id := childOfKind(d, "identifier"); id != nil {
			return text(id, source)
		}
	case "array_declarator":
		inner := d.ChildByFieldName("declarator")
		if inner != nil && inner.Kind() == "identifier" {
			return text(inner, source)
		}
		if inner != nil {
			if id := childOfKind(inner, "identifier"); id != nil {
				return text(id, source)
			}
		}
	}
	return ""
}

func (e *cExtractor) declarationType(decl *sitter.Node, source []byte) string {
	for i := uint(0); i < decl.ChildCount(); i++ {
		child := decl.Child(i)
		switch child.Kind() {
		case "primitive_type", "type_identifier", "sized_type_specifier":
			return text(child, source)
		case "struct_specifier", "union_specifier", "enum_specifier":
			if name := child.ChildByFieldName("name"); name != nil {
				return text(name, source)
			}
		}
	}
	return ""
}

// walkFieldAccesses records struct member accesses. A first pass maps
// variable names to their declared types so "user->name" resolves to the
// User struct; casts like ((User*)p)->name resolve through the cast type.
func (e *cExtractor) walkFieldAccesses(root *sitter.Node, source []byte, result *ParseResult) {
	variableTypes := map[string]string{}
	var collect func(n *sitter.Node)
	collect = func(n *sitter.Node) {
		switch n.Kind() {
		case "parameter_declaration":
			typeName := e.declarationType(n, source)
			decl := n.ChildByFieldName("declarator")
			if decl != nil && typeName != "" {
				name := ""
				if decl.Kind() == "identifier" {
					name = text(decl, source)
				} else if id := childOfKind(decl, "identifier"); id != nil {
					name = text(id, source)
				}
				if name != "" {
					variableTypes[name] = typeName
				}
			}
		case "declaration":
			typeName := e.declarationType(n, source)
			if typeName != "" {
				if name := e.variableName(n, source); name != "" {
					variableTypes[name] = typeName
				}
			}
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			collect(n.Child(i))
		}
	}
	collect(root)

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Kind() == "field_expression" {
			field := n.ChildByFieldName("field")
			if field == nil {
				field = childOfKind(n, "field_identifier")
			}
			operand := n.ChildByFieldName("argument")
			if operand == nil {
				for i := uint(0); i < n.ChildCount(); i++ {
					child := n.Child(i)
					switch child.Kind() {
					case "identifier", "pointer_expression", "cast_expression", "parenthesized_expression":
						operand = child
					}
					if operand != nil {
						break
					}
				}
			}
			if field != nil && operand != nil {
				structName := e.operandType(operand, source, variableTypes)
				accessType := "direct"
				if childOfKind(n, "->") != nil {
					accessType = "pointer"
				}
				if structName != "" {
					result.Accesses = append(result.Accesses, FieldAccess{
						StructName: structName,
						FieldName:  text(field, source),
						AccessType: accessType,
						Line:       line(n),
						Column:     column(n),
					})
				}
			}
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
}

func (e *cExtractor) operandType(expr *sitter.Node, source []byte, variableTypes map[string]string) string {
	switch expr.Kind() {
	case "identifier":
		name := text(expr, source)
		if t, ok := variableTypes[name]; ok {
			return t
		}
		return name
	case "pointer_expression":
		if operand := expr.ChildByFieldName("argument"); operand != nil {
			return e.operandType(operand, source, variableTypes)
		}
	case "cast_expression":
		if typeNode := expr.ChildByFieldName("type"); typeNode != nil {
			if id := childOfKind(typeNode, "type_identifier"); id != nil {
				return text(id, source)
			}
		}
	case "parenthesized_expression":
		for i := uint(0); i < expr.ChildCount(); i++ {
			child := expr.Child(i)
			if child.Kind() == "(" || child.Kind() == ")" {
				continue
			}
			if t := e.operandType(child, source, variableTypes); t != "" {
				return t
			}
		}
	}
	return ""
}

// collectUsages records references to macros, file-scope variables, and
// typedefs already extracted from this file. Definition sites are excluded.
func (e *cExtractor) collectUsages(root *sitter.Node, source []byte, result *ParseResult) {
	macroNames := map[string]bool{}
	macroLines := map[int]bool{}
	for _, m := range result.Macros {
		macroNames[m.Name] = true
		macroLines[m.Line] = true
	}
	variableNames := map[string]bool{}
	for _, v := range result.Variables {
		variableNames[v.Name] = true
	}
	typedefNames := map[string]bool{}
	typedefLines := map[int]bool{}
	for _, t := range result.Typedefs {
		typedefNames[t.Name] = true
		typedefLines[t.Line] = true
	}
	if len(macroNames) == 0 && len(variableNames) == 0 && len(typedefNames) == 0 {
		return
	}

	var walk func(n *sitter.Node, functionStack []string, inDecl, inMacroDef, inTypedef bool)
	walk = func(n *sitter.Node, functionStack []string, inDecl, inMacroDef, inTypedef bool) {
		switch n.Kind() {
		case "function_definition":
			if decl := functionDeclarator(n); decl != nil {
				if name := functionName(decl, source); name != "" {
					functionStack = append(functionStack, name)
				}
			}
		case "declaration":
			inDecl = true
		case "preproc_def", "preproc_function_def":
			inMacroDef = true
		case "type_definition":
			inTypedef = true
		case "init_declarator":
			// Only the declared name is a definition site. The initializer
			// is an ordinary expression and may reference other variables.
			if d := n.ChildByFieldName("declarator"); d != nil {
				walk(d, functionStack, inDecl, inMacroDef, inTypedef)
			}
			if v := n.ChildByFieldName("value"); v != nil {
				walk(v, functionStack, false, inMacroDef, inTypedef)
			}
			return
		}

		enclosing := ""
		if len(functionStack) > 0 {
			enclosing = functionStack[len(functionStack)-1]
		}

		switch n.Kind() {
		case "identifier":
			name := text(n, source)
			if macroNames[name] && !inMacroDef && !macroLines[line(n)] {
				result.Usages = append(result.Usages, Usage{
					Kind: KindMacroUsage, Name: name, Function: enclosing,
					Line: line(n), Column: column(n),
				})
			}
			if variableNames[name] && !inDecl {
				result.Usages = append(result.Usages, Usage{
					Kind: KindVariableUsage, Name: name, Function: enclosing,
					Line: line(n), Column: column(n),
				})
			}
		case "type_identifier":
			name := text(n, source)
			if typedefNames[name] && !inTypedef && !typedefLines[line(n)] {
				result.Usages = append(result.Usages, Usage{
					Kind: KindTypedefUsage, Name: name, Function: enclosing,
					Line: line(n), Column: column(n),
				})
			}
		}

		for i := uint(0); i < n.ChildCount(); i++ {
			walk(n.Child(i), functionStack, inDecl, inMacroDef, inTypedef)
		}
	}
	walk(root, nil, false, false, false)
}
