package resolve

import (
	"context"
	"fmt"

	"codegraph/internal/graph"
	"codegraph/internal/parser"
	"codegraph/internal/store"
)

var symbolTypes = map[string]bool{
	"function": true,
	"macro":    true,
	"variable": true,
	"struct":   true,
	"typedef":  true,
}

// FindSymbolUsages lists definitions and references of a symbol. An unknown
// symbol is not an error; the result just has count 0.
func (e *Engine) FindSymbolUsages(ctx context.Context, symbol, symbolType string) (*SymbolUsages, error) {
	if !symbolTypes[symbolType] {
		return nil, fmt.Errorf("invalid symbol_type %q: must be one of function, macro, variable, struct, typedef", symbolType)
	}

	result := &SymbolUsages{Usages: []SymbolUsage{}, Symbol: symbol, SymbolType: symbolType}

	var err error
	switch symbolType {
	case "function":
		err = e.functionUsages(ctx, symbol, result)
	case "macro":
		err = e.definitionAndUsages(ctx, symbol, graph.KindMacro, parser.KindMacroUsage, result,
			func(n *graph.Node) string { return "Macro definition" })
	case "variable":
		err = e.definitionAndUsages(ctx, symbol, graph.KindVariable, parser.KindVariableUsage, result,
			func(n *graph.Node) string { return "Variable definition: " + orUnknown(n.UnderlyingType) })
	case "typedef":
		err = e.definitionAndUsages(ctx, symbol, graph.KindTypedef, parser.KindTypedefUsage, result,
			func(n *graph.Node) string { return "Typedef: " + orUnknown(n.UnderlyingType) })
	case "struct":
		err = e.structUsages(ctx, symbol, result)
	}
	if err != nil {
		return nil, err
	}

	result.Count = len(result.Usages)
	return result, nil
}

func (e *Engine) functionUsages(ctx context.Context, symbol string, result *SymbolUsages) error {
	defs, err := e.q.Nodes(ctx, store.NodeQuery{Kind: graph.KindFunction, Name: symbol})
	if err != nil {
		return fmt.Errorf("load function definitions: %w", err)
	}
	for _, def := range defs {
		result.Usages = append(result.Usages, SymbolUsage{
			Type: "definition", File: def.FilePath, Line: def.Line, Context: def.Signature,
		})
	}

	sites, err := e.q.CallsTo(ctx, symbol)
	if err != nil {
		return fmt.Errorf("load call sites: %w", err)
	}
	for _, site := range sites {
		result.Usages = append(result.Usages, SymbolUsage{
			Type: "call", File: site.CallerFile, Line: site.Line,
			Context: "Called by " + site.CallerName,
		})
	}
	return nil
}

func (e *Engine) definitionAndUsages(ctx context.Context, symbol, nodeKind, usageKind string,
	result *SymbolUsages, defContext func(*graph.Node) string) error {

	defs, err := e.q.Nodes(ctx, store.NodeQuery{Kind: nodeKind, Name: symbol})
	if err != nil {
		return fmt.Errorf("load %s definitions: %w", nodeKind, err)
	}
	for _, def := range defs {
		result.Usages = append(result.Usages, SymbolUsage{
			Type: "definition", File: def.FilePath, Line: def.Line, Context: defContext(def),
		})
	}

	usages, err := e.q.Usages(ctx, symbol)
	if err != nil {
		return fmt.Errorf("load %s usages: %w", nodeKind, err)
	}
	for _, u := range usages {
		if u.Kind != usageKind {
			continue
		}
		context := "Used at file scope"
		if u.Function != "" && u.Function != parser.ModuleCaller {
			context = "Used in function " + u.Function
		}
		result.Usages = append(result.Usages, SymbolUsage{
			Type: "usage", File: u.FilePath, Line: u.Line, Context: context,
		})
	}
	return nil
}

func (e *Engine) structUsages(ctx context.Context, symbol string, result *SymbolUsages) error {
	defs, err := e.q.Nodes(ctx, store.NodeQuery{Kind: graph.KindClass, Name: symbol})
	if err != nil {
		return fmt.Errorf("load struct definitions: %w", err)
	}
	for _, def := range defs {
		result.Usages = append(result.Usages, SymbolUsage{
			Type: "definition", File: def.FilePath, Line: def.Line, Context: "Struct definition",
		})
	}

	accesses, err := e.q.Accesses(ctx, symbol, "")
	if err != nil {
		return fmt.Errorf("load field accesses: %w", err)
	}
	for _, a := range accesses {
		result.Usages = append(result.Usages, SymbolUsage{
			Type: "field_access", File: a.FilePath, Line: a.Line,
			Context: "Field access: " + a.FieldName,
		})
	}
	return nil
}

// FindStructFieldAccess lists access sites for one struct field. The field
// must exist in the struct's member list; a struct or field the graph does
// not know yields an empty result.
func (e *Engine) FindStructFieldAccess(ctx context.Context, structName, fieldName string) (*StructFieldAccesses, error) {
	result := &StructFieldAccesses{
		Accesses:   []FieldAccessSite{},
		StructName: structName,
		FieldName:  fieldName,
	}

	classes, err := e.q.Nodes(ctx, store.NodeQuery{Kind: graph.KindClass, Name: structName})
	if err != nil {
		return nil, fmt.Errorf("load struct %s: %w", structName, err)
	}
	known := false
	for _, cls := range classes {
		for _, member := range cls.Members {
			if member == fieldName {
				known = true
			}
		}
	}
	if !known {
		return result, nil
	}

	accesses, err := e.q.Accesses(ctx, structName, fieldName)
	if err != nil {
		return nil, fmt.Errorf("load accesses of %s.%s: %w", structName, fieldName, err)
	}
	for _, a := range accesses {
		result.Accesses = append(result.Accesses, FieldAccessSite{
			File:       a.FilePath,
			Line:       a.Line,
			AccessType: a.AccessType,
		})
	}
	result.Count = len(result.Accesses)
	return result, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown type"
	}
	return s
}
