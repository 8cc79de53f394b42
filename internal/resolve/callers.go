package resolve

import (
	"context"
	"fmt"

	"codegraph/internal/parser"
)

// GetFunctionCallers finds every function calling the target. Direct callers
// come straight from call edges; with includeIndirect the lookup repeats on
// each caller's name, walking the call graph backward. Visited names stop
// recursive and mutually-recursive cycles, so the result is always finite
// and the indirect set never shrinks the direct one.
func (e *Engine) GetFunctionCallers(ctx context.Context, function string, includeIndirect bool) (*FunctionCallers, error) {
	result := &FunctionCallers{
		FunctionName: function,
		Callers:      []Caller{},
		Indirect:     []Caller{},
	}

	sites, err := e.q.CallsTo(ctx, function)
	if err != nil {
		return nil, fmt.Errorf("load callers of %s: %w", function, err)
	}

	visited := map[string]bool{function: true}
	var frontier []string
	for _, site := range sites {
		result.Callers = append(result.Callers, Caller{
			Type:      "direct",
			Caller:    site.CallerName,
			File:      site.CallerFile,
			Line:      site.Line,
			Signature: site.CallerSignature,
		})
		if !visited[site.CallerName] {
			visited[site.CallerName] = true
			if site.CallerName != parser.ModuleCaller {
				frontier = append(frontier, site.CallerName)
			}
		}
	}

	if includeIndirect {
		for len(frontier) > 0 {
			var next []string
			for _, name := range frontier {
				sites, err := e.q.CallsTo(ctx, name)
				if err != nil {
					return nil, fmt.Errorf("load callers of %s: %w", name, err)
				}
				for _, site := range sites {
					result.Indirect = append(result.Indirect, Caller{
						Type:      "indirect",
						Caller:    site.CallerName,
						File:      site.CallerFile,
						Line:      site.Line,
						Signature: site.CallerSignature,
						Via:       name,
					})
					if !visited[site.CallerName] {
						visited[site.CallerName] = true
						if site.CallerName != parser.ModuleCaller {
							next = append(next, site.CallerName)
						}
					}
				}
			}
			frontier = next
		}
	}

	result.Count = len(result.Callers) + len(result.Indirect)
	return result, nil
}
