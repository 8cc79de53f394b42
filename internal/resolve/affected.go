package resolve

import (
	"context"
	"fmt"
	"sort"

	"codegraph/internal/graph"
	"codegraph/internal/parser"
	"codegraph/internal/store"
	"codegraph/util"
)

const (
	affectedDirectInclude     = "direct_include"
	affectedTransitiveInclude = "transitive_include"
	affectedFunctionCall      = "function_call"
)

// CheckAffectedFiles computes the impact set of changing the given files:
// every file that includes or imports them, directly or transitively, plus
// every file whose functions call into them. Useful for scoping tests and
// rebuilds after an edit.
func (e *Engine) CheckAffectedFiles(ctx context.Context, changedFiles []string) (*Affected, error) {
	result := &Affected{
		AffectedFiles: []string{},
		ByType: map[string][]AffectedFile{
			affectedDirectInclude:     {},
			affectedTransitiveInclude: {},
			affectedFunctionCall:      {},
		},
		ChangedFiles: changedFiles,
	}
	affected := map[string]bool{}

	for _, changed := range changedFiles {
		path := util.CanonicalPath(changed)

		deps, err := e.GetIncludeDependencies(ctx, path, 0)
		if err != nil {
			return nil, err
		}
		for _, dep := range deps.Dependencies {
			if dep.File == path {
				continue
			}
			affected[dep.File] = true
			bucket := affectedDirectInclude
			if dep.Depth > 0 {
				bucket = affectedTransitiveInclude
			}
			result.ByType[bucket] = append(result.ByType[bucket], AffectedFile{
				File:        dep.File,
				Reason:      dep.Reason,
				ChangedFile: changed,
			})
		}

		funcs, err := e.q.Nodes(ctx, store.NodeQuery{Kind: graph.KindFunction, FilePath: path})
		if err != nil {
			return nil, fmt.Errorf("load functions of %s: %w", path, err)
		}
		seen := map[string]bool{}
		for _, fn := range funcs {
			if fn.Name == parser.ModuleCaller || seen[fn.Name] {
				continue
			}
			seen[fn.Name] = true

			callers, err := e.GetFunctionCallers(ctx, fn.Name, true)
			if err != nil {
				return nil, err
			}
			for _, caller := range append(callers.Callers, callers.Indirect...) {
				if caller.File == "" || caller.File == path || affected[caller.File] {
					continue
				}
				affected[caller.File] = true
				result.ByType[affectedFunctionCall] = append(result.ByType[affectedFunctionCall], AffectedFile{
					File:        caller.File,
					Reason:      "Calls function " + fn.Name,
					ChangedFile: changed,
					Function:    fn.Name,
				})
			}
		}
	}

	for file := range affected {
		result.AffectedFiles = append(result.AffectedFiles, file)
	}
	sort.Strings(result.AffectedFiles)
	result.Count = len(result.AffectedFiles)
	return result, nil
}
