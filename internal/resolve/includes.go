package resolve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"codegraph/util"
)

// GetIncludeDependencies walks import/include edges backward from file.
// Level 0 holds files whose import statements match the target's candidate
// set directly; level k+1 holds files matching any level-k file. Traversal
// is breadth-first with shortest-depth dedup and stops at the depth ceiling
// or at a fixed point. A non-positive maxDepth falls back to the engine's
// configured ceiling.
func (e *Engine) GetIncludeDependencies(ctx context.Context, file string, maxDepth int) (*IncludeDependencies, error) {
	if maxDepth <= 0 {
		maxDepth = e.maxDepth
	}
	target := util.CanonicalPath(file)
	result := &IncludeDependencies{File: target, Dependencies: []Dependency{}}

	imports, err := e.q.Imports(ctx)
	if err != nil {
		return nil, fmt.Errorf("load imports: %w", err)
	}

	type frontierEntry struct {
		file string
		m    matcher
	}
	frontier := []frontierEntry{{target, matcherFor(target)}}
	visited := map[string]bool{target: true}
	ambiguous := map[string]bool{}

	for depth := 0; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []frontierEntry
		for _, ref := range imports {
			if visited[ref.FilePath] {
				continue
			}
			best := matchNone
			matched := 0
			for _, entry := range frontier {
				if level := entry.m.match(ref.Module); level > matchNone {
					matched++
					if level > best {
						best = level
					}
				}
			}
			if best == matchNone {
				continue
			}
			if best == matchFilename && matched > 1 {
				ambiguous[ref.Module] = true
			}

			visited[ref.FilePath] = true
			result.Dependencies = append(result.Dependencies, Dependency{
				File:   ref.FilePath,
				Module: ref.Module,
				Depth:  depth,
				Reason: dependencyReason(ref.FilePath, ref.Module),
			})
			if depth > result.Depth {
				result.Depth = depth
			}
			next = append(next, frontierEntry{ref.FilePath, matcherFor(ref.FilePath)})
		}
		frontier = next
	}

	result.Count = len(result.Dependencies)
	for module := range ambiguous {
		result.Ambiguous = append(result.Ambiguous, module)
	}
	sort.Strings(result.Ambiguous)
	return result, nil
}

func dependencyReason(file, module string) string {
	if strings.HasSuffix(file, ".py") {
		return "Imports " + module
	}
	return "Includes " + module
}
