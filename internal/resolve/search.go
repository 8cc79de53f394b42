package resolve

import (
	"context"
	"fmt"
	"path"
	"sort"

	"codegraph/internal/embed"
	"codegraph/internal/graph"
	"codegraph/internal/parser"
	"codegraph/internal/store"
)

const defaultSearchLimit = 10

// SemanticCodeSearch ranks embedded functions and classes by cosine
// similarity against the query. A blank query embeds to the zero vector and
// short-circuits to an empty result rather than ranking against an
// arbitrary point. filePattern is a glob matched against the full path or
// the basename; empty means no filter.
func (e *Engine) SemanticCodeSearch(ctx context.Context, query, filePattern string, limit int) (*SemanticResults, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	result := &SemanticResults{
		Functions: []SemanticMatch{},
		Classes:   []SemanticMatch{},
		Query:     query,
	}

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if embed.IsZero(queryVec) {
		return result, nil
	}

	funcs, err := e.searchKind(ctx, graph.KindFunction, queryVec, filePattern, limit)
	if err != nil {
		return nil, err
	}
	classes, err := e.searchKind(ctx, graph.KindClass, queryVec, filePattern, limit)
	if err != nil {
		return nil, err
	}

	result.Functions = funcs
	result.Classes = classes
	result.Count = len(funcs) + len(classes)
	return result, nil
}

func (e *Engine) searchKind(ctx context.Context, kind string, queryVec []float32, filePattern string, limit int) ([]SemanticMatch, error) {
	nodes, err := e.q.Nodes(ctx, store.NodeQuery{Kind: kind, WithEmbedding: true})
	if err != nil {
		return nil, fmt.Errorf("load embedded %s nodes: %w", kind, err)
	}

	matches := []SemanticMatch{}
	for _, n := range nodes {
		if n.Name == parser.ModuleCaller {
			continue
		}
		ok, err := matchesPattern(n.FilePath, filePattern)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		matches = append(matches, SemanticMatch{
			Name:            n.Name,
			File:            n.FilePath,
			Line:            n.Line,
			Signature:       n.Signature,
			Docstring:       n.Docstring,
			Methods:         n.Members,
			SimilarityScore: embed.Cosine(queryVec, n.Embedding),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].SimilarityScore != matches[j].SimilarityScore {
			return matches[i].SimilarityScore > matches[j].SimilarityScore
		}
		if matches[i].File != matches[j].File {
			return matches[i].File < matches[j].File
		}
		return matches[i].Line < matches[j].Line
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func matchesPattern(filePath, pattern string) (bool, error) {
	if pattern == "" || pattern == "*" {
		return true, nil
	}
	ok, err := path.Match(pattern, filePath)
	if err != nil {
		return false, fmt.Errorf("invalid file pattern %q: %w", pattern, err)
	}
	if ok {
		return true, nil
	}
	ok, _ = path.Match(pattern, path.Base(filePath))
	return ok, nil
}
