package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"codegraph/internal/graph"
	"codegraph/internal/parser"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func libResult() *parser.ParseResult {
	return &parser.ParseResult{
		FilePath: "/proj/src/lib.py",
		Language: "python",
		Functions: []parser.Function{
			{Name: "helper", Line: 1, Signature: "helper()"},
		},
	}
}

func appResult() *parser.ParseResult {
	return &parser.ParseResult{
		FilePath: "/proj/src/app.py",
		Language: "python",
		Functions: []parser.Function{
			{Name: "main", Line: 3, Signature: "main()"},
		},
		Imports: []parser.Import{
			{Module: "src.lib", Text: "import src.lib", Line: 1},
		},
		Calls: []parser.FunctionCall{
			{CallerName: "main", CalleeName: "helper", Line: 4},
		},
	}
}

func TestEnsureSchemaConcurrent(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.EnsureSchema(context.Background())
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
}

func TestInsertAndQueryNodes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	data := graph.Build([]*parser.ParseResult{libResult(), appResult()})
	require.NoError(t, s.InsertGraph(ctx, data))

	for name, q := range map[string]Querier{"typed": s.Typed(), "raw": s.Raw()} {
		t.Run(name, func(t *testing.T) {
			funcs, err := q.Nodes(ctx, NodeQuery{Kind: graph.KindFunction, Name: "helper"})
			require.NoError(t, err)
			require.Len(t, funcs, 1)
			require.Equal(t, "helper()", funcs[0].Signature)
			require.Equal(t, 1, funcs[0].Line)

			files, err := q.Nodes(ctx, NodeQuery{Kind: graph.KindFile})
			require.NoError(t, err)
			require.Len(t, files, 2)

			none, err := q.Nodes(ctx, NodeQuery{Kind: graph.KindClass, Name: "Ghost"})
			require.NoError(t, err)
			require.Empty(t, none)
		})
	}
}

func TestCallsToResolvesAcrossFiles(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Insert the caller first; the callee's file arrives in a later batch.
	require.NoError(t, s.InsertGraph(ctx, graph.Build([]*parser.ParseResult{appResult()})))
	require.NoError(t, s.InsertGraph(ctx, graph.Build([]*parser.ParseResult{libResult()})))

	sites, err := s.Typed().CallsTo(ctx, "helper")
	require.NoError(t, err)
	require.Len(t, sites, 1)
	require.Equal(t, "main", sites[0].CallerName)
	require.NotEmpty(t, sites[0].TargetID, "late-arriving callee should be re-resolved")
}

func TestUpdateFileIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertGraph(ctx, graph.Build([]*parser.ParseResult{libResult(), appResult()})))

	count := func(table string) int {
		var n int
		require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
		return n
	}

	require.NoError(t, s.UpdateFile(ctx, appResult()))
	nodes, edges := count("nodes"), count("edges")

	require.NoError(t, s.UpdateFile(ctx, appResult()))
	require.Equal(t, nodes, count("nodes"), "node count must not change on repeated update")
	require.Equal(t, edges, count("edges"), "edge count must not change on repeated update")
}

func TestUpdatePreservesInboundEdges(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertGraph(ctx, graph.Build([]*parser.ParseResult{libResult(), appResult()})))

	// Re-index the callee's file; the caller's edge lives in another file
	// and must still resolve afterwards.
	updated := libResult()
	updated.Functions = append(updated.Functions, parser.Function{Name: "extra", Line: 5, Signature: "extra()"})
	require.NoError(t, s.UpdateFile(ctx, updated))

	sites, err := s.Typed().CallsTo(ctx, "helper")
	require.NoError(t, err)
	require.Len(t, sites, 1)
	require.NotEmpty(t, sites[0].TargetID)

	// Now the symbol disappears; the inbound edge goes dangling, not away.
	gone := libResult()
	gone.Functions = nil
	require.NoError(t, s.UpdateFile(ctx, gone))

	sites, err = s.Typed().CallsTo(ctx, "helper")
	require.NoError(t, err)
	require.Len(t, sites, 1)
	require.Empty(t, sites[0].TargetID)
}

func TestEmbeddingSurvivesUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertGraph(ctx, graph.Build([]*parser.ParseResult{libResult()})))

	nodes, err := s.Typed().Nodes(ctx, NodeQuery{Kind: graph.KindFunction, Name: "helper"})
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	vec := make([]float32, 384)
	vec[0] = 0.5
	vec[383] = -0.25
	require.NoError(t, s.SetEmbedding(ctx, nodes[0].ID, vec))

	require.NoError(t, s.UpdateFile(ctx, libResult()))

	embedded, err := s.Typed().Nodes(ctx, NodeQuery{Kind: graph.KindFunction, WithEmbedding: true})
	require.NoError(t, err)
	require.Len(t, embedded, 1)
	require.Equal(t, nodes[0].ID, embedded[0].ID)
	require.InDelta(t, 0.5, embedded[0].Embedding[0], 1e-6)
	require.InDelta(t, -0.25, embedded[0].Embedding[383], 1e-6)
}

func TestPruneStaleFiles(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertGraph(ctx, graph.Build([]*parser.ParseResult{libResult(), appResult()})))
	require.NoError(t, s.PruneStaleFiles(ctx, []string{"/proj/src/app.py"}))

	nodes, err := s.Typed().Nodes(ctx, NodeQuery{Kind: graph.KindFunction, Name: "helper"})
	require.NoError(t, err)
	require.Empty(t, nodes, "pruned file's nodes should be gone")

	sites, err := s.Typed().CallsTo(ctx, "helper")
	require.NoError(t, err)
	require.Len(t, sites, 1)
	require.Empty(t, sites[0].TargetID, "edge into pruned file should dangle")
}

func TestDialectParity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	cFile := &parser.ParseResult{
		FilePath: "/proj/src/user.c",
		Language: "c",
		Functions: []parser.Function{
			{Name: "print_user", Line: 8, Signature: "void print_user(user)"},
		},
		Classes: []parser.Class{
			{Name: "User", Line: 1, Members: []string{"name", "age"}},
		},
		Imports: []parser.Import{
			{Module: "user.h", Text: `#include "user.h"`, ImportedItems: []string{graph.IncludeLocal}, Line: 1},
		},
		Calls: []parser.FunctionCall{
			{CallerName: "print_user", CalleeName: "printf", Line: 9},
		},
		Accesses: []parser.FieldAccess{
			{StructName: "User", FieldName: "name", AccessType: "pointer", Line: 9},
		},
		Usages: []parser.Usage{
			{Kind: parser.KindMacroUsage, Name: "MAX_USERS", Function: "print_user", Line: 10},
		},
	}
	require.NoError(t, s.InsertGraph(ctx, graph.Build([]*parser.ParseResult{cFile, libResult(), appResult()})))

	typed, raw := s.Typed(), s.Raw()

	t.Run("nodes", func(t *testing.T) {
		for _, spec := range []NodeQuery{
			{},
			{Kind: graph.KindFunction},
			{Kind: graph.KindClass, Name: "User"},
			{FilePath: "/proj/src/user.c"},
		} {
			a, err := typed.Nodes(ctx, spec)
			require.NoError(t, err)
			b, err := raw.Nodes(ctx, spec)
			require.NoError(t, err)
			require.Equal(t, a, b, "spec %+v", spec)
		}
	})

	t.Run("calls", func(t *testing.T) {
		for _, callee := range []string{"helper", "printf", "nothing"} {
			a, err := typed.CallsTo(ctx, callee)
			require.NoError(t, err)
			b, err := raw.CallsTo(ctx, callee)
			require.NoError(t, err)
			require.Equal(t, a, b, "callee %s", callee)
		}
	})

	t.Run("imports", func(t *testing.T) {
		a, err := typed.Imports(ctx)
		require.NoError(t, err)
		b, err := raw.Imports(ctx)
		require.NoError(t, err)
		require.Equal(t, a, b)
	})

	t.Run("accesses", func(t *testing.T) {
		a, err := typed.Accesses(ctx, "User", "")
		require.NoError(t, err)
		b, err := raw.Accesses(ctx, "User", "")
		require.NoError(t, err)
		require.Equal(t, a, b)
	})

	t.Run("usages", func(t *testing.T) {
		a, err := typed.Usages(ctx, "MAX_USERS")
		require.NoError(t, err)
		b, err := raw.Usages(ctx, "MAX_USERS")
		require.NoError(t, err)
		require.Equal(t, a, b)
	})
}

func TestNodesByIDsBatching(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var results []*parser.ParseResult
	results = append(results, libResult())
	require.NoError(t, s.InsertGraph(ctx, graph.Build(results)))

	all, err := s.Typed().Nodes(ctx, NodeQuery{})
	require.NoError(t, err)

	// Duplicate the id list several times over the batch boundary; the
	// merged map must still hold each node exactly once.
	var ids []string
	for len(ids) < lookupBatchSize+50 {
		for _, n := range all {
			ids = append(ids, n.ID)
		}
	}
	byID, err := s.Typed().NodesByIDs(ctx, ids)
	require.NoError(t, err)
	require.Len(t, byID, len(all))
}
