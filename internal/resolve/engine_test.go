package resolve

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"codegraph/internal/embed"
	"codegraph/internal/graph"
	"codegraph/internal/parser"
	"codegraph/internal/store"
)

// stubEmbedder returns one fixed vector for any non-blank input.
type stubEmbedder struct {
	vec []float32
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return embed.ZeroVector(), nil
	}
	return s.vec, nil
}

func testStore(t *testing.T, results ...*parser.ParseResult) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))
	require.NoError(t, s.InsertGraph(ctx, graph.Build(results)))
	return s
}

// engines builds one engine per query dialect so every operation is checked
// against both.
func engines(s *store.Store, embedder embed.Embedder) map[string]*Engine {
	return map[string]*Engine{
		"typed": New(s.Typed(), embedder),
		"raw":   New(s.Raw(), embedder),
	}
}

func projectResults() []*parser.ParseResult {
	return []*parser.ParseResult{
		{
			FilePath: "/repo/src/user.h",
			Language: "c",
			Classes: []parser.Class{
				{Name: "User", Line: 3, Members: []string{"name", "age"}},
			},
			Macros: []parser.Macro{
				{Name: "MAX_USERS", Value: "64", Line: 1},
			},
		},
		{
			FilePath: "/repo/src/user.c",
			Language: "c",
			Imports: []parser.Import{
				{Module: "user.h", Text: `#include "user.h"`, ImportedItems: []string{graph.IncludeLocal}, Line: 1},
			},
			Functions: []parser.Function{
				{Name: "print_user", Line: 5, Signature: "void print_user(struct User *u)"},
				{Name: "make_user", Line: 12, Signature: "struct User *make_user(void)"},
			},
			Accesses: []parser.FieldAccess{
				{StructName: "User", FieldName: "name", AccessType: "pointer", Line: 7},
			},
			Usages: []parser.Usage{
				{Kind: parser.KindMacroUsage, Name: "MAX_USERS", Function: "make_user", Line: 13},
			},
		},
		{
			FilePath: "/repo/src/main.c",
			Language: "c",
			Imports: []parser.Import{
				{Module: "user.h", Text: `#include "user.h"`, ImportedItems: []string{graph.IncludeLocal}, Line: 1},
				{Module: "stdio.h", Text: "#include <stdio.h>", ImportedItems: []string{graph.IncludeSystem}, Line: 2},
			},
			Functions: []parser.Function{
				{Name: "main", Line: 4, Signature: "int main(void)"},
			},
			Calls: []parser.FunctionCall{
				{CallerName: "main", CalleeName: "print_user", Line: 5},
				{CallerName: "main", CalleeName: "make_user", Line: 6},
			},
		},
		{
			FilePath: "/repo/src/app.c",
			Language: "c",
			Imports: []parser.Import{
				{Module: "main.h", Text: `#include "main.h"`, ImportedItems: []string{graph.IncludeLocal}, Line: 1},
			},
			Functions: []parser.Function{
				{Name: "run", Line: 3, Signature: "void run(void)"},
			},
			Calls: []parser.FunctionCall{
				{CallerName: "run", CalleeName: "main", Line: 4},
			},
		},
		{
			FilePath: "/repo/src/tool.c",
			Language: "c",
			Functions: []parser.Function{
				{Name: "tool_main", Line: 2, Signature: "int tool_main(void)"},
			},
			Calls: []parser.FunctionCall{
				{CallerName: "tool_main", CalleeName: "make_user", Line: 3},
			},
		},
		{
			FilePath: "/repo/src/pkg/util.py",
			Language: "python",
			Functions: []parser.Function{
				{Name: "helper", Line: 1, Signature: "helper()"},
			},
		},
		{
			FilePath: "/repo/src/pkg/app.py",
			Language: "python",
			Imports: []parser.Import{
				{Module: "pkg.util", Text: "import pkg.util", Line: 1},
			},
			Functions: []parser.Function{
				{Name: "go", Line: 3, Signature: "go()"},
			},
			Calls: []parser.FunctionCall{
				{CallerName: "go", CalleeName: "helper", Line: 4},
			},
		},
	}
}

func TestGetIncludeDependencies(t *testing.T) {
	s := testStore(t, projectResults()...)
	for name, e := range engines(s, embed.NewHash()) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			deps, err := e.GetIncludeDependencies(ctx, "/repo/src/user.c", 0)
			require.NoError(t, err)
			require.Equal(t, 2, deps.Count)
			require.Equal(t, 1, deps.Depth)

			byFile := map[string]Dependency{}
			for _, d := range deps.Dependencies {
				byFile[d.File] = d
			}
			require.Equal(t, 0, byFile["/repo/src/main.c"].Depth)
			require.Equal(t, "Includes user.h", byFile["/repo/src/main.c"].Reason)
			require.Equal(t, 1, byFile["/repo/src/app.c"].Depth)
			require.Equal(t, "Includes main.h", byFile["/repo/src/app.c"].Reason)
		})
	}
}

func TestGetIncludeDependenciesHeaderTarget(t *testing.T) {
	s := testStore(t, projectResults()...)
	e := New(s.Typed(), embed.NewHash())
	ctx := context.Background()

	deps, err := e.GetIncludeDependencies(ctx, "/repo/src/user.h", 0)
	require.NoError(t, err)
	require.Equal(t, 3, deps.Count)

	depths := map[string]int{}
	for _, d := range deps.Dependencies {
		depths[d.File] = d.Depth
	}
	require.Equal(t, 0, depths["/repo/src/user.c"])
	require.Equal(t, 0, depths["/repo/src/main.c"])
	require.Equal(t, 1, depths["/repo/src/app.c"])
}

func TestGetIncludeDependenciesPython(t *testing.T) {
	s := testStore(t, projectResults()...)
	e := New(s.Typed(), embed.NewHash())

	deps, err := e.GetIncludeDependencies(context.Background(), "/repo/src/pkg/util.py", 0)
	require.NoError(t, err)
	require.Equal(t, 1, deps.Count)
	require.Equal(t, "/repo/src/pkg/app.py", deps.Dependencies[0].File)
	require.Equal(t, 0, deps.Dependencies[0].Depth)
	require.Equal(t, "Imports pkg.util", deps.Dependencies[0].Reason)
}

func TestGetIncludeDependenciesAmbiguity(t *testing.T) {
	s := testStore(t,
		&parser.ParseResult{
			FilePath: "/repo/t.h",
			Language: "c",
		},
		&parser.ParseResult{
			FilePath: "/repo/x/config.c",
			Language: "c",
			Imports: []parser.Import{
				{Module: "t.h", ImportedItems: []string{graph.IncludeLocal}, Line: 1},
			},
		},
		&parser.ParseResult{
			FilePath: "/repo/y/config.c",
			Language: "c",
			Imports: []parser.Import{
				{Module: "t.h", ImportedItems: []string{graph.IncludeLocal}, Line: 1},
			},
		},
		&parser.ParseResult{
			FilePath: "/repo/z/main.c",
			Language: "c",
			Imports: []parser.Import{
				{Module: "conf/config.h", ImportedItems: []string{graph.IncludeLocal}, Line: 1},
			},
		},
	)
	e := New(s.Typed(), embed.NewHash())

	deps, err := e.GetIncludeDependencies(context.Background(), "/repo/t.h", 0)
	require.NoError(t, err)
	require.Equal(t, 3, deps.Count)
	// "conf/config.h" matched two same-named files on filename alone; the
	// dependency is reported once and the module flagged.
	require.Equal(t, []string{"conf/config.h"}, deps.Ambiguous)
}

func TestGetIncludeDependenciesDepthOverride(t *testing.T) {
	s := testStore(t,
		&parser.ParseResult{FilePath: "/repo/d0.h", Language: "c"},
		&parser.ParseResult{
			FilePath: "/repo/d1.c",
			Language: "c",
			Imports: []parser.Import{
				{Module: "d0.h", ImportedItems: []string{graph.IncludeLocal}, Line: 1},
			},
		},
		&parser.ParseResult{
			FilePath: "/repo/d2.c",
			Language: "c",
			Imports: []parser.Import{
				{Module: "d1.h", ImportedItems: []string{graph.IncludeLocal}, Line: 1},
			},
		},
		&parser.ParseResult{
			FilePath: "/repo/d3.c",
			Language: "c",
			Imports: []parser.Import{
				{Module: "d2.h", ImportedItems: []string{graph.IncludeLocal}, Line: 1},
			},
		},
	)
	e := New(s.Typed(), embed.NewHash())
	ctx := context.Background()

	full, err := e.GetIncludeDependencies(ctx, "/repo/d0.h", 0)
	require.NoError(t, err)
	require.Equal(t, 3, full.Count)
	require.Equal(t, 2, full.Depth)

	capped, err := e.GetIncludeDependencies(ctx, "/repo/d0.h", 1)
	require.NoError(t, err)
	require.Equal(t, 2, capped.Count)
	require.Equal(t, 1, capped.Depth)
	for _, d := range capped.Dependencies {
		require.NotEqual(t, "/repo/d3.c", d.File)
	}
}

func TestGetIncludeDependenciesNoRevisit(t *testing.T) {
	s := testStore(t, projectResults()...)
	e := New(s.Raw(), embed.NewHash())

	deps, err := e.GetIncludeDependencies(context.Background(), "/repo/src/user.h", 0)
	require.NoError(t, err)

	seen := map[string]int{}
	for _, d := range deps.Dependencies {
		seen[d.File]++
	}
	for file, n := range seen {
		require.Equal(t, 1, n, "file %s reported %d times", file, n)
	}
}

func TestGetFunctionCallers(t *testing.T) {
	s := testStore(t, projectResults()...)
	for name, e := range engines(s, embed.NewHash()) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			direct, err := e.GetFunctionCallers(ctx, "make_user", false)
			require.NoError(t, err)
			require.Len(t, direct.Callers, 2)
			require.Empty(t, direct.Indirect)

			names := map[string]bool{}
			for _, c := range direct.Callers {
				require.Equal(t, "direct", c.Type)
				names[c.Caller] = true
			}
			require.True(t, names["main"] && names["tool_main"])

			full, err := e.GetFunctionCallers(ctx, "make_user", true)
			require.NoError(t, err)
			require.Equal(t, direct.Callers, full.Callers, "indirect lookup must not change direct callers")
			require.Len(t, full.Indirect, 1)
			require.Equal(t, "run", full.Indirect[0].Caller)
			require.Equal(t, "main", full.Indirect[0].Via)
			require.Equal(t, len(full.Callers)+len(full.Indirect), full.Count)
		})
	}
}

func TestGetFunctionCallersCycle(t *testing.T) {
	s := testStore(t, &parser.ParseResult{
		FilePath: "/repo/src/loop.c",
		Language: "c",
		Functions: []parser.Function{
			{Name: "ping", Line: 1, Signature: "void ping(void)"},
			{Name: "pong", Line: 5, Signature: "void pong(void)"},
			{Name: "start", Line: 9, Signature: "void start(void)"},
		},
		Calls: []parser.FunctionCall{
			{CallerName: "ping", CalleeName: "pong", Line: 2},
			{CallerName: "pong", CalleeName: "ping", Line: 6},
			{CallerName: "start", CalleeName: "ping", Line: 10},
		},
	})
	e := New(s.Typed(), embed.NewHash())

	result, err := e.GetFunctionCallers(context.Background(), "pong", true)
	require.NoError(t, err)
	require.Len(t, result.Callers, 1)
	require.Equal(t, "ping", result.Callers[0].Caller)

	// The mutual recursion terminates; start is found through ping.
	callers := map[string]bool{}
	for _, c := range result.Indirect {
		callers[c.Caller] = true
	}
	require.True(t, callers["start"])
}

func TestFindSymbolUsages(t *testing.T) {
	s := testStore(t, projectResults()...)
	for name, e := range engines(s, embed.NewHash()) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			fn, err := e.FindSymbolUsages(ctx, "print_user", "function")
			require.NoError(t, err)
			require.Equal(t, 2, fn.Count)
			require.Equal(t, "definition", fn.Usages[0].Type)
			require.Equal(t, "void print_user(struct User *u)", fn.Usages[0].Context)
			require.Equal(t, "call", fn.Usages[1].Type)
			require.Equal(t, "Called by main", fn.Usages[1].Context)
			require.Equal(t, 5, fn.Usages[1].Line)

			macro, err := e.FindSymbolUsages(ctx, "MAX_USERS", "macro")
			require.NoError(t, err)
			require.Equal(t, 2, macro.Count)
			require.Equal(t, "Macro definition", macro.Usages[0].Context)
			require.Equal(t, "usage", macro.Usages[1].Type)
			require.Equal(t, "Used in function make_user", macro.Usages[1].Context)

			st, err := e.FindSymbolUsages(ctx, "User", "struct")
			require.NoError(t, err)
			require.Equal(t, 2, st.Count)
			require.Equal(t, "Struct definition", st.Usages[0].Context)
			require.Equal(t, "field_access", st.Usages[1].Type)
			require.Equal(t, "Field access: name", st.Usages[1].Context)

			missing, err := e.FindSymbolUsages(ctx, "nothing_here", "function")
			require.NoError(t, err)
			require.Equal(t, 0, missing.Count)

			_, err = e.FindSymbolUsages(ctx, "x", "enum")
			require.Error(t, err)
		})
	}
}

func TestFindStructFieldAccess(t *testing.T) {
	s := testStore(t, projectResults()...)
	for name, e := range engines(s, embed.NewHash()) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			result, err := e.FindStructFieldAccess(ctx, "User", "name")
			require.NoError(t, err)
			require.Equal(t, 1, result.Count)
			require.Equal(t, "/repo/src/user.c", result.Accesses[0].File)
			require.Equal(t, "pointer", result.Accesses[0].AccessType)
			require.Equal(t, 7, result.Accesses[0].Line)

			// A field the struct does not declare yields nothing.
			none, err := e.FindStructFieldAccess(ctx, "User", "missing")
			require.NoError(t, err)
			require.Equal(t, 0, none.Count)

			ghost, err := e.FindStructFieldAccess(ctx, "Ghost", "name")
			require.NoError(t, err)
			require.Equal(t, 0, ghost.Count)
		})
	}
}

func TestCheckAffectedFiles(t *testing.T) {
	s := testStore(t, projectResults()...)
	for name, e := range engines(s, embed.NewHash()) {
		t.Run(name, func(t *testing.T) {
			result, err := e.CheckAffectedFiles(context.Background(), []string{"/repo/src/user.c"})
			require.NoError(t, err)

			require.Equal(t, []string{"/repo/src/app.c", "/repo/src/main.c", "/repo/src/tool.c"}, result.AffectedFiles)
			require.Equal(t, 3, result.Count)

			require.Len(t, result.ByType[affectedDirectInclude], 1)
			require.Equal(t, "/repo/src/main.c", result.ByType[affectedDirectInclude][0].File)
			require.Len(t, result.ByType[affectedTransitiveInclude], 1)
			require.Equal(t, "/repo/src/app.c", result.ByType[affectedTransitiveInclude][0].File)
			require.Len(t, result.ByType[affectedFunctionCall], 1)
			require.Equal(t, "/repo/src/tool.c", result.ByType[affectedFunctionCall][0].File)
			require.Equal(t, "Calls function make_user", result.ByType[affectedFunctionCall][0].Reason)
		})
	}
}

func TestSemanticCodeSearch(t *testing.T) {
	s := testStore(t, projectResults()...)
	ctx := context.Background()

	setVec := func(kind, name string, vec []float32) {
		nodes, err := s.Typed().Nodes(ctx, store.NodeQuery{Kind: kind, Name: name})
		require.NoError(t, err)
		require.NotEmpty(t, nodes)
		require.NoError(t, s.SetEmbedding(ctx, nodes[0].ID, vec))
	}
	unit := func(i int) []float32 {
		v := embed.ZeroVector()
		v[i] = 1
		return v
	}
	mixed := embed.ZeroVector()
	mixed[0], mixed[1] = 0.7, 0.7

	setVec(graph.KindFunction, "print_user", unit(0))
	setVec(graph.KindFunction, "make_user", unit(1))
	setVec(graph.KindFunction, "helper", mixed)
	setVec(graph.KindClass, "User", unit(0))

	query := &stubEmbedder{vec: unit(0)}
	for name, e := range engines(s, query) {
		t.Run(name, func(t *testing.T) {
			result, err := e.SemanticCodeSearch(ctx, "print a user", "", 10)
			require.NoError(t, err)
			require.Len(t, result.Functions, 3)
			require.Equal(t, "print_user", result.Functions[0].Name)
			require.InDelta(t, 1.0, result.Functions[0].SimilarityScore, 1e-6)
			require.Equal(t, "helper", result.Functions[1].Name)
			require.Equal(t, "make_user", result.Functions[2].Name)
			require.Len(t, result.Classes, 1)
			require.Equal(t, "User", result.Classes[0].Name)

			limited, err := e.SemanticCodeSearch(ctx, "print a user", "", 1)
			require.NoError(t, err)
			require.Len(t, limited.Functions, 1)

			filtered, err := e.SemanticCodeSearch(ctx, "print a user", "*.c", 10)
			require.NoError(t, err)
			for _, m := range filtered.Functions {
				require.NotEqual(t, "helper", m.Name, "python file should be filtered out")
			}
		})
	}
}

func TestSemanticCodeSearchBlankQuery(t *testing.T) {
	s := testStore(t, projectResults()...)
	e := New(s.Typed(), embed.NewHash())

	for _, query := range []string{"", "   ", "\t\n"} {
		result, err := e.SemanticCodeSearch(context.Background(), query, "", 10)
		require.NoError(t, err)
		require.Empty(t, result.Functions, "query %q", query)
		require.Empty(t, result.Classes, "query %q", query)
		require.Equal(t, 0, result.Count, "query %q", query)
	}
}
