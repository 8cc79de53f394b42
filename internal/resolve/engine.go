// Package resolve implements the read-only resolution operations over the
// persisted code graph: reverse include/import traversal, symbol usage
// lookup, caller discovery, field access search, change impact analysis,
// and embedding-based semantic search. Every operation works against the
// store's Querier interface and behaves identically on both query dialects.
package resolve

import (
	"codegraph/internal/embed"
	"codegraph/internal/store"
)

// DefaultMaxDepth bounds the reverse include/import traversal.
const DefaultMaxDepth = 20

// Engine executes resolution operations. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	q        store.Querier
	embedder embed.Embedder
	maxDepth int
}

type Option func(*Engine)

// WithMaxDepth overrides the traversal depth ceiling.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) {
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

func New(q store.Querier, embedder embed.Embedder, opts ...Option) *Engine {
	e := &Engine{q: q, embedder: embedder, maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dependency is one file discovered by the reverse include/import traversal.
// Depth 0 means the file references the target directly.
type Dependency struct {
	File   string `json:"file"`
	Module string `json:"module"`
	Depth  int    `json:"depth"`
	Reason string `json:"reason"`
}

// IncludeDependencies is the result of GetIncludeDependencies. Ambiguous
// lists module strings that matched more than one file at filename-only
// specificity; those dependencies are reported, not dropped, but the caller
// is told the match was lossy.
type IncludeDependencies struct {
	File         string       `json:"file"`
	Dependencies []Dependency `json:"dependencies"`
	Count        int          `json:"count"`
	Depth        int          `json:"depth"`
	Ambiguous    []string     `json:"ambiguous,omitempty"`
}

// SymbolUsage is one place a symbol is defined or referenced.
type SymbolUsage struct {
	Type    string `json:"type"`
	File    string `json:"file"`
	Line    int    `json:"line"`
	Context string `json:"context"`
}

// SymbolUsages is the result of FindSymbolUsages.
type SymbolUsages struct {
	Usages     []SymbolUsage `json:"usages"`
	Count      int           `json:"count"`
	Symbol     string        `json:"symbol"`
	SymbolType string        `json:"symbol_type"`
}

// Caller is one function that reaches the target, directly or through a
// chain of calls. Via names the intermediate callee for indirect callers.
type Caller struct {
	Type      string `json:"type"`
	Caller    string `json:"caller"`
	File      string `json:"file"`
	Line      int    `json:"line"`
	Signature string `json:"signature,omitempty"`
	Via       string `json:"via,omitempty"`
}

// FunctionCallers is the result of GetFunctionCallers.
type FunctionCallers struct {
	Callers      []Caller `json:"callers"`
	Indirect     []Caller `json:"indirect"`
	Count        int      `json:"count"`
	FunctionName string   `json:"function_name"`
}

// FieldAccessSite is one location reading or writing a struct field.
type FieldAccessSite struct {
	File       string `json:"file"`
	Line       int    `json:"line"`
	AccessType string `json:"access_type"`
}

// StructFieldAccesses is the result of FindStructFieldAccess.
type StructFieldAccesses struct {
	Accesses   []FieldAccessSite `json:"accesses"`
	Count      int               `json:"count"`
	StructName string            `json:"struct_name"`
	FieldName  string            `json:"field_name"`
}

// AffectedFile explains why one file lands in the impact set.
type AffectedFile struct {
	File        string `json:"file"`
	Reason      string `json:"reason"`
	ChangedFile string `json:"changed_file"`
	Function    string `json:"function,omitempty"`
}

// Affected is the result of CheckAffectedFiles.
type Affected struct {
	AffectedFiles []string                  `json:"affected_files"`
	ByType        map[string][]AffectedFile `json:"by_type"`
	Count         int                       `json:"count"`
	ChangedFiles  []string                  `json:"changed_files"`
}

// SemanticMatch is one ranked semantic search hit.
type SemanticMatch struct {
	Name            string   `json:"name"`
	File            string   `json:"file"`
	Line            int      `json:"line"`
	Signature       string   `json:"signature,omitempty"`
	Docstring       string   `json:"docstring,omitempty"`
	Methods         []string `json:"methods,omitempty"`
	SimilarityScore float64  `json:"similarity_score"`
}

// SemanticResults is the result of SemanticCodeSearch.
type SemanticResults struct {
	Functions []SemanticMatch `json:"functions"`
	Classes   []SemanticMatch `json:"classes"`
	Count     int             `json:"count"`
	Query     string          `json:"query"`
}
