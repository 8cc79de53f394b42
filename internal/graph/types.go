package graph

import "codegraph/internal/parser"

// Node kinds stored in the graph.
const (
	KindFile     = "file"
	KindFunction = "function"
	KindClass    = "class"
	KindImport   = "import"
	KindTypedef  = "typedef"
	KindMacro    = "macro"
	KindVariable = "variable"
)

// Edge relations.
const (
	RelationContains = "contains"
	RelationCalls    = "calls"
	RelationInherits = "inherits"
	RelationImports  = "imports"
)

// ModuleCaller is the synthetic file-scope function that anchors calls
// appearing outside any function body.
const ModuleCaller = parser.ModuleCaller

// Import item tags for C includes.
const (
	IncludeSystem = parser.IncludeSystem
	IncludeLocal  = parser.IncludeLocal
)

// Node represents one entity in the code graph. The populated fields depend
// on Kind; unused fields stay zero and are omitted from JSON.
type Node struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	FilePath string `json:"file_path"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`

	// Function fields.
	Signature     string   `json:"signature,omitempty"`
	Parameters    []string `json:"parameters,omitempty"`
	ReturnType    string   `json:"return_type,omitempty"`
	Docstring     string   `json:"docstring,omitempty"`
	IsDeclaration bool     `json:"is_declaration,omitempty"`

	// Class fields. Members holds method names for Python classes and
	// field names for C aggregates.
	BaseClasses []string `json:"base_classes,omitempty"`
	Members     []string `json:"members,omitempty"`

	// Owning class for methods.
	ClassName string `json:"class_name,omitempty"`

	// Import fields.
	Module        string   `json:"module,omitempty"`
	Text          string   `json:"text,omitempty"`
	Alias         string   `json:"alias,omitempty"`
	ImportedItems []string `json:"imported_items,omitempty"`

	// Typedef / variable fields.
	UnderlyingType string `json:"underlying_type,omitempty"`

	// Macro fields.
	Value          string `json:"value,omitempty"`
	IsFunctionLike bool   `json:"is_function_like,omitempty"`

	// File aggregate counts.
	FunctionCount int `json:"function_count,omitempty"`
	ClassCount    int `json:"class_count,omitempty"`
	ImportCount   int `json:"import_count,omitempty"`

	// Symbol embedding used by semantic search.
	Embedding []float32 `json:"embedding,omitempty"`
}

// Edge represents a relationship between two nodes. Call edges keep the
// callee name even when the target could not be resolved inside the batch;
// the store resolves those against already-persisted nodes.
type Edge struct {
	SourceID     string `json:"source_id"`
	TargetID     string `json:"target_id,omitempty"`
	Relation     string `json:"relation"`
	CalleeName   string `json:"callee_name,omitempty"`
	Line         int    `json:"line,omitempty"`
	IsMethodCall bool   `json:"is_method_call,omitempty"`
}

// FieldAccess is one struct member access site, resolved through typedef
// aliases to the aggregate's graph name where possible.
type FieldAccess struct {
	FilePath   string `json:"file_path"`
	StructName string `json:"struct_name"`
	FieldName  string `json:"field_name"`
	AccessType string `json:"access_type"`
	Line       int    `json:"line"`
}

// Usage is one reference to a macro, variable, or typedef.
type Usage struct {
	FilePath string `json:"file_path"`
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Function string `json:"function,omitempty"`
	Line     int    `json:"line"`
}

// GraphData is one batch of nodes, edges, and reference records produced by
// the builder.
type GraphData struct {
	Nodes    []*Node        `json:"nodes"`
	Edges    []*Edge        `json:"edges"`
	Accesses []*FieldAccess `json:"accesses,omitempty"`
	Usages   []*Usage       `json:"usages,omitempty"`
}
