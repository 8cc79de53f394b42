package parser

// ParseResult is the normalized output of one parsed source file. Positions
// are 1-based lines and 0-based columns, matching tree-sitter rows offset
// by one.
type ParseResult struct {
	FilePath  string
	Language  string
	Functions []Function
	Classes   []Class
	Imports   []Import
	Calls     []FunctionCall
	Typedefs  []Typedef
	Macros    []Macro
	Variables []Variable
	Accesses  []FieldAccess
	Usages    []Usage
}

// Function is a function or method definition, or a bare declaration when
// IsDeclaration is set.
type Function struct {
	Name          string
	Line          int
	Column        int
	Signature     string
	Parameters    []string
	ReturnType    string
	Docstring     string
	ClassName     string // owning class for methods, empty otherwise
	IsDeclaration bool
}

// Class is a class, struct, union, or enum definition. Members holds method
// names for Python classes and field names for C aggregates.
type Class struct {
	Name        string
	Line        int
	Column      int
	BaseClasses []string
	Members     []string
	Docstring   string
}

// Import is one import or include statement. For C includes, ImportedItems
// carries the "system" or "local" tag instead of symbol names.
type Import struct {
	Module        string
	Text          string
	Alias         string
	ImportedItems []string
	Line          int
	IsStdlib      bool
}

// FunctionCall is one call site. CallerName is the enclosing function, or
// "<module>" for file-scope calls.
type FunctionCall struct {
	CallerName   string
	CalleeName   string
	Line         int
	IsMethodCall bool
}

// Typedef is a simple (non-aggregate) type alias.
type Typedef struct {
	Name           string
	UnderlyingType string
	Line           int
}

// Macro is a #define. Function-like macros keep their parameter list in the
// Value text.
type Macro struct {
	Name           string
	Value          string
	Line           int
	IsFunctionLike bool
}

// Variable is a variable declaration. Function holds the enclosing function
// name; empty means file scope.
type Variable struct {
	Name     string
	TypeName string
	Function string
	Line     int
}

// FieldAccess is one struct member access site. StructName is the declared
// type of the accessed variable when it could be resolved lexically, else the
// raw operand identifier.
type FieldAccess struct {
	StructName string
	FieldName  string
	AccessType string // "direct" or "pointer"
	Line       int
	Column     int
}

// Usage kinds.
const (
	KindMacroUsage    = "macro"
	KindVariableUsage = "variable"
	KindTypedefUsage  = "typedef"
)

// Usage is a reference to a previously defined macro, variable, or typedef.
type Usage struct {
	Kind     string // macro, variable, typedef
	Name     string
	Function string // enclosing function, empty at file scope
	Line     int
	Column   int
}
