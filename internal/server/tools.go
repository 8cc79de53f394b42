package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"codegraph/util"
)

// Arguments structs

type IndexArgs struct {
	Force bool `json:"force" jsonschema:"description:Force a full re-index even if one already completed"`
}

type IndexStatusArgs struct{}

type IncludeDependenciesArgs struct {
	FilePath string `json:"file_path" jsonschema:"required,description:Absolute path of the file whose includers/importers to find"`
	MaxDepth int    `json:"max_depth" jsonschema:"description:Maximum transitive depth to walk (default from config)"`
}

type SymbolUsagesArgs struct {
	Symbol     string `json:"symbol" jsonschema:"required,description:Name of the symbol to look up"`
	SymbolType string `json:"symbol_type" jsonschema:"required,description:One of: function, macro, variable, struct, typedef"`
}

type FunctionCallersArgs struct {
	FunctionName    string `json:"function_name" jsonschema:"required,description:Name of the function whose callers to find"`
	IncludeIndirect bool   `json:"include_indirect" jsonschema:"description:Also walk the reverse call graph for indirect callers"`
}

type StructFieldAccessArgs struct {
	StructName string `json:"struct_name" jsonschema:"required,description:Name of the struct"`
	FieldName  string `json:"field_name" jsonschema:"required,description:Name of the field"`
}

type AffectedFilesArgs struct {
	ChangedFiles []string `json:"changed_files" jsonschema:"required,description:Paths of the files that were (or will be) modified"`
}

type SemanticSearchArgs struct {
	Query       string `json:"query" jsonschema:"required,description:Natural language description of the code to find"`
	FilePattern string `json:"file_pattern" jsonschema:"description:Glob filter on file paths, e.g. *.c"`
	Limit       int    `json:"limit" jsonschema:"description:Maximum results per category (default 10)"`
}

type UpdateFileArgs struct {
	FilePath string `json:"file_path" jsonschema:"required,description:Absolute path of the file to re-index"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "index",
		Description: "Scans the workspace and rebuilds the code graph",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args IndexArgs) (*mcp.CallToolResult, any, error) {
		if !args.Force {
			if status, _, _ := s.GetIndexStatus(); status == IndexStatusReady {
				return textResult("Index is already up to date; pass force to rebuild"), nil, nil
			}
		}
		msg, err := s.runIndex(ctx)
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}
		return textResult(msg), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "index_status",
		Description: "Returns the current indexing status of the workspace",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args IndexStatusArgs) (*mcp.CallToolResult, any, error) {
		status, err, duration := s.GetIndexStatus()

		result := map[string]any{
			"status": string(status),
		}
		if duration > 0 {
			result["duration_seconds"] = duration.Seconds()
		}
		if err != nil {
			result["error"] = err.Error()
		}
		return jsonResult(result), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_include_dependencies",
		Description: "Finds every file that includes or imports the given file, directly or transitively",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args IncludeDependenciesArgs) (*mcp.CallToolResult, any, error) {
		if res := s.awaitIndex(ctx); res != nil {
			return res, nil, nil
		}
		result, err := s.engine.GetIncludeDependencies(ctx, args.FilePath, args.MaxDepth)
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}
		return jsonResult(result), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "find_symbol_usages",
		Description: "Finds definitions and references of a function, macro, variable, struct, or typedef",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args SymbolUsagesArgs) (*mcp.CallToolResult, any, error) {
		if res := s.awaitIndex(ctx); res != nil {
			return res, nil, nil
		}
		result, err := s.engine.FindSymbolUsages(ctx, args.Symbol, args.SymbolType)
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}
		return jsonResult(result), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_function_callers",
		Description: "Finds all callers of a function, optionally walking the reverse call graph",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args FunctionCallersArgs) (*mcp.CallToolResult, any, error) {
		if res := s.awaitIndex(ctx); res != nil {
			return res, nil, nil
		}
		result, err := s.engine.GetFunctionCallers(ctx, args.FunctionName, args.IncludeIndirect)
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}
		return jsonResult(result), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "find_struct_field_access",
		Description: "Finds every place a struct field is read or written",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args StructFieldAccessArgs) (*mcp.CallToolResult, any, error) {
		if res := s.awaitIndex(ctx); res != nil {
			return res, nil, nil
		}
		result, err := s.engine.FindStructFieldAccess(ctx, args.StructName, args.FieldName)
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}
		return jsonResult(result), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "check_affected_files",
		Description: "Finds files affected by changing the given files, for test and rebuild scoping",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args AffectedFilesArgs) (*mcp.CallToolResult, any, error) {
		if res := s.awaitIndex(ctx); res != nil {
			return res, nil, nil
		}
		result, err := s.engine.CheckAffectedFiles(ctx, args.ChangedFiles)
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}
		return jsonResult(result), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "semantic_code_search",
		Description: "Searches indexed functions and classes by meaning rather than name",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args SemanticSearchArgs) (*mcp.CallToolResult, any, error) {
		if res := s.awaitIndex(ctx); res != nil {
			return res, nil, nil
		}
		result, err := s.engine.SemanticCodeSearch(ctx, args.Query, args.FilePattern, args.Limit)
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}
		return jsonResult(result), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "update_file",
		Description: "Re-indexes a single file after it was edited",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args UpdateFileArgs) (*mcp.CallToolResult, any, error) {
		result, err := s.parser.ParseFile(args.FilePath)
		if err != nil {
			return errorResult(fmt.Sprintf("Parse failed: %v", err)), nil, nil
		}
		if err := s.store.UpdateFile(ctx, result); err != nil {
			return errorResult(fmt.Sprintf("Update failed: %v", err)), nil, nil
		}
		if _, err := s.embedMissing(ctx); err != nil {
			return errorResult(fmt.Sprintf("Embedding failed: %v", err)), nil, nil
		}
		return textResult("Updated " + util.CanonicalPath(args.FilePath)), nil, nil
	})
}

// awaitIndex blocks until the initial index finishes. A nil return means
// queries may proceed; otherwise the returned result explains why not.
func (s *Server) awaitIndex(ctx context.Context) *mcp.CallToolResult {
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.WaitForIndex(waitCtx); err != nil {
		status, indexErr, _ := s.GetIndexStatus()
		if indexErr != nil {
			return errorResult(fmt.Sprintf("Indexing failed: %v", indexErr))
		}
		if status == IndexStatusInProgress {
			return errorResult("Indexing in progress, please try again")
		}
		return errorResult(fmt.Sprintf("Indexing wait failed: %v", err))
	}
	if _, indexErr, _ := s.GetIndexStatus(); indexErr != nil {
		return errorResult(fmt.Sprintf("Indexing failed: %v", indexErr))
	}
	return nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	payload, _ := json.Marshal(map[string]string{"error": msg})
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}},
		IsError: true,
	}
}

func jsonResult(v any) *mcp.CallToolResult {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("Encode failed: %v", err))
	}
	return textResult(string(jsonBytes))
}
