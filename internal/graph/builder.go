package graph

import (
	"fmt"
	"path/filepath"
	"strings"

	"codegraph/internal/parser"
	"codegraph/util"
)

// Build aggregates parse results into one batch of nodes and edges. Edges
// are resolved by name inside the batch only; a call into a file outside the
// batch keeps its callee name with an empty target and is resolved later by
// the store against already-persisted nodes.
func Build(results []*parser.ParseResult) *GraphData {
	data := &GraphData{}

	// Batch-wide name registries for call and inheritance targets.
	functionIDs := map[string]string{}
	classIDs := map[string]string{}
	// Per-file caller registries, including the <module> pseudo-function.
	callerIDs := map[string]map[string]string{}

	for _, r := range results {
		path := util.CanonicalPath(r.FilePath)
		callerIDs[path] = map[string]string{}

		fileNode := &Node{
			ID:            util.GenerateNodeID(path, KindFile, path, 0),
			Kind:          KindFile,
			Name:          filepath.Base(path),
			FilePath:      path,
			FunctionCount: len(r.Functions),
			ClassCount:    len(r.Classes),
			ImportCount:   len(r.Imports),
		}
		data.Nodes = append(data.Nodes, fileNode)

		// Synthetic file-scope function anchoring top-level calls.
		moduleNode := &Node{
			ID:        util.GenerateNodeID(path, KindFunction, parser.ModuleCaller, 1),
			Kind:      KindFunction,
			Name:      parser.ModuleCaller,
			FilePath:  path,
			Line:      1,
			Signature: fmt.Sprintf("%s in %s", parser.ModuleCaller, path),
		}
		data.Nodes = append(data.Nodes, moduleNode)
		data.Edges = append(data.Edges, containsEdge(fileNode.ID, moduleNode.ID))
		callerIDs[path][parser.ModuleCaller] = moduleNode.ID

		for _, fn := range r.Functions {
			node := &Node{
				ID:            util.GenerateNodeID(path, KindFunction, fn.Name, fn.Line),
				Kind:          KindFunction,
				Name:          fn.Name,
				FilePath:      path,
				Line:          fn.Line,
				Column:        fn.Column,
				Signature:     fn.Signature,
				Parameters:    fn.Parameters,
				ReturnType:    fn.ReturnType,
				Docstring:     fn.Docstring,
				ClassName:     fn.ClassName,
				IsDeclaration: fn.IsDeclaration,
			}
			data.Nodes = append(data.Nodes, node)
			data.Edges = append(data.Edges, containsEdge(fileNode.ID, node.ID))
			// Definitions win over declarations as call targets.
			if _, seen := functionIDs[fn.Name]; !seen || !fn.IsDeclaration {
				functionIDs[fn.Name] = node.ID
			}
			if _, seen := callerIDs[path][fn.Name]; !seen || !fn.IsDeclaration {
				callerIDs[path][fn.Name] = node.ID
			}
		}

		for _, cls := range r.Classes {
			node := &Node{
				ID:          util.GenerateNodeID(path, KindClass, cls.Name, cls.Line),
				Kind:        KindClass,
				Name:        cls.Name,
				FilePath:    path,
				Line:        cls.Line,
				Column:      cls.Column,
				BaseClasses: cls.BaseClasses,
				Members:     cls.Members,
				Docstring:   cls.Docstring,
			}
			data.Nodes = append(data.Nodes, node)
			data.Edges = append(data.Edges, containsEdge(fileNode.ID, node.ID))
			if _, seen := classIDs[cls.Name]; !seen {
				classIDs[cls.Name] = node.ID
			}
		}

		for _, imp := range r.Imports {
			node := &Node{
				ID:            util.GenerateNodeID(path, KindImport, imp.Module, imp.Line),
				Kind:          KindImport,
				Name:          imp.Module,
				FilePath:      path,
				Line:          imp.Line,
				Module:        imp.Module,
				Text:          imp.Text,
				Alias:         imp.Alias,
				ImportedItems: imp.ImportedItems,
			}
			data.Nodes = append(data.Nodes, node)
			data.Edges = append(data.Edges, containsEdge(fileNode.ID, node.ID))
			data.Edges = append(data.Edges, &Edge{
				SourceID: fileNode.ID,
				TargetID: node.ID,
				Relation: RelationImports,
				Line:     imp.Line,
			})
		}

		for _, td := range r.Typedefs {
			node := &Node{
				ID:             util.GenerateNodeID(path, KindTypedef, td.Name, td.Line),
				Kind:           KindTypedef,
				Name:           td.Name,
				FilePath:       path,
				Line:           td.Line,
				UnderlyingType: td.UnderlyingType,
			}
			data.Nodes = append(data.Nodes, node)
			data.Edges = append(data.Edges, containsEdge(fileNode.ID, node.ID))
		}

		for _, m := range r.Macros {
			node := &Node{
				ID:             util.GenerateNodeID(path, KindMacro, m.Name, m.Line),
				Kind:           KindMacro,
				Name:           m.Name,
				FilePath:       path,
				Line:           m.Line,
				Value:          m.Value,
				IsFunctionLike: m.IsFunctionLike,
			}
			data.Nodes = append(data.Nodes, node)
			data.Edges = append(data.Edges, containsEdge(fileNode.ID, node.ID))
		}

		for _, v := range r.Variables {
			if v.Function != "" {
				continue // only file-scope variables become nodes
			}
			node := &Node{
				ID:             util.GenerateNodeID(path, KindVariable, v.Name, v.Line),
				Kind:           KindVariable,
				Name:           v.Name,
				FilePath:       path,
				Line:           v.Line,
				UnderlyingType: v.TypeName,
			}
			data.Nodes = append(data.Nodes, node)
			data.Edges = append(data.Edges, containsEdge(fileNode.ID, node.ID))
		}
	}

	// Second pass: calls, inheritance, and reference records, now that every
	// node in the batch is registered.
	for _, r := range results {
		path := util.CanonicalPath(r.FilePath)
		typedefTargets := typedefAliases(r)

		for _, call := range r.Calls {
			callerID, ok := callerIDs[path][call.CallerName]
			if !ok {
				callerID = callerIDs[path][parser.ModuleCaller]
			}
			data.Edges = append(data.Edges, &Edge{
				SourceID:     callerID,
				TargetID:     functionIDs[call.CalleeName],
				Relation:     RelationCalls,
				CalleeName:   call.CalleeName,
				Line:         call.Line,
				IsMethodCall: call.IsMethodCall,
			})
		}

		for _, cls := range r.Classes {
			classID := classIDs[cls.Name]
			for _, base := range cls.BaseClasses {
				data.Edges = append(data.Edges, &Edge{
					SourceID:   classID,
					TargetID:   classIDs[base],
					Relation:   RelationInherits,
					CalleeName: base,
					Line:       cls.Line,
				})
			}
		}

		for _, a := range r.Accesses {
			structName := a.StructName
			if resolved, ok := typedefTargets[structName]; ok {
				structName = resolved
			}
			data.Accesses = append(data.Accesses, &FieldAccess{
				FilePath:   path,
				StructName: structName,
				FieldName:  a.FieldName,
				AccessType: a.AccessType,
				Line:       a.Line,
			})
		}

		for _, u := range r.Usages {
			data.Usages = append(data.Usages, &Usage{
				FilePath: path,
				Kind:     u.Kind,
				Name:     u.Name,
				Function: u.Function,
				Line:     u.Line,
			})
		}
	}

	return data
}

func containsEdge(fileID, nodeID string) *Edge {
	return &Edge{SourceID: fileID, TargetID: nodeID, Relation: RelationContains}
}

// typedefAliases maps simple typedef names to the aggregate name they alias,
// so "UserT" from "typedef struct User UserT" resolves field accesses back
// to User.
func typedefAliases(r *parser.ParseResult) map[string]string {
	aliases := map[string]string{}
	for _, td := range r.Typedefs {
		underlying := strings.TrimPrefix(td.UnderlyingType, "struct ")
		underlying = strings.TrimPrefix(underlying, "union ")
		underlying = strings.TrimPrefix(underlying, "enum ")
		if underlying != "" && underlying != td.UnderlyingType {
			aliases[td.Name] = underlying
		}
	}
	return aliases
}
