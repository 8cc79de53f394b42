package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"codegraph/internal/graph"
)

// typedQuerier answers reads by compiling NodeQuery specs into parameterized
// statements and assembling multi-step results in Go. Bulk detail lookups go
// through bounded batches.
type typedQuerier struct {
	db *sql.DB
}

func (q *typedQuerier) Nodes(ctx context.Context, spec NodeQuery) ([]*graph.Node, error) {
	columns := "id, kind, name, file_path, line, col, detail"
	if spec.WithEmbedding {
		columns += ", embedding"
	}

	var conds []string
	var args []any
	if spec.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, spec.Kind)
	}
	if spec.Name != "" {
		conds = append(conds, "name = ?")
		args = append(args, spec.Name)
	}
	if spec.FilePath != "" {
		conds = append(conds, "file_path = ?")
		args = append(args, spec.FilePath)
	}
	if spec.WithEmbedding {
		conds = append(conds, "embedding IS NOT NULL")
	}

	query := "SELECT " + columns + " FROM nodes"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY file_path, line, id"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	return scanNodes(rows, spec.WithEmbedding)
}

// NodesByIDs fetches node details in batches of at most lookupBatchSize ids,
// merged into one map keyed by identity. A node landing in two batches is
// deduplicated by the map itself.
func (q *typedQuerier) NodesByIDs(ctx context.Context, ids []string) (map[string]*graph.Node, error) {
	result := make(map[string]*graph.Node, len(ids))
	for start := 0; start < len(ids); start += lookupBatchSize {
		end := start + lookupBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		rows, err := q.db.QueryContext(ctx,
			`SELECT id, kind, name, file_path, line, col, detail FROM nodes
			 WHERE id IN (`+placeholders(len(batch))+`) ORDER BY file_path, line, id`,
			args...)
		if err != nil {
			return nil, fmt.Errorf("query nodes by id: %w", err)
		}
		nodes, err := scanNodes(rows, false)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			result[n.ID] = n
		}
	}
	return result, nil
}

func (q *typedQuerier) CallsTo(ctx context.Context, callee string) ([]*CallSite, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT source_id, target_id, line, is_method_call, file_path FROM edges
		 WHERE relation = ? AND callee_name = ?
		 ORDER BY file_path, line, source_id`,
		graph.RelationCalls, callee)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}

	var sites []*CallSite
	var callerIDs []string
	for rows.Next() {
		site := &CallSite{CalleeName: callee}
		var file string
		if err := rows.Scan(&site.CallerID, &site.TargetID, &site.Line, &site.IsMethodCall, &file); err != nil {
			rows.Close()
			return nil, err
		}
		site.CallerFile = file
		sites = append(sites, site)
		callerIDs = append(callerIDs, site.CallerID)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	callers, err := q.NodesByIDs(ctx, callerIDs)
	if err != nil {
		return nil, err
	}
	for _, site := range sites {
		if caller, ok := callers[site.CallerID]; ok {
			site.CallerName = caller.Name
			site.CallerSignature = caller.Signature
		}
	}
	return sites, nil
}

func (q *typedQuerier) Imports(ctx context.Context) ([]*ImportRef, error) {
	nodes, err := q.Nodes(ctx, NodeQuery{Kind: graph.KindImport})
	if err != nil {
		return nil, err
	}
	refs := make([]*ImportRef, 0, len(nodes))
	for _, n := range nodes {
		refs = append(refs, &ImportRef{
			Module:   n.Module,
			FilePath: n.FilePath,
			Text:     n.Text,
			Line:     n.Line,
		})
	}
	return refs, nil
}

func (q *typedQuerier) Accesses(ctx context.Context, structName, fieldName string) ([]*graph.FieldAccess, error) {
	var conds []string
	var args []any
	if structName != "" {
		conds = append(conds, "struct_name = ?")
		args = append(args, structName)
	}
	if fieldName != "" {
		conds = append(conds, "field_name = ?")
		args = append(args, fieldName)
	}
	query := `SELECT file_path, struct_name, field_name, access_type, line FROM accesses`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY file_path, line"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query accesses: %w", err)
	}
	defer rows.Close()

	var accesses []*graph.FieldAccess
	for rows.Next() {
		a := &graph.FieldAccess{}
		if err := rows.Scan(&a.FilePath, &a.StructName, &a.FieldName, &a.AccessType, &a.Line); err != nil {
			return nil, err
		}
		accesses = append(accesses, a)
	}
	return accesses, rows.Err()
}

func (q *typedQuerier) Usages(ctx context.Context, name string) ([]*graph.Usage, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT file_path, kind, name, function, line FROM usages
		 WHERE name = ? ORDER BY file_path, line`, name)
	if err != nil {
		return nil, fmt.Errorf("query usages: %w", err)
	}
	defer rows.Close()

	var usages []*graph.Usage
	for rows.Next() {
		u := &graph.Usage{}
		if err := rows.Scan(&u.FilePath, &u.Kind, &u.Name, &u.Function, &u.Line); err != nil {
			return nil, err
		}
		usages = append(usages, u)
	}
	return usages, rows.Err()
}
