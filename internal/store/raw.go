package store

import (
	"context"
	"database/sql"
	"fmt"

	"codegraph/internal/graph"
)

// rawQuerier answers the same reads as typedQuerier through hand-written
// one-shot traversal SQL: joins and json_extract instead of spec compilation
// and Go-side assembly. Result sets must match the typed dialect exactly;
// divergence is a defect in one of the two.
type rawQuerier struct {
	db *sql.DB
}

func (q *rawQuerier) Nodes(ctx context.Context, spec NodeQuery) ([]*graph.Node, error) {
	withEmbedding := 0
	columns := "id, kind, name, file_path, line, col, detail"
	if spec.WithEmbedding {
		withEmbedding = 1
		columns += ", embedding"
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT `+columns+` FROM nodes
		WHERE (?1 = '' OR kind = ?1)
		  AND (?2 = '' OR name = ?2)
		  AND (?3 = '' OR file_path = ?3)
		  AND (?4 = 0 OR embedding IS NOT NULL)
		ORDER BY file_path, line, id`,
		spec.Kind, spec.Name, spec.FilePath, withEmbedding)
	if err != nil {
		return nil, fmt.Errorf("raw node query: %w", err)
	}
	return scanNodes(rows, spec.WithEmbedding)
}

func (q *rawQuerier) NodesByIDs(ctx context.Context, ids []string) (map[string]*graph.Node, error) {
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
			 WHERE id IN (`+placeholders(len(batch))+`)`,
			args...)
		if err != nil {
			return nil, fmt.Errorf("raw id query: %w", err)
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

func (q *rawQuerier) CallsTo(ctx context.Context, callee string) ([]*CallSite, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT e.source_id, n.name, e.file_path,
		       COALESCE(json_extract(n.detail, '$.signature'), ''),
		       e.target_id, e.line, e.is_method_call
		FROM edges e
		JOIN nodes n ON n.id = e.source_id
		WHERE e.relation = 'calls' AND e.callee_name = ?
		ORDER BY e.file_path, e.line, e.source_id`, callee)
	if err != nil {
		return nil, fmt.Errorf("raw call query: %w", err)
	}
	defer rows.Close()

	var sites []*CallSite
	for rows.Next() {
		site := &CallSite{CalleeName: callee}
		if err := rows.Scan(&site.CallerID, &site.CallerName, &site.CallerFile,
			&site.CallerSignature, &site.TargetID, &site.Line, &site.IsMethodCall); err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

func (q *rawQuerier) Imports(ctx context.Context) ([]*ImportRef, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT COALESCE(json_extract(detail, '$.module'), name), file_path,
		       COALESCE(json_extract(detail, '$.text'), ''), line
		FROM nodes
		WHERE kind = 'import'
		ORDER BY file_path, line, id`)
	if err != nil {
		return nil, fmt.Errorf("raw import query: %w", err)
	}
	defer rows.Close()

	var refs []*ImportRef
	for rows.Next() {
		ref := &ImportRef{}
		if err := rows.Scan(&ref.Module, &ref.FilePath, &ref.Text, &ref.Line); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (q *rawQuerier) Accesses(ctx context.Context, structName, fieldName string) ([]*graph.FieldAccess, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT file_path, struct_name, field_name, access_type, line
		FROM accesses
		WHERE (?1 = '' OR struct_name = ?1)
		  AND (?2 = '' OR field_name = ?2)
		ORDER BY file_path, line`, structName, fieldName)
	if err != nil {
		return nil, fmt.Errorf("raw access query: %w", err)
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

func (q *rawQuerier) Usages(ctx context.Context, name string) ([]*graph.Usage, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT file_path, kind, name, function, line
		FROM usages
		WHERE name = ?
		ORDER BY file_path, line`, name)
	if err != nil {
		return nil, fmt.Errorf("raw usage query: %w", err)
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

var (
	_ Querier = (*rawQuerier)(nil)
	_ Querier = (*typedQuerier)(nil)
)
