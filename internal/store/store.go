// Package store persists the code graph in SQLite and answers the read
// queries the resolution engine runs. Two query dialects are exposed over
// the same tables: a typed one that compiles query specs to parameterized
// statements, and a raw one built on hand-written traversal SQL. Both must
// return identical results for the same logical query.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"codegraph/internal/graph"
	"codegraph/internal/parser"
	"codegraph/util"
)

// lookupBatchSize bounds IN(...) lists so bulk lookups stay inside the
// backing store's query-size limits.
const lookupBatchSize = 1000

// NodeQuery is the typed dialect's query spec. Zero fields are unfiltered.
type NodeQuery struct {
	Kind          string
	Name          string
	FilePath      string
	WithEmbedding bool
}

// CallSite is one call edge joined with its caller's details.
type CallSite struct {
	CallerID        string `json:"caller_id"`
	CallerName      string `json:"caller"`
	CallerFile      string `json:"file"`
	CallerSignature string `json:"signature,omitempty"`
	CalleeName      string `json:"callee"`
	TargetID        string `json:"target_id,omitempty"`
	Line            int    `json:"line"`
	IsMethodCall    bool   `json:"is_method_call,omitempty"`
}

// ImportRef is one import/include statement with its owning file.
type ImportRef struct {
	Module   string `json:"module"`
	FilePath string `json:"file"`
	Text     string `json:"text,omitempty"`
	Line     int    `json:"line"`
}

// Querier is the read interface the resolution engine depends on.
type Querier interface {
	Nodes(ctx context.Context, q NodeQuery) ([]*graph.Node, error)
	NodesByIDs(ctx context.Context, ids []string) (map[string]*graph.Node, error)
	CallsTo(ctx context.Context, callee string) ([]*CallSite, error)
	Imports(ctx context.Context) ([]*ImportRef, error)
	Accesses(ctx context.Context, structName, fieldName string) ([]*graph.FieldAccess, error)
	Usages(ctx context.Context, name string) ([]*graph.Usage, error)
}

// Store owns the SQLite handle and the schema-initialized flag. One instance
// is constructed at startup and shared by every resolution call.
type Store struct {
	db         *sql.DB
	schemaOnce sync.Once
	schemaErr  error
}

// Open opens (creating if needed) the database at path. Use ":memory:" for
// an ephemeral store.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single writer keeps file replacement transactional and avoids
	// SQLITE_BUSY under concurrent tool calls.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id        TEXT PRIMARY KEY,
	kind      TEXT NOT NULL,
	name      TEXT NOT NULL,
	file_path TEXT NOT NULL,
	line      INTEGER NOT NULL DEFAULT 0,
	col       INTEGER NOT NULL DEFAULT 0,
	detail    TEXT NOT NULL DEFAULT '{}',
	embedding BLOB
);
CREATE INDEX IF NOT EXISTS idx_nodes_kind_name ON nodes(kind, name);
CREATE INDEX IF NOT EXISTS idx_nodes_file ON nodes(file_path);

CREATE TABLE IF NOT EXISTS edges (
	source_id      TEXT NOT NULL,
	target_id      TEXT NOT NULL DEFAULT '',
	relation       TEXT NOT NULL,
	callee_name    TEXT NOT NULL DEFAULT '',
	line           INTEGER NOT NULL DEFAULT 0,
	is_method_call INTEGER NOT NULL DEFAULT 0,
	file_path      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_edges_relation_callee ON edges(relation, callee_name);
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id);
CREATE INDEX IF NOT EXISTS idx_edges_file ON edges(file_path);

CREATE TABLE IF NOT EXISTS accesses (
	file_path   TEXT NOT NULL,
	struct_name TEXT NOT NULL,
	field_name  TEXT NOT NULL,
	access_type TEXT NOT NULL,
	line        INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_accesses_struct ON accesses(struct_name, field_name);
CREATE INDEX IF NOT EXISTS idx_accesses_file ON accesses(file_path);

CREATE TABLE IF NOT EXISTS usages (
	file_path TEXT NOT NULL,
	kind      TEXT NOT NULL,
	name      TEXT NOT NULL,
	function  TEXT NOT NULL DEFAULT '',
	line      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_usages_name ON usages(name);
CREATE INDEX IF NOT EXISTS idx_usages_file ON usages(file_path);
`

// EnsureSchema creates the tables on first use. Safe under concurrent first
// callers; the statements themselves are idempotent as well.
func (s *Store) EnsureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, schema)
	})
	return s.schemaErr
}

// InsertGraph persists one builder batch. Each file's previous contents are
// replaced; nodes and edges owned by files outside the batch stay untouched.
// Embeddings survive re-insertion when the node identity is unchanged, and
// call/inheritance targets are re-resolved store-wide afterwards so inbound
// edges from other files are re-established or left dangling when the
// symbol disappeared.
func (s *Store) InsertGraph(ctx context.Context, data *graph.GraphData) error {
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}

	files := map[string]bool{}
	for _, n := range data.Nodes {
		files[n.FilePath] = true
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	// Keep existing embeddings keyed by node identity across the replace.
	saved := map[string][]byte{}
	for file := range files {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, embedding FROM nodes WHERE file_path = ? AND embedding IS NOT NULL`, file)
		if err != nil {
			return fmt.Errorf("load embeddings: %w", err)
		}
		for rows.Next() {
			var id string
			var blob []byte
			if err := rows.Scan(&id, &blob); err != nil {
				rows.Close()
				return err
			}
			saved[id] = blob
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := deleteFileData(ctx, tx, file); err != nil {
			return err
		}
	}

	for _, n := range data.Nodes {
		detail, err := json.Marshal(nodeDetailOf(n))
		if err != nil {
			return fmt.Errorf("encode node detail: %w", err)
		}
		var embedding any
		if blob := saved[n.ID]; blob != nil {
			embedding = blob
		} else if len(n.Embedding) > 0 {
			embedding = encodeEmbedding(n.Embedding)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO nodes (id, kind, name, file_path, line, col, detail, embedding)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   kind = excluded.kind, name = excluded.name,
			   file_path = excluded.file_path, line = excluded.line,
			   col = excluded.col, detail = excluded.detail,
			   embedding = COALESCE(excluded.embedding, nodes.embedding)`,
			n.ID, n.Kind, n.Name, n.FilePath, n.Line, n.Column, string(detail), embedding); err != nil {
			return fmt.Errorf("insert node %s: %w", n.ID, err)
		}
	}

	owner := map[string]string{}
	for _, n := range data.Nodes {
		owner[n.ID] = n.FilePath
	}
	for _, e := range data.Edges {
		file := owner[e.SourceID]
		if file == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO edges (source_id, target_id, relation, callee_name, line, is_method_call, file_path)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.SourceID, e.TargetID, e.Relation, e.CalleeName, e.Line, e.IsMethodCall, file); err != nil {
			return fmt.Errorf("insert edge: %w", err)
		}
	}

	for _, a := range data.Accesses {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO accesses (file_path, struct_name, field_name, access_type, line)
			 VALUES (?, ?, ?, ?, ?)`,
			a.FilePath, a.StructName, a.FieldName, a.AccessType, a.Line); err != nil {
			return fmt.Errorf("insert access: %w", err)
		}
	}

	for _, u := range data.Usages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO usages (file_path, kind, name, function, line)
			 VALUES (?, ?, ?, ?, ?)`,
			u.FilePath, u.Kind, u.Name, u.Function, u.Line); err != nil {
			return fmt.Errorf("insert usage: %w", err)
		}
	}

	if err := resolveTargets(ctx, tx); err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateFile re-derives one file's graph from a fresh parse and replaces its
// stored contents. Calling it repeatedly with the same parse is idempotent.
func (s *Store) UpdateFile(ctx context.Context, result *parser.ParseResult) error {
	return s.InsertGraph(ctx, graph.Build([]*parser.ParseResult{result}))
}

// DeleteFile removes everything a file owns and marks edges that pointed
// into it as dangling.
func (s *Store) DeleteFile(ctx context.Context, path string) error {
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	path = util.CanonicalPath(path)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	if err := deleteFileData(ctx, tx, path); err != nil {
		return err
	}
	if err := resolveTargets(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// PruneStaleFiles drops data for indexed files that no longer exist in the
// workspace scan.
func (s *Store) PruneStaleFiles(ctx context.Context, validFiles []string) error {
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}

	valid := map[string]bool{}
	for _, f := range validFiles {
		valid[util.CanonicalPath(f)] = true
	}

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT file_path FROM nodes`)
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}
	var stale []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			rows.Close()
			return err
		}
		if !valid[f] {
			stale = append(stale, f)
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, f := range stale {
		if err := s.DeleteFile(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

// SetEmbedding stores the embedding vector for one node.
func (s *Store) SetEmbedding(ctx context.Context, nodeID string, vec []float32) error {
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE nodes SET embedding = ? WHERE id = ?`, encodeEmbedding(vec), nodeID)
	return err
}

// Typed returns the typed-spec query dialect.
func (s *Store) Typed() Querier {
	return &typedQuerier{db: s.db}
}

// Raw returns the traversal-SQL query dialect.
func (s *Store) Raw() Querier {
	return &rawQuerier{db: s.db}
}

func deleteFileData(ctx context.Context, tx *sql.Tx, file string) error {
	for _, stmt := range []string{
		`DELETE FROM nodes WHERE file_path = ?`,
		`DELETE FROM edges WHERE file_path = ?`,
		`DELETE FROM accesses WHERE file_path = ?`,
		`DELETE FROM usages WHERE file_path = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, file); err != nil {
			return fmt.Errorf("delete file data: %w", err)
		}
	}
	return nil
}

// resolveTargets re-links call and inheritance edges by name against the
// current node set. Targets whose symbol disappeared are cleared rather than
// left pointing at deleted rows.
func resolveTargets(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE edges SET target_id = ''
		 WHERE target_id <> '' AND target_id NOT IN (SELECT id FROM nodes)`); err != nil {
		return fmt.Errorf("clear dangling targets: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE edges SET target_id = COALESCE(
			(SELECT n.id FROM nodes n
			 WHERE n.kind = 'function' AND n.name = edges.callee_name
			 ORDER BY json_extract(n.detail, '$.is_declaration') IS NOT NULL,
			          n.file_path, n.line
			 LIMIT 1), '')
		 WHERE relation = 'calls' AND target_id = '' AND callee_name <> ''`); err != nil {
		return fmt.Errorf("resolve call targets: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE edges SET target_id = COALESCE(
			(SELECT n.id FROM nodes n
			 WHERE n.kind = 'class' AND n.name = edges.callee_name
			 ORDER BY n.file_path, n.line
			 LIMIT 1), '')
		 WHERE relation = 'inherits' AND target_id = '' AND callee_name <> ''`); err != nil {
		return fmt.Errorf("resolve inheritance targets: %w", err)
	}

	return nil
}

// nodeDetail is the kind-specific payload serialized into the detail column.
type nodeDetail struct {
	Signature      string   `json:"signature,omitempty"`
	Parameters     []string `json:"parameters,omitempty"`
	ReturnType     string   `json:"return_type,omitempty"`
	Docstring      string   `json:"docstring,omitempty"`
	IsDeclaration  bool     `json:"is_declaration,omitempty"`
	BaseClasses    []string `json:"base_classes,omitempty"`
	Members        []string `json:"members,omitempty"`
	ClassName      string   `json:"class_name,omitempty"`
	Module         string   `json:"module,omitempty"`
	Text           string   `json:"text,omitempty"`
	Alias          string   `json:"alias,omitempty"`
	ImportedItems  []string `json:"imported_items,omitempty"`
	UnderlyingType string   `json:"underlying_type,omitempty"`
	Value          string   `json:"value,omitempty"`
	IsFunctionLike bool     `json:"is_function_like,omitempty"`
	FunctionCount  int      `json:"function_count,omitempty"`
	ClassCount     int      `json:"class_count,omitempty"`
	ImportCount    int      `json:"import_count,omitempty"`
}

func nodeDetailOf(n *graph.Node) nodeDetail {
	return nodeDetail{
		Signature:      n.Signature,
		Parameters:     n.Parameters,
		ReturnType:     n.ReturnType,
		Docstring:      n.Docstring,
		IsDeclaration:  n.IsDeclaration,
		BaseClasses:    n.BaseClasses,
		Members:        n.Members,
		ClassName:      n.ClassName,
		Module:         n.Module,
		Text:           n.Text,
		Alias:          n.Alias,
		ImportedItems:  n.ImportedItems,
		UnderlyingType: n.UnderlyingType,
		Value:          n.Value,
		IsFunctionLike: n.IsFunctionLike,
		FunctionCount:  n.FunctionCount,
		ClassCount:     n.ClassCount,
		ImportCount:    n.ImportCount,
	}
}

func applyDetail(n *graph.Node, detail string) error {
	var d nodeDetail
	if err := json.Unmarshal([]byte(detail), &d); err != nil {
		return fmt.Errorf("decode node detail: %w", err)
	}
	n.Signature = d.Signature
	n.Parameters = d.Parameters
	n.ReturnType = d.ReturnType
	n.Docstring = d.Docstring
	n.IsDeclaration = d.IsDeclaration
	n.BaseClasses = d.BaseClasses
	n.Members = d.Members
	n.ClassName = d.ClassName
	n.Module = d.Module
	n.Text = d.Text
	n.Alias = d.Alias
	n.ImportedItems = d.ImportedItems
	n.UnderlyingType = d.UnderlyingType
	n.Value = d.Value
	n.IsFunctionLike = d.IsFunctionLike
	n.FunctionCount = d.FunctionCount
	n.ClassCount = d.ClassCount
	n.ImportCount = d.ImportCount
	return nil
}

func encodeEmbedding(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(blob []byte) []float32 {
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func scanNodes(rows *sql.Rows, withEmbedding bool) ([]*graph.Node, error) {
	defer rows.Close()
	var nodes []*graph.Node
	for rows.Next() {
		n := &graph.Node{}
		var detail string
		var embedding []byte
		dest := []any{&n.ID, &n.Kind, &n.Name, &n.FilePath, &n.Line, &n.Column, &detail}
		if withEmbedding {
			dest = append(dest, &embedding)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if err := applyDetail(n, detail); err != nil {
			return nil, err
		}
		if withEmbedding && len(embedding) > 0 {
			n.Embedding = decodeEmbedding(embedding)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}
