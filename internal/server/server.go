// Package server exposes the code graph over MCP: indexing tools, the
// resolution operations, and documentation resources, served over stdio.
package server

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"codegraph/internal/config"
	"codegraph/internal/embed"
	"codegraph/internal/graph"
	"codegraph/internal/parser"
	"codegraph/internal/resolve"
	"codegraph/internal/scanner"
	"codegraph/internal/store"
	"codegraph/internal/watcher"
	"codegraph/util"
)

type IndexStatus string

const (
	IndexStatusNotStarted IndexStatus = "not_started"
	IndexStatusInProgress IndexStatus = "in_progress"
	IndexStatusReady      IndexStatus = "ready"
	IndexStatusFailed     IndexStatus = "failed"
)

type Server struct {
	mcpServer *mcp.Server
	cfg       *config.Config
	store     *store.Store
	querier   store.Querier
	engine    *resolve.Engine
	parser    *parser.Parser
	scanner   *scanner.Scanner
	embedder  embed.Embedder

	systemPrompt string

	indexMu       sync.RWMutex
	indexStatus   IndexStatus
	indexErr      error
	indexDuration time.Duration
	indexReady    chan struct{}
}

func New(cfg *config.Config, st *store.Store) *Server {
	p := parser.New()

	var embedder embed.Embedder
	switch cfg.Embedding.Provider {
	case config.ProviderOpenAI:
		embedder = embed.NewOpenAI(cfg.Embedding.APIKey, cfg.Embedding.BaseURL)
	default:
		embedder = embed.NewHash()
	}

	querier := st.Typed()
	if cfg.Dialect == config.DialectRaw {
		querier = st.Raw()
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    "codegraph",
			Version: "0.3.0",
		}, nil),
		cfg:          cfg,
		store:        st,
		querier:      querier,
		engine:       resolve.New(querier, embedder, resolve.WithMaxDepth(cfg.MaxDepth)),
		parser:       p,
		scanner:      scanner.New(p),
		embedder:     embedder,
		systemPrompt: systemPrompt,
		indexStatus:  IndexStatusNotStarted,
		indexReady:   make(chan struct{}),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// Run serves MCP over stdio until ctx is cancelled. The initial index runs
// in the background so the agent can connect immediately; query tools wait
// for it.
func (s *Server) Run(ctx context.Context) error {
	if err := s.store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	go func() {
		if _, err := s.runIndex(ctx); err != nil {
			log.Printf("initial index failed: %v", err)
		}
	}()

	if s.cfg.Watch.Enabled {
		w, err := watcher.New(s, s.cfg.Watch.Debounce)
		if err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		if err := w.Watch(s.cfg.Workspace); err != nil {
			return fmt.Errorf("watch %s: %w", s.cfg.Workspace, err)
		}
		go func() {
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("watcher stopped: %v", err)
			}
		}()
	}

	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) setIndexStatus(status IndexStatus, err error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	s.indexStatus = status
	s.indexErr = err
	if status == IndexStatusReady || status == IndexStatusFailed {
		select {
		case <-s.indexReady:
		default:
			close(s.indexReady)
		}
	}
}

// GetIndexStatus returns the current status, the failure if any, and how
// long the last successful index took.
func (s *Server) GetIndexStatus() (IndexStatus, error, time.Duration) {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	return s.indexStatus, s.indexErr, s.indexDuration
}

// WaitForIndex blocks until the first index attempt finishes or ctx ends.
func (s *Server) WaitForIndex(ctx context.Context) error {
	s.indexMu.RLock()
	ready := s.indexReady
	s.indexMu.RUnlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runIndex scans the workspace, replaces the stored graph, prunes files
// that disappeared, and fills in missing symbol embeddings. Returns a
// human-readable summary for the index tool.
func (s *Server) runIndex(ctx context.Context) (string, error) {
	s.indexMu.Lock()
	if s.indexStatus == IndexStatusInProgress {
		s.indexMu.Unlock()
		return "", fmt.Errorf("indexing already in progress")
	}
	if s.indexStatus == IndexStatusReady || s.indexStatus == IndexStatusFailed {
		s.indexReady = make(chan struct{})
	}
	s.indexStatus = IndexStatusInProgress
	s.indexErr = nil
	s.indexMu.Unlock()

	start := time.Now()
	fail := func(err error) (string, error) {
		s.setIndexStatus(IndexStatusFailed, err)
		return "", err
	}

	results, err := s.scanner.Scan(ctx, s.cfg.Workspace)
	if err != nil {
		return fail(fmt.Errorf("scan failed: %w", err))
	}

	data := graph.Build(results)
	if err := s.store.InsertGraph(ctx, data); err != nil {
		return fail(fmt.Errorf("store graph: %w", err))
	}

	validFiles := make([]string, 0, len(results))
	for _, r := range results {
		validFiles = append(validFiles, util.CanonicalPath(r.FilePath))
	}
	if err := s.store.PruneStaleFiles(ctx, validFiles); err != nil {
		log.Printf("prune stale files: %v", err)
	}

	embedded, err := s.embedMissing(ctx)
	if err != nil {
		log.Printf("embedding pass incomplete: %v", err)
	}

	duration := time.Since(start)
	s.indexMu.Lock()
	s.indexDuration = duration
	s.indexMu.Unlock()
	s.setIndexStatus(IndexStatusReady, nil)

	return fmt.Sprintf("Indexed %d files (%d nodes, %d edges, %d embedded) in %.2fs",
		len(results), len(data.Nodes), len(data.Edges), embedded, duration.Seconds()), nil
}

// embedMissing computes embeddings for function and class nodes that do not
// have one yet. Embeddings persist across re-index, so steady state embeds
// only new or renamed symbols.
func (s *Server) embedMissing(ctx context.Context) (int, error) {
	count := 0
	for _, kind := range []string{graph.KindFunction, graph.KindClass} {
		have, err := s.querier.Nodes(ctx, store.NodeQuery{Kind: kind, WithEmbedding: true})
		if err != nil {
			return count, err
		}
		done := make(map[string]bool, len(have))
		for _, n := range have {
			done[n.ID] = true
		}

		all, err := s.querier.Nodes(ctx, store.NodeQuery{Kind: kind})
		if err != nil {
			return count, err
		}
		for _, n := range all {
			if done[n.ID] || n.Name == parser.ModuleCaller {
				continue
			}
			vec, err := s.embedder.Embed(ctx, embedText(n))
			if err != nil {
				return count, err
			}
			if embed.IsZero(vec) {
				continue
			}
			if err := s.store.SetEmbedding(ctx, n.ID, vec); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

func embedText(n *graph.Node) string {
	parts := []string{n.Name}
	if n.Signature != "" {
		parts = append(parts, n.Signature)
	}
	if n.Docstring != "" {
		parts = append(parts, n.Docstring)
	}
	if len(n.Members) > 0 {
		parts = append(parts, strings.Join(n.Members, " "))
	}
	return strings.Join(parts, " ")
}

// FilesChanged re-indexes changed files. Part of the watcher handler.
func (s *Server) FilesChanged(paths []string) {
	ctx := context.Background()
	for _, path := range paths {
		result, err := s.parser.ParseFile(path)
		if err != nil {
			log.Printf("reparse %s: %v", path, err)
			continue
		}
		if err := s.store.UpdateFile(ctx, result); err != nil {
			log.Printf("update %s: %v", path, err)
			continue
		}
	}
	if _, err := s.embedMissing(ctx); err != nil {
		log.Printf("embedding pass incomplete: %v", err)
	}
}

// FilesRemoved drops deleted files from the graph.
func (s *Server) FilesRemoved(paths []string) {
	ctx := context.Background()
	for _, path := range paths {
		if err := s.store.DeleteFile(ctx, util.CanonicalPath(path)); err != nil {
			log.Printf("delete %s: %v", path, err)
		}
	}
}

const systemPrompt = `# CodeGraph MCP Server

CodeGraph indexes Python and C sources into a structural graph and answers
dependency and impact questions about it.

## Workflow
1. Call ` + "`index`" + ` once after connecting (it also runs automatically at startup).
2. Use the query tools; they wait for indexing to finish.

## Tools
- **get_include_dependencies**: who includes/imports a file, transitively.
- **find_symbol_usages**: definitions and references of a function, macro,
  variable, struct, or typedef.
- **get_function_callers**: direct callers of a function, optionally the
  whole reverse call graph.
- **find_struct_field_access**: every read/write of one struct field.
- **check_affected_files**: files to rebuild, retest, or review after
  changing the given files.
- **semantic_code_search**: natural-language search over indexed functions
  and classes.
- **update_file**: re-index a single file after editing it.

Results are JSON. Absent symbols yield empty results with count 0; real
failures carry an "error" field.`
