// Package scanner walks a workspace and parses every supported source file.
// Gitignore rules and a few always-noise directories are skipped.
package scanner

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	ignore "github.com/sabhiram/go-gitignore"

	"codegraph/internal/parser"
)

// skipDirs are directories never worth descending into, gitignored or not.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
}

// Scanner discovers and parses source files under a workspace root.
type Scanner struct {
	parser *parser.Parser
}

func New(p *parser.Parser) *Scanner {
	return &Scanner{parser: p}
}

// Scan walks root and returns a parse result per supported file. Files that
// fail to parse are logged and skipped; a broken file must not abort the
// whole index.
func (s *Scanner) Scan(ctx context.Context, root string) ([]*parser.ParseResult, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var matcher *ignore.GitIgnore
	if gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
		matcher = gi
	} else if !os.IsNotExist(err) {
		log.Printf("skipping unreadable .gitignore: %v", err)
	}

	var results []*parser.ParseResult
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}

		if d.IsDir() {
			if path != root && (skipDirs[d.Name()] || ignored(matcher, rel+"/")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !parser.Supported(path) || ignored(matcher, rel) {
			return nil
		}

		result, parseErr := s.parser.ParseFile(path)
		if parseErr != nil {
			log.Printf("skipping %s: %v", path, parseErr)
			return nil
		}
		results = append(results, result)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func ignored(matcher *ignore.GitIgnore, rel string) bool {
	return matcher != nil && matcher.MatchesPath(rel)
}
