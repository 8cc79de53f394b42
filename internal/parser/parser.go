package parser

import (
	"fmt"
	"os"
	"path/filepath"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_c "github.com/tree-sitter/tree-sitter-c/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

// ModuleCaller is the synthetic caller name assigned to call sites that
// appear outside any function body.
const ModuleCaller = "<module>"

// Item tags carried on C includes in Import.ImportedItems.
const (
	IncludeSystem = "system"
	IncludeLocal  = "local"
)

type extractor interface {
	extract(root *sitter.Node, source []byte, result *ParseResult)
}

// Parser turns source files into ParseResults. The language set is closed:
// extensions map to grammars through a static table.
type Parser struct {
	languages  map[string]*sitter.Language
	extractors map[string]extractor
}

func New() *Parser {
	return &Parser{
		languages: map[string]*sitter.Language{
			"python": sitter.NewLanguage(tree_sitter_python.Language()),
			"c":      sitter.NewLanguage(tree_sitter_c.Language()),
		},
		extractors: map[string]extractor{
			"python": &pythonExtractor{},
			"c":      &cExtractor{},
		},
	}
}

// Supported reports whether path has an extension this parser handles.
func Supported(path string) bool {
	return detectLanguage(path) != ""
}

func detectLanguage(path string) string {
	switch filepath.Ext(path) {
	case ".py":
		return "python"
	case ".c", ".h":
		return "c"
	}
	return ""
}

// ParseFile reads and parses one source file. It fails only when the file
// cannot be read or has an unsupported extension; syntactically odd input
// yields a best-effort, possibly empty, result.
func (p *Parser) ParseFile(path string) (*ParseResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return p.Parse(path, content)
}

// Parse parses in-memory source attributed to path.
func (p *Parser) Parse(path string, content []byte) (*ParseResult, error) {
	lang := detectLanguage(path)
	if lang == "" {
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(p.languages[lang])

	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, fmt.Errorf("parse failed: %s", path)
	}
	defer tree.Close()

	result := &ParseResult{FilePath: path, Language: lang}
	p.extractors[lang].extract(tree.RootNode(), content, result)
	return result, nil
}

func text(n *sitter.Node, source []byte) string {
	return string(source[n.StartByte():n.EndByte()])
}

func line(n *sitter.Node) int {
	return int(n.StartPosition().Row) + 1
}

func column(n *sitter.Node) int {
	return int(n.StartPosition().Column)
}

func childOfKind(n *sitter.Node, kind string) *sitter.Node {
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c.Kind() == kind {
			return c
		}
	}
	return nil
}
