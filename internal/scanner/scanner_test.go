package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"codegraph/internal/parser"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScanFindsSupportedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/app.py", "def main():\n    pass\n")
	writeFile(t, root, "src/user.c", "int helper(void) { return 0; }\n")
	writeFile(t, root, "src/user.h", "int helper(void);\n")
	writeFile(t, root, "README.md", "# readme\n")

	s := New(parser.New())
	results, err := s.Scan(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, results, 3)

	langs := map[string]int{}
	for _, r := range results {
		langs[r.Language]++
	}
	require.Equal(t, 1, langs["python"])
	require.Equal(t, 2, langs["c"])
}

func TestScanHonorsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "generated/\nskipme.py\n")
	writeFile(t, root, "app.py", "def main():\n    pass\n")
	writeFile(t, root, "skipme.py", "def hidden():\n    pass\n")
	writeFile(t, root, "generated/out.py", "def generated():\n    pass\n")

	s := New(parser.New())
	results, err := s.Scan(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, filepath.Join(root, "app.py"), results[0].FilePath)
}

func TestScanSkipsNoiseDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.py", "def main():\n    pass\n")
	writeFile(t, root, "__pycache__/app.py", "def cached():\n    pass\n")
	writeFile(t, root, ".git/hook.py", "def hook():\n    pass\n")

	s := New(parser.New())
	results, err := s.Scan(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestScanEmptyWorkspace(t *testing.T) {
	s := New(parser.New())
	results, err := s.Scan(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.Empty(t, results)
}
