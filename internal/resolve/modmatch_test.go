package resolve

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCandidateSet(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"/repo/src/net/api.c", []string{"net/api.c", "api.c"}},
		{"/repo/src/main.c", []string{"main.c"}},
		{"/repo/include/net/api.h", []string{"include/net/api.h", "api.h"}},
		{"/repo/packages/core/util.c", []string{"packages/core/util.c", "util.c"}},
		{"/somewhere/else/thing.h", []string{"thing.h"}},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, candidateSet(tt.path), "path %s", tt.path)
	}
}

func TestPathMatcherLevels(t *testing.T) {
	m := newPathMatcher("/repo/src/net/api.c")

	require.Equal(t, matchExact, m.match("net/api.c"))
	require.Equal(t, matchExact, m.match("api.c"))
	// A .c file answers to its header sibling.
	require.Equal(t, matchExact, m.match("net/api.h"))
	require.Equal(t, matchExact, m.match("api.h"))
	require.Equal(t, matchSuffix, m.match("repo/src/net/api.c"))
	require.Equal(t, matchFilename, m.match("other/api.c"))
	require.Equal(t, matchNone, m.match("net/other.c"))
	require.Equal(t, matchNone, m.match("api.cpp"))
}

func TestPathMatcherFilenameOnlyNeedsBareCandidate(t *testing.T) {
	// "vendor/api.c" matches the bare-filename candidate only; the
	// path-form candidate must not match it as a suffix.
	m := newPathMatcher("/repo/src/net/api.c")
	require.Equal(t, matchFilename, m.match("vendor/api.c"))
}

func TestFileModuleName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/repo/src/pkg/util.py", "pkg.util"},
		{"/repo/cli/tool/main.py", "tool.main"},
		{"/repo/pkg/sub/mod.py", "repo.pkg.sub.mod"},
		{"/repo/src/top.py", "top"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, fileModuleName(tt.path), "path %s", tt.path)
	}
}

func TestPythonMatcher(t *testing.T) {
	m := newPythonMatcher("/repo/src/pkg/sub/mod.py")

	require.Equal(t, matchExact, m.match("pkg.sub.mod"))
	// Importing a specific-enough parent package reaches the module.
	require.Equal(t, matchSuffix, m.match("pkg.sub"))
	// A single-segment parent is too generic to count.
	require.Equal(t, matchNone, m.match("pkg"))
	// Importing a submodule of the target.
	require.Equal(t, matchSuffix, m.match("pkg.sub.mod.inner"))
	// Relative imports match on trailing segments.
	require.Equal(t, matchSuffix, m.match(".sub.mod"))
	require.Equal(t, matchSuffix, m.match(".mod"))
	require.Equal(t, matchNone, m.match("other.mod.extra"))
	require.Equal(t, matchNone, m.match(""))
}
