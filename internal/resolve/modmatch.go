package resolve

import (
	"path"
	"strings"
)

// Module identity matching. An import or include statement can reference a
// file through several plausible strings: the path suffix below a recognized
// project-root marker, the bare filename, or (for Python) a dotted module
// name. These matchers score an observed module string against a target file
// so the traversal can follow import edges backward.

// matchLevel orders match specificity. Exact beats suffix beats
// filename-only; filename-only matches are where two same-named files in
// different directories can collide, so they are the ones flagged as
// ambiguous when more than one target matches.
type matchLevel int

const (
	matchNone matchLevel = iota
	matchFilename
	matchSuffix
	matchExact
)

// pathMarkers are directory names treated as project-root boundaries when
// deriving the path-form candidate for a file.
var pathMarkers = []string{"packages", "src", "include", "lib"}

type matcher interface {
	match(module string) matchLevel
}

// matcherFor picks the matching strategy by file extension: dotted module
// matching for Python, path-suffix matching for everything else.
func matcherFor(filePath string) matcher {
	if strings.HasSuffix(filePath, ".py") {
		return newPythonMatcher(filePath)
	}
	return newPathMatcher(filePath)
}

// pathMatcher matches C-style include paths against a candidate set derived
// from the target file. A .c file also answers to its .h sibling, since
// including "user.h" is how other files depend on user.c.
type pathMatcher struct {
	candidates []string
}

func newPathMatcher(filePath string) *pathMatcher {
	m := &pathMatcher{}
	for _, cand := range candidateSet(filePath) {
		m.candidates = append(m.candidates, cand)
		if strings.HasSuffix(cand, ".c") {
			m.candidates = append(m.candidates, strings.TrimSuffix(cand, ".c")+".h")
		}
	}
	return m
}

// candidateSet computes the strings an include statement might plausibly use
// for filePath: the path suffix from the nearest marker directory if one
// exists, and the bare filename.
func candidateSet(filePath string) []string {
	filePath = strings.ReplaceAll(filePath, "\\", "/")
	parts := strings.Split(strings.Trim(filePath, "/"), "/")

	var candidates []string
	if rel := markerSuffix(parts); rel != "" && strings.Contains(rel, "/") {
		candidates = append(candidates, rel)
	}
	candidates = append(candidates, parts[len(parts)-1])
	return candidates
}

// markerSuffix returns the path suffix starting at the first marker segment.
// "src" itself is dropped from the suffix; the other markers are kept, since
// includes typically spell them out ("include/net/api.h").
func markerSuffix(parts []string) string {
	for i, part := range parts {
		for _, marker := range pathMarkers {
			if part != marker {
				continue
			}
			if marker == "src" {
				if i+1 < len(parts) {
					return strings.Join(parts[i+1:], "/")
				}
				return ""
			}
			return strings.Join(parts[i:], "/")
		}
	}
	return ""
}

func (m *pathMatcher) match(module string) matchLevel {
	module = strings.ReplaceAll(module, "\\", "/")
	best := matchNone
	for _, cand := range m.candidates {
		level := matchOne(module, cand)
		if level > best {
			best = level
		}
	}
	return best
}

func matchOne(module, cand string) matchLevel {
	if module == cand {
		return matchExact
	}
	if strings.Contains(cand, "/") {
		if strings.HasSuffix(module, "/"+cand) || strings.HasSuffix(cand, "/"+module) {
			return matchSuffix
		}
		return matchNone
	}
	// Filename-only candidates may match by basename alone. This is the
	// lossy case: it can conflate two same-named files in different
	// directories, so callers surface it when more than one target matches.
	if path.Base(module) == cand {
		return matchFilename
	}
	return matchNone
}

// pythonMatcher matches dotted import module strings against the dotted
// module name derived from the target file path.
type pythonMatcher struct {
	module string
}

// pythonPathPrefixes are leading path segments that do not contribute to a
// file's importable module name.
var pythonPathPrefixes = map[string]bool{
	"cli": true, "src": true, "lib": true, "python": true,
}

func newPythonMatcher(filePath string) *pythonMatcher {
	return &pythonMatcher{module: fileModuleName(filePath)}
}

// fileModuleName turns "/repo/src/pkg/sub/mod.py" into "pkg.sub.mod".
func fileModuleName(filePath string) string {
	filePath = strings.ReplaceAll(filePath, "\\", "/")
	filePath = strings.TrimSuffix(filePath, ".py")
	parts := strings.Split(strings.Trim(filePath, "/"), "/")

	start := 0
	for i, part := range parts {
		if pythonPathPrefixes[part] {
			start = i + 1
		}
	}
	if start >= len(parts) {
		start = len(parts) - 1
	}
	return strings.Join(parts[start:], ".")
}

func (m *pythonMatcher) match(module string) matchLevel {
	target := m.module
	if target == "" || module == "" {
		return matchNone
	}
	imp := strings.TrimLeft(module, ".")

	if imp == target || module == target {
		return matchExact
	}
	// Importing a parent package reaches the submodule, but only when the
	// parent is specific enough to mean it (two or more segments).
	if strings.HasPrefix(target, imp+".") && strings.Count(imp, ".") >= 1 {
		return matchSuffix
	}
	// Importing a submodule of the target.
	if strings.HasPrefix(imp, target+".") {
		return matchSuffix
	}
	// Relative imports resolve against the importing package, which the
	// graph does not track; match when the target's trailing segments line
	// up with the relative path.
	if strings.HasPrefix(module, ".") && imp != "" && strings.HasSuffix(target, "."+imp) {
		return matchSuffix
	}
	return matchNone
}
