package index

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// defaultIgnorePatterns cover VCS metadata, build outputs, IDE state,
// caches, logs, temp and env files, and bundled artifacts.
var defaultIgnorePatterns = []string{
	".git/",
	".svn/",
	".hg/",
	".quarry/",
	"node_modules/",
	"vendor/",
	"__pycache__/",
	".venv/",
	"venv/",
	"dist/",
	"build/",
	"out/",
	"target/",
	".idea/",
	".vscode/",
	".cache/",
	"coverage/",
	"*.log",
	"*.tmp",
	"*.temp",
	"*.swp",
	".env",
	".env.*",
	"*.min.js",
	"*.min.css",
	"*.bundle.js",
	"*.map",
	"go.sum",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
}

// IgnoreRules matches repository-relative POSIX paths against a merged
// pattern set with gitignore semantics (anchoring, directory patterns,
// globs, negation; last match wins).
type IgnoreRules struct {
	rules []ignoreRule
}

type ignoreRule struct {
	pattern  string
	negate   bool
	dirOnly  bool
	anchored bool
}

// rulesCache holds the effective rules per codebase; reads greatly
// outnumber writes.
var (
	rulesMu    sync.RWMutex
	rulesCache = map[string]*IgnoreRules{}
)

// LoadIgnoreRules merges, for the codebase root: built-in defaults,
// every `.*ignore` file in the root, a global ~/.quarry/.quarryignore,
// CUSTOM_IGNORE_PATTERNS from the environment, and caller-injected
// patterns. The result is cached per codebase.
func LoadIgnoreRules(codebasePath string, extra []string) *IgnoreRules {
	cacheKey := codebasePath + "\x00" + strings.Join(extra, "\x00")

	rulesMu.RLock()
	cached := rulesCache[cacheKey]
	rulesMu.RUnlock()
	if cached != nil {
		return cached
	}

	patterns := append([]string{}, defaultIgnorePatterns...)

	entries, err := os.ReadDir(codebasePath)
	if err == nil {
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasPrefix(name, ".") || !strings.HasSuffix(name, "ignore") {
				continue
			}
			patterns = append(patterns, readIgnoreFile(filepath.Join(codebasePath, name))...)
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		patterns = append(patterns, readIgnoreFile(filepath.Join(home, ".quarry", ".quarryignore"))...)
	}
	if env := os.Getenv("CUSTOM_IGNORE_PATTERNS"); env != "" {
		for _, p := range strings.Split(env, ",") {
			if p = strings.TrimSpace(p); p != "" {
				patterns = append(patterns, p)
			}
		}
	}
	patterns = append(patterns, extra...)

	rules := compileIgnoreRules(patterns)

	rulesMu.Lock()
	rulesCache[cacheKey] = rules
	rulesMu.Unlock()
	return rules
}

func readIgnoreFile(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			patterns = append(patterns, line)
		}
	}
	return patterns
}

func compileIgnoreRules(patterns []string) *IgnoreRules {
	ir := &IgnoreRules{}
	for _, p := range patterns {
		r := ignoreRule{pattern: p}
		if strings.HasPrefix(r.pattern, "!") {
			r.negate = true
			r.pattern = r.pattern[1:]
		}
		if strings.HasSuffix(r.pattern, "/") {
			r.dirOnly = true
			r.pattern = strings.TrimSuffix(r.pattern, "/")
		}
		if strings.HasPrefix(r.pattern, "/") {
			r.anchored = true
			r.pattern = r.pattern[1:]
		} else if strings.Contains(r.pattern, "/") {
			r.anchored = true
		}
		if r.pattern == "" {
			continue
		}
		ir.rules = append(ir.rules, r)
	}
	return ir
}

// Ignored reports whether the POSIX-relative path is excluded. The last
// matching rule decides, so negations can re-include files.
func (ir *IgnoreRules) Ignored(relPath string) bool {
	relPath = strings.TrimPrefix(filepath.ToSlash(relPath), "./")
	if relPath == "" || relPath == "." {
		return false
	}

	ignored := false
	for _, r := range ir.rules {
		if r.match(relPath) {
			ignored = !r.negate
		}
	}
	return ignored
}

func (r ignoreRule) match(relPath string) bool {
	if r.anchored {
		if matchGlob(r.pattern, relPath) {
			return true
		}
		// A directory pattern also matches everything beneath it.
		return matchGlob(r.pattern+"/**", relPath)
	}

	// Unanchored: match any path component. A dir-only pattern may not
	// match the final component, which is the file itself.
	parts := strings.Split(relPath, "/")
	for i, part := range parts {
		if ok, _ := filepath.Match(r.pattern, part); ok {
			if r.dirOnly && i == len(parts)-1 {
				continue
			}
			return true
		}
	}
	return false
}

// matchGlob matches a slash-separated glob supporting ** across
// segments and * within one.
func matchGlob(pattern, path string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(path, "/"))
}

func matchSegments(pattern, path []string) bool {
	if len(pattern) == 0 {
		return len(path) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(path); i++ {
			if matchSegments(pattern[1:], path[i:]) {
				return true
			}
		}
		return false
	}
	if len(path) == 0 {
		return false
	}
	if ok, _ := filepath.Match(pattern[0], path[0]); !ok {
		return false
	}
	return matchSegments(pattern[1:], path[1:])
}
