package query

import "regexp"

// abbreviation is one whole-word rewrite rule. Rules apply in table
// order so preprocessing stays deterministic.
type abbreviation struct {
	short string
	full  string
	re    *regexp.Regexp
}

func mustAbbrev(short, full string) abbreviation {
	return abbreviation{
		short: short,
		full:  full,
		re:    regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(short) + `\b`),
	}
}

var abbreviations = []abbreviation{
	mustAbbrev("js", "javascript"),
	mustAbbrev("ts", "typescript"),
	mustAbbrev("py", "python"),
	mustAbbrev("fn", "function"),
	mustAbbrev("var", "variable"),
	mustAbbrev("api", "API"),
	mustAbbrev("db", "database"),
	mustAbbrev("auth", "authentication"),
	mustAbbrev("async", "asynchronous"),
	mustAbbrev("config", "configuration"),
	mustAbbrev("util", "utility"),
	mustAbbrev("req", "request"),
	mustAbbrev("res", "response"),
	mustAbbrev("err", "error"),
	mustAbbrev("ctx", "context"),
}

// concept maps a natural-language concept to the technical terms that
// usually express it in code.
type concept struct {
	key   string
	terms []string
}

var concepts = []concept{
	{"error handling", []string{"try catch", "exception", "error", "throw", "catch"}},
	{"database connection", []string{"db connect", "database", "connection", "connect"}},
	{"configuration", []string{"config", "settings", "options", "setup"}},
	{"authentication", []string{"auth", "login", "signin", "token", "jwt"}},
	{"async processing", []string{"async", "await", "promise", "thread", "concurrent"}},
	{"file system", []string{"fs", "file", "directory", "folder", "path"}},
	{"logging", []string{"log", "logger", "debug", "trace"}},
	{"data processing", []string{"pandas", "numpy", "dataframe", "array", "transform"}},
	{"web development", []string{"html", "css", "javascript", "react", "vue"}},
	{"machine learning", []string{"ml", "model", "training", "neural", "tensorflow"}},
	{"data visualization", []string{"plot", "chart", "graph", "matplotlib", "visualization"}},
	{"data analysis", []string{"analysis", "statistics", "correlation", "regression"}},
	{"testing", []string{"test", "unittest", "pytest", "mock", "assert"}},
	{"security", []string{"security", "encrypt", "decrypt", "hash", "ssl"}},
	{"performance optimization", []string{"optimize", "performance", "speed", "memory"}},
	{"database optimization", []string{"index", "query optimization", "sql tuning"}},
}

// languagePattern associates a language name with the query regexes
// that suggest it.
type languagePattern struct {
	name     string
	patterns []*regexp.Regexp
}

func langPatterns(name string, exprs ...string) languagePattern {
	lp := languagePattern{name: name}
	for _, e := range exprs {
		lp.patterns = append(lp.patterns, regexp.MustCompile(`(?i)`+e))
	}
	return lp
}

var languagePatterns = []languagePattern{
	langPatterns("python", `\bpython\b`, `\bdjango\b`, `\bflask\b`, `\bpandas\b`, `\bnumpy\b`),
	langPatterns("javascript", `\bjavascript\b`, `\bnode(?:js)?\b`, `\breact\b`, `\bvue\b`, `\bexpress\b`),
	langPatterns("typescript", `\btypescript\b`, `\bangular\b`, `\bnest(?:js)?\b`),
	langPatterns("java", `\bjava\b`, `\bspring\b`, `\bmaven\b`),
	langPatterns("cpp", `c\+\+`, `\bcpp\b`),
	langPatterns("go", `\bgolang\b`, `\bgoroutine\b`),
	langPatterns("rust", `\brust\b`, `\bcargo\b`),
	langPatterns("php", `\bphp\b`, `\blaravel\b`),
	langPatterns("ruby", `\bruby\b`, `\brails\b`),
	langPatterns("swift", `\bswift\b`, `\bswiftui\b`),
	langPatterns("kotlin", `\bkotlin\b`, `\bandroid\b`),
	langPatterns("scala", `\bscala\b`, `\bspark\b`),
	langPatterns("csharp", `c#`, `\bcsharp\b`, `\bdotnet\b`, `\.net\b`),
}

const filenameExts = `ts|tsx|js|jsx|py|java|cpp|cc|c|h|hpp|cs|go|rs|php|rb|swift|kt|scala|m|mm|md|json|yaml|yml`

// Tried in order: path with directories, single dir + filename, bare
// filename. Later, broader regexes re-match parts of the same text; only
// identical match strings are deduplicated, so a path such as
// "src/auth/login.ts" also yields "auth/login.ts" and "login.ts".
var filenameRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?:[\w.-]+/){2,}[\w.-]+\.(?:` + filenameExts + `)\b`),
	regexp.MustCompile(`[\w.-]+/[\w.-]+\.(?:` + filenameExts + `)\b`),
	regexp.MustCompile(`\b[\w-]+\.(?:` + filenameExts + `)\b`),
}

var implementationCues = []string{"how to", "implement", "create", "build", "write"}

var codeDefinitionRe = regexp.MustCompile(`\b(async|def|class|function)\s+\w+`)

var camelBoundaryRe = regexp.MustCompile(`[a-z][A-Z]`)
