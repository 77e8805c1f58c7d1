package store

import "testing"

func TestParseFilter_Empty(t *testing.T) {
	f, err := parseFilter("")
	if err != nil || f != nil {
		t.Errorf("empty expression should parse to nil, got %v, %v", f, err)
	}
	if !f.matches(&VectorDocument{RelativePath: "x"}) {
		t.Error("nil filter must match everything")
	}
}

func TestParseFilter_Equality(t *testing.T) {
	f, err := parseFilter(`relative_path == "src/main.go"`)
	if err != nil {
		t.Fatal(err)
	}
	if f.field != "relative_path" || f.value != "src/main.go" {
		t.Errorf("parsed %q = %q", f.field, f.value)
	}
	if !f.matches(&VectorDocument{RelativePath: "src/main.go"}) {
		t.Error("matching document rejected")
	}
	if f.matches(&VectorDocument{RelativePath: "src/other.go"}) {
		t.Error("non-matching document accepted")
	}
}

func TestParseFilter_EscapedBackslashes(t *testing.T) {
	f, err := parseFilter(PathFilter(`src\win\path.cs`))
	if err != nil {
		t.Fatal(err)
	}
	if f.value != `src\win\path.cs` {
		t.Errorf("backslashes should round-trip, got %q", f.value)
	}
}

func TestParseFilter_MetadataField(t *testing.T) {
	f, err := parseFilter(`language == "go"`)
	if err != nil {
		t.Fatal(err)
	}
	doc := &VectorDocument{Metadata: map[string]string{"language": "go"}}
	if !f.matches(doc) {
		t.Error("metadata field should match")
	}
}

func TestParseFilter_Unsupported(t *testing.T) {
	for _, expr := range []string{
		`relative_path != "x"`,
		`start_line > 3`,
		`relative_path == unquoted`,
	} {
		if _, err := parseFilter(expr); err == nil {
			t.Errorf("expected error for %q", expr)
		}
	}
}

func TestRRFFuse(t *testing.T) {
	a := SearchResult{RelativePath: "a.go", StartLine: 1, EndLine: 2}
	b := SearchResult{RelativePath: "b.go", StartLine: 1, EndLine: 2}
	c := SearchResult{RelativePath: "c.go", StartLine: 1, EndLine: 2}

	dense := []SearchResult{a, b, c}
	sparse := []SearchResult{b, c}

	fused := rrfFuse([][]SearchResult{dense, sparse}, 100, 10)
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused results, got %d", len(fused))
	}
	// b: 1/102 + 1/101 beats a: 1/101 and c: 1/103 + 1/102.
	if fused[0].RelativePath != "b.go" {
		t.Errorf("doc present in both lists should rank first, got %s", fused[0].RelativePath)
	}
	for i := 1; i < len(fused); i++ {
		if fused[i].Score > fused[i-1].Score {
			t.Error("fused results must be sorted by score descending")
		}
	}
}

func TestRRFFuse_Limit(t *testing.T) {
	var list []SearchResult
	for i := 0; i < 10; i++ {
		list = append(list, SearchResult{RelativePath: "f.go", StartLine: i, EndLine: i})
	}
	fused := rrfFuse([][]SearchResult{list}, 100, 4)
	if len(fused) != 4 {
		t.Errorf("expected limit 4, got %d", len(fused))
	}
}
