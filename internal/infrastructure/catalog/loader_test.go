package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"copywriter/internal/domain/entity"
)

func TestDefault(t *testing.T) {
	cat, err := Default()
	if err != nil {
		t.Fatalf("Default(): %v", err)
	}
	if len(cat.Formulas) < MinFormulas {
		t.Errorf("expected at least %d formulas, got %d", MinFormulas, len(cat.Formulas))
	}
	if len(cat.Criteria) != 5 {
		t.Fatalf("expected 5 criteria, got %d", len(cat.Criteria))
	}
	for i, id := range entity.CriterionIDs {
		if cat.Criteria[i].ID != id {
			t.Errorf("criteria[%d] = %q, want %q", i, cat.Criteria[i].ID, id)
		}
	}
	for _, id := range []string{"AIDA", "PAS"} {
		if _, ok := cat.Formula(id); !ok {
			t.Errorf("default formula %s missing", id)
		}
	}
}

func TestDefault_NamesAreUniqueIgnoringCase(t *testing.T) {
	cat, err := Parse(defaultCatalog, "default.hcl")
	if err != nil {
		t.Fatalf("Parse(default.hcl): %v", err)
	}
	if diags := Validate(cat, "default.hcl"); diags.HasErrors() {
		t.Fatalf("default catalog has diagnostics: %s", summaries(diags))
	}
	owners := map[string]string{}
	for _, f := range cat.Formulas {
		for _, n := range append([]string{f.ID}, f.Aliases...) {
			key := strings.ToLower(n)
			if owner, dup := owners[key]; dup {
				t.Errorf("name %q of %s collides with %s", n, f.ID, owner)
			}
			owners[key] = f.ID
		}
	}
}

func TestParse_AliasDifferingOnlyInCase(t *testing.T) {
	src := strings.Replace(string(defaultCatalog), `aliases = ["A.I.D.A"]`, `aliases = ["A.I.D.A", "a.i.d.a"]`, 1)
	if src == string(defaultCatalog) {
		t.Fatal("default catalog no longer carries the AIDA alias")
	}
	_, err := Parse([]byte(src), "case.hcl")
	if err == nil || !strings.Contains(err.Error(), `"a.i.d.a" of AIDA already used by AIDA`) {
		t.Fatalf("expected case-insensitive duplicate error, got %v", err)
	}
}

func TestDefault_GuidanceIsTrimmed(t *testing.T) {
	cat, err := Default()
	if err != nil {
		t.Fatalf("Default(): %v", err)
	}
	f, ok := cat.Formula("aida")
	if !ok {
		t.Fatal("AIDA not found case-insensitively")
	}
	if !strings.HasPrefix(f.Guidance, "AIDA stands for") {
		t.Errorf("unexpected guidance start: %q", f.Guidance[:20])
	}
	if strings.HasSuffix(f.Guidance, "\n") {
		t.Error("guidance should not end with a newline")
	}
}

func TestCatalog_AliasLookup(t *testing.T) {
	cat, err := Default()
	if err != nil {
		t.Fatalf("Default(): %v", err)
	}
	tests := []struct {
		name string
		want string
	}{
		{"4Ps", "4Ps"},
		{"fourps", "4Ps"},
		{" FOURCs ", "4Cs"},
		{"quest", "QUEST"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, ok := cat.Formula(tc.name)
			if !ok {
				t.Fatalf("Formula(%q) not found", tc.name)
			}
			if f.ID != tc.want {
				t.Errorf("Formula(%q).ID = %q, want %q", tc.name, f.ID, tc.want)
			}
		})
	}
	if _, ok := cat.Formula("HERO"); ok {
		t.Error("unknown formula should not resolve")
	}
}

func TestLoad_EmptyPathUsesDefault(t *testing.T) {
	cat, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if len(cat.Formulas) == 0 {
		t.Error("expected formulas from embedded catalog")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.hcl"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParse_RejectsSmallCatalog(t *testing.T) {
	src := `
formula "AIDA" {
  name = "Awareness-Interest-Desire-Action"
  guidance = "Do it."
}
criterion "clarity" {
  title = "Clarity"
  focus = "f"
  checklist = "c"
}
`
	_, err := Parse([]byte(src), "small.hcl")
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "at least 10 required") {
		t.Errorf("expected formula count error, got %v", err)
	}
	if !strings.Contains(msg, "criterion storytelling is missing") {
		t.Errorf("expected missing criterion error, got %v", err)
	}
}

func TestParse_SyntaxError(t *testing.T) {
	_, err := Parse([]byte(`formula "AIDA" {`), "broken.hcl")
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "parse catalog") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParse_DuplicateAlias(t *testing.T) {
	src, err := os.ReadFile("default.hcl")
	if err != nil {
		t.Fatalf("read default: %v", err)
	}
	dup := string(src) + `
formula "AIDA2" {
  name = "dup"
  aliases = ["aida"]
  guidance = "x"
}
`
	_, err = Parse([]byte(dup), "dup.hcl")
	if err == nil || !strings.Contains(err.Error(), "already used by AIDA") {
		t.Fatalf("expected duplicate alias error, got %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.hcl")
	if err := os.WriteFile(path, defaultCatalog, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cat, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cat.FormulaIDs()) != 10 {
		t.Errorf("expected 10 formula ids, got %v", cat.FormulaIDs())
	}
}

func TestLoad_PatternMergesFiles(t *testing.T) {
	dir := t.TempDir()
	formulas, criteria := splitDefault(t)
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "nested", "formulas.hcl"), []byte(formulas), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "criteria.hcl"), []byte(criteria), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# not hcl"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cat, err := Load(filepath.Join(dir, "**", "*.hcl"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cat.Formulas) != 10 || len(cat.Criteria) != 5 {
		t.Errorf("got %d formulas, %d criteria", len(cat.Formulas), len(cat.Criteria))
	}
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.hcl", "a.hcl", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	tests := []struct {
		name    string
		path    string
		want    []string
		wantErr bool
	}{
		{"plain path", filepath.Join(dir, "x.hcl"), []string{filepath.Join(dir, "x.hcl")}, false},
		{"sorted matches", filepath.Join(dir, "*.hcl"), []string{filepath.Join(dir, "a.hcl"), filepath.Join(dir, "b.hcl")}, false},
		{"no matches", filepath.Join(dir, "*.yaml"), nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Files(tc.path)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if strings.Join(got, ",") != strings.Join(tc.want, ",") {
				t.Errorf("Files = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLoad_StripsByteOrderMark(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bom.hcl")
	src := append([]byte{0xEF, 0xBB, 0xBF}, defaultCatalog...)
	if err := os.WriteFile(path, src, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load with BOM: %v", err)
	}
}
