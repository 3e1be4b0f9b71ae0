package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"copywriter/internal/domain/entity"
)

//go:embed default.hcl
var defaultCatalog []byte

// MinFormulas is the smallest catalog the selector is allowed to choose from.
const MinFormulas = 10

type catalogFile struct {
	Formulas []formulaBlock   `hcl:"formula,block"`
	Criteria []criterionBlock `hcl:"criterion,block"`
}

type formulaBlock struct {
	ID       string   `hcl:"id,label"`
	Name     string   `hcl:"name"`
	Aliases  []string `hcl:"aliases,optional"`
	Guidance string   `hcl:"guidance"`
}

type criterionBlock struct {
	ID        string `hcl:"id,label"`
	Title     string `hcl:"title"`
	Focus     string `hcl:"focus"`
	Checklist string `hcl:"checklist"`
}

// Default returns the embedded catalog.
func Default() (*entity.Catalog, error) {
	return Parse(defaultCatalog, "default.hcl")
}

// Load reads a catalog; an empty path selects the embedded default. A path with
// glob metacharacters ("catalogs/**/*.hcl") merges every matching file.
func Load(path string) (*entity.Catalog, error) {
	if path == "" {
		return Default()
	}
	files, err := Files(path)
	if err != nil {
		return nil, err
	}

	parser := hclparse.NewParser()
	var doc catalogFile
	for _, file := range files {
		src, err := readSource(file)
		if err != nil {
			return nil, err
		}
		part, err := decode(parser, src, filepath.Base(file))
		if err != nil {
			return nil, err
		}
		doc.Formulas = append(doc.Formulas, part.Formulas...)
		doc.Criteria = append(doc.Criteria, part.Criteria...)
	}
	return build(doc, path)
}

// Files resolves path to the catalog files it names, sorted.
func Files(path string) ([]string, error) {
	if !isPattern(path) {
		return []string{path}, nil
	}
	matches, err := doublestar.FilepathGlob(path, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("expand catalog pattern %s: %w", path, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("catalog pattern %s matches no files", path)
	}
	sort.Strings(matches)
	return matches, nil
}

func isPattern(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}

// readSource returns the file as UTF-8 without a byte order mark. Editors on
// some platforms save UTF-16 or BOM-prefixed UTF-8, which the HCL scanner rejects.
func readSource(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	src, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
	if err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	return src, nil
}

// Parse decodes and validates catalog source.
func Parse(src []byte, filename string) (*entity.Catalog, error) {
	doc, err := decode(hclparse.NewParser(), src, filename)
	if err != nil {
		return nil, err
	}
	return build(doc, filename)
}

func decode(parser *hclparse.Parser, src []byte, filename string) (catalogFile, error) {
	var doc catalogFile
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return doc, fmt.Errorf("parse catalog: %w", diags)
	}
	if diags := gohcl.DecodeBody(file.Body, nil, &doc); diags.HasErrors() {
		return doc, fmt.Errorf("decode catalog: %w", diags)
	}
	return doc, nil
}

func build(doc catalogFile, name string) (*entity.Catalog, error) {
	cat := &entity.Catalog{}
	for _, f := range doc.Formulas {
		cat.Formulas = append(cat.Formulas, entity.Formula{
			ID:       strings.TrimSpace(f.ID),
			Name:     strings.TrimSpace(f.Name),
			Aliases:  f.Aliases,
			Guidance: strings.TrimSpace(f.Guidance),
		})
	}
	for _, c := range doc.Criteria {
		cat.Criteria = append(cat.Criteria, entity.Criterion{
			ID:        strings.ToLower(strings.TrimSpace(c.ID)),
			Title:     strings.TrimSpace(c.Title),
			Focus:     strings.TrimSpace(c.Focus),
			Checklist: strings.TrimSpace(c.Checklist),
		})
	}

	if diags := Validate(cat, name); diags.HasErrors() {
		return nil, fmt.Errorf("invalid catalog %s: %s", name, summaries(diags))
	}
	return cat, nil
}

func summaries(diags hcl.Diagnostics) string {
	out := make([]string, 0, len(diags))
	for _, d := range diags {
		out = append(out, d.Summary)
	}
	return strings.Join(out, "; ")
}

// Validate checks the structural rules every catalog must satisfy.
func Validate(cat *entity.Catalog, filename string) hcl.Diagnostics {
	var diags hcl.Diagnostics
	fail := func(format string, args ...any) {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  fmt.Sprintf(format, args...),
			Detail:   filename,
		})
	}

	if len(cat.Formulas) < MinFormulas {
		fail("catalog defines %d formulas, at least %d required", len(cat.Formulas), MinFormulas)
	}

	names := map[string]string{}
	for _, f := range cat.Formulas {
		if f.ID == "" {
			fail("formula with empty id")
			continue
		}
		if strings.TrimSpace(f.Guidance) == "" {
			fail("formula %s has no guidance", f.ID)
		}
		for _, n := range append([]string{f.ID}, f.Aliases...) {
			key := strings.ToLower(strings.TrimSpace(n))
			if owner, dup := names[key]; dup {
				fail("formula name %q of %s already used by %s", n, f.ID, owner)
				continue
			}
			names[key] = f.ID
		}
	}

	if len(cat.Criteria) != len(entity.CriterionIDs) {
		fail("catalog defines %d criteria, exactly %d required", len(cat.Criteria), len(entity.CriterionIDs))
	}
	seen := map[string]bool{}
	for _, c := range cat.Criteria {
		if seen[c.ID] {
			fail("criterion %s defined twice", c.ID)
		}
		seen[c.ID] = true
		if strings.TrimSpace(c.Checklist) == "" {
			fail("criterion %s has no checklist", c.ID)
		}
	}
	for _, id := range entity.CriterionIDs {
		if !seen[id] {
			fail("criterion %s is missing", id)
		}
	}

	return diags
}
