package render

import (
	"strings"
	"testing"
)

func TestHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"heading and emphasis", "## AIDA draft\n\n**Stop scrolling.**", []string{"<h2>AIDA draft</h2>", "<strong>Stop scrolling.</strong>"}},
		{"list", "- one\n- two", []string{"<ul>", "<li>one</li>"}},
		{"gfm strikethrough", "~~old~~ new", []string{"<del>old</del>"}},
		{"hard wraps", "line one\nline two", []string{"line one<br>"}},
		{"raw html is not passed through", "<script>alert(1)</script>", []string{"<!-- raw HTML omitted -->"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := HTML(tc.in)
			if err != nil {
				t.Fatalf("HTML: %v", err)
			}
			for _, w := range tc.want {
				if !strings.Contains(got, w) {
					t.Errorf("HTML(%q) = %q, missing %q", tc.in, got, w)
				}
			}
		})
	}
}

func TestPage(t *testing.T) {
	got := Page("PAS <draft>", "<p>x</p>\n")
	if !strings.Contains(got, "<title>PAS &lt;draft&gt;</title>") || !strings.Contains(got, "<p>x</p>") {
		t.Errorf("Page = %q", got)
	}
}
