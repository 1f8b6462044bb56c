package pagefetch

import (
	"strings"
	"testing"
)

func TestRegexExtractor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "tags become spaces",
			in:   "<b>bold</b>",
			want: " bold ",
		},
		{
			name: "script removed across newlines",
			in:   "a<script>\nalert(1)\n</script>b",
			want: "ab",
		},
		{
			name: "style removed case-insensitively",
			in:   "a<STYLE media=\"x\">p{}</Style>b",
			want: "ab",
		},
		{
			name: "shortest script match",
			in:   "<script>1</script>keep<script>2</script>",
			want: "keep",
		},
		{
			name: "three or more whitespace collapse to newline",
			in:   "a   b\n\n\nc  d",
			want: "a\nb\nc  d",
		},
		{
			name: "nbsp run collapses",
			in:   "<td>Kohli</td>\u00a0\u00a0\u00a0\u00a0<td>82</td>",
			want: " Kohli\n82 ",
		},
		{
			name: "mixed unicode spaces collapse",
			in:   "a\u2003\v\u3000\ufeffb\u00a0\u00a0c",
			want: "a\nb\u00a0\u00a0c",
		},
		{
			name: "adjacent tags collapse",
			in:   "<td>1</td>\n<td>2</td>",
			want: " 1\n2 ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RegexExtractor{}.Extract([]byte(tt.in))
			if err != nil {
				t.Fatalf("Extract() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Extract(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTokenizerExtractor(t *testing.T) {
	t.Parallel()

	in := `<html><head><title>Scores</title><script>var s = "</p>";</script></head>
<body><noscript>enable js</noscript><p>Home &amp; Away</p><br/><p>2 - 0</p></body></html>`

	got, err := TokenizerExtractor{}.Extract([]byte(in))
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	for _, want := range []string{"Scores", "Home & Away", "2 - 0"} {
		if !strings.Contains(got, want) {
			t.Errorf("Extract() = %q, missing %q", got, want)
		}
	}
	for _, banned := range []string{"var s", "enable js", "<"} {
		if strings.Contains(got, banned) {
			t.Errorf("Extract() = %q, should not contain %q", got, banned)
		}
	}
}

func TestTokenizerExtractor_NBSPEntities(t *testing.T) {
	t.Parallel()

	got, err := TokenizerExtractor{}.Extract([]byte(`<td>Kohli</td>&nbsp;&nbsp;&nbsp;<td>82</td>`))
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if got != " Kohli\n82 " {
		t.Errorf("Extract() = %q, want %q", got, " Kohli\n82 ")
	}
}

func TestExtractorByName(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "regex", "tokenizer"} {
		if _, err := ExtractorByName(name); err != nil {
			t.Errorf("ExtractorByName(%q) error: %v", name, err)
		}
	}
	if _, err := ExtractorByName("readability"); err == nil {
		t.Error("ExtractorByName(readability) should fail")
	}
}
