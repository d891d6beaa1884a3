package chunker

import (
	"strings"
	"testing"
)

// rebuild reconstructs the original text from overlapping chunks.
func rebuild(chunks []Chunk, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		runes := []rune(c.Text)
		if i == 0 {
			b.WriteString(c.Text)
			continue
		}
		b.WriteString(string(runes[overlap:]))
	}
	return b.String()
}

func Test_Split_InvalidConfig(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		size    int
		overlap int
	}{
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 150},
		{"zero size", 0, 0},
		{"negative overlap", 100, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Split("some text", "a.txt", tc.size, tc.overlap); err != ErrInvalidConfig {
				t.Errorf("Split(size=%d, overlap=%d) err = %v, want ErrInvalidConfig", tc.size, tc.overlap, err)
			}
		})
	}
}

func Test_Split_EmptyText(t *testing.T) {
	t.Parallel()
	for _, text := range []string{"", "   ", "\n\n\t"} {
		chunks, err := Split(text, "a.txt", 100, 10)
		if err != nil {
			t.Fatalf("Split(%q) unexpected error: %v", text, err)
		}
		if len(chunks) != 0 {
			t.Errorf("Split(%q) = %d chunks, want 0", text, len(chunks))
		}
	}
}

func Test_Split_ExactBoundaryArithmetic(t *testing.T) {
	t.Parallel()
	// 2500 uniform characters with size=1000, overlap=400 must produce
	// windows 0–1000, 600–1600, 1200–2200, 1800–2500.
	text := strings.Repeat("a", 2500)
	chunks, err := Split(text, "doc.pdf", 1000, 400)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4", len(chunks))
	}
	bounds := [][2]int{{0, 1000}, {600, 1600}, {1200, 2200}, {1800, 2500}}
	for i, c := range chunks {
		want := text[bounds[i][0]:bounds[i][1]]
		if c.Text != want {
			t.Errorf("chunk %d: got %d runes starting %q..., want window %v", i, len(c.Text), c.Text[:10], bounds[i])
		}
		if c.Index != i {
			t.Errorf("chunk %d: Index = %d", i, c.Index)
		}
		if c.Total != 4 {
			t.Errorf("chunk %d: Total = %d, want 4", i, c.Total)
		}
		if c.Source != "doc.pdf" {
			t.Errorf("chunk %d: Source = %q", i, c.Source)
		}
	}
}

func Test_Split_Reconstruction(t *testing.T) {
	t.Parallel()
	texts := []string{
		strings.Repeat("z", 3001),
		"First paragraph about gophers.\n\nSecond paragraph about vectors.\n\n" + strings.Repeat("lorem ipsum dolor sit amet ", 80),
		strings.Repeat("word boundary split test ", 50),
	}
	configs := [][2]int{{100, 0}, {128, 32}, {512, 64}, {1000, 400}, {50, 49}}
	for _, text := range texts {
		for _, cfg := range configs {
			size, overlap := cfg[0], cfg[1]
			chunks, err := Split(text, "t.txt", size, overlap)
			if err != nil {
				t.Fatalf("Split(size=%d, overlap=%d) failed: %v", size, overlap, err)
			}
			if got := rebuild(chunks, overlap); got != text {
				t.Errorf("size=%d overlap=%d: reconstruction mismatch (got %d runes, want %d)", size, overlap, len(got), len(text))
			}
			for i, c := range chunks {
				if i < len(chunks)-1 && len([]rune(c.Text)) > size {
					t.Errorf("size=%d overlap=%d: chunk %d has %d runes, exceeds size", size, overlap, i, len([]rune(c.Text)))
				}
			}
		}
	}
}

func Test_Split_PrefersParagraphBreak(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("x", 500) + "\n\n" + strings.Repeat("y", 600)
	chunks, err := Split(text, "t.txt", 1000, 100)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if !strings.HasSuffix(chunks[0].Text, "\n\n") {
		t.Errorf("first chunk should end at the paragraph break, got suffix %q", chunks[0].Text[len(chunks[0].Text)-5:])
	}
}

func Test_Split_PrefersWordBoundary(t *testing.T) {
	t.Parallel()
	chunks, err := Split("aaaa bbbb cccc dddd", "t.txt", 10, 2)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(chunks))
	}
	if !strings.HasSuffix(chunks[0].Text, " ") {
		t.Errorf("first chunk should end on a word boundary, got %q", chunks[0].Text)
	}
}

func Test_Split_SingleChunk(t *testing.T) {
	t.Parallel()
	chunks, err := Split("short", "t.txt", 100, 10)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Text != "short" || chunks[0].Total != 1 {
		t.Errorf("got %+v, want single chunk covering the whole text", chunks)
	}
}
