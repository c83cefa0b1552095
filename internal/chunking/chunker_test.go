package chunking

import (
	"strings"
	"testing"
)

func TestValidateParams(t *testing.T) {
	tests := []struct {
		name     string
		maxChars int
		overlap  int
		wantErr  bool
	}{
		{"valid", 1200, 150, false},
		{"zero overlap", 100, 0, false},
		{"overlap equals max", 100, 100, true},
		{"overlap exceeds max", 100, 150, true},
		{"zero max", 0, 0, true},
		{"negative overlap", 100, -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParams(tt.maxChars, tt.overlap)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateParams(%d, %d) error = %v, wantErr %v", tt.maxChars, tt.overlap, err, tt.wantErr)
			}
		})
	}
}

func TestSplitEmptyInput(t *testing.T) {
	if got := Split("", 100, 10); len(got) != 0 {
		t.Errorf("Split(empty) = %v, want empty", got)
	}
	if got := Split("   \n\n  \n\n ", 100, 10); len(got) != 0 {
		t.Errorf("Split(whitespace) = %v, want empty", got)
	}
}

func TestSplitShortParagraphsVerbatim(t *testing.T) {
	text := "first paragraph\n\nsecond paragraph\n\n\n\nthird"
	got := Split(text, 100, 10)
	want := []string{"first paragraph", "second paragraph", "third"}
	if len(got) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitLongParagraphWindows(t *testing.T) {
	para := strings.Repeat("a", 250)
	got := Split(para, 100, 20)

	for i, chunk := range got {
		if len([]rune(chunk)) > 100 {
			t.Errorf("chunk %d length %d exceeds max 100", i, len([]rune(chunk)))
		}
	}

	// Windows advance by max-overlap: starts at 0, 80, 160.
	if len(got) != 3 {
		t.Fatalf("got %d chunks, want 3", len(got))
	}
	if len(got[0]) != 100 || len(got[1]) != 100 || len(got[2]) != 90 {
		t.Errorf("chunk lengths = %d,%d,%d", len(got[0]), len(got[1]), len(got[2]))
	}
}

func TestSplitOverlapContent(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString("0123456789")
	}
	got := Split(b.String(), 100, 25)

	for i := 1; i < len(got); i++ {
		prevTail := got[i-1][len(got[i-1])-25:]
		if !strings.HasPrefix(got[i], prevTail) {
			t.Errorf("chunk %d does not start with the previous chunk's overlap", i)
		}
	}
}

func TestSplitMixedParagraphs(t *testing.T) {
	text := "short one\n\n" + strings.Repeat("x", 150)
	got := Split(text, 100, 10)
	if len(got) != 3 {
		t.Fatalf("got %d chunks, want 3", len(got))
	}
	if got[0] != "short one" {
		t.Errorf("first chunk = %q", got[0])
	}
}
