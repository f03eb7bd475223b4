package qgen

import (
	"strings"
	"testing"
)

func TestBuildUserPrompt(t *testing.T) {
	prompt := buildUserPrompt("My essay about channels.")
	if !strings.Contains(prompt, "My essay about channels.") {
		t.Error("prompt should contain the submission content")
	}
	if !strings.Contains(prompt, "STUDENT SUBMISSION:") {
		t.Error("prompt should label the submission content")
	}
}

func TestBuildUserPromptTruncatesLongContent(t *testing.T) {
	long := strings.Repeat("a", maxContentChars+500)
	prompt := buildUserPrompt(long)
	if !strings.Contains(prompt, "[...truncated]") {
		t.Error("long content should be truncated")
	}
	if strings.Contains(prompt, strings.Repeat("a", maxContentChars+1)) {
		t.Error("truncated content exceeds the cap")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short stays", "abc", 10, "abc"},
		{"exact stays", "abc", 3, "abc"},
		{"long cut", "abcdef", 3, "abc\n[...truncated]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.in, tt.n); got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}
