package prompts

import (
	"strings"
	"testing"
)

func TestVideoChunkNotesPrompt(t *testing.T) {
	got := VideoChunkNotesPrompt("What does Teal'c say?", "Teal'c: Indeed.", 2, 5)
	for _, want := range []string{
		"part 2 of 5",
		"Question: What does Teal'c say?",
		"Teal'c: Indeed.",
		"NOTHING RELEVANT",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestVideoAnswerPrompt(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"with title", "Birds of the Antarctic", `"Birds of the Antarctic"`},
		{"blank title", "  ", `"untitled"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VideoAnswerPrompt(tt.title, "How many species?", "three species")
			if !strings.Contains(got, tt.want) || !strings.Contains(got, "three species") {
				t.Errorf("prompt = %q", got)
			}
		})
	}
}

func TestImageQuestion(t *testing.T) {
	if got := ImageQuestion(""); got != DescribeImage {
		t.Errorf("ImageQuestion(\"\") = %q", got)
	}
	got := ImageQuestion("Which move wins for black?")
	if !strings.HasPrefix(got, DescribeImage) || !strings.HasSuffix(got, "Which move wins for black?") {
		t.Errorf("ImageQuestion = %q", got)
	}
}
