package channel

import (
	"strings"
	"testing"
)

func TestRenderMarkdown(t *testing.T) {
	cases := []struct {
		in      string
		want    []string
		without []string
	}{
		{
			in:      "this is **bold** text",
			want:    []string{ansiBold + "bold" + ansiReset},
			without: []string{"**"},
		},
		{
			in:      "some *emphasis* here",
			want:    []string{ansiItalic + "emphasis" + ansiReset},
			without: []string{"*emphasis*"},
		},
		{
			in:      "run `go version` first",
			want:    []string{ansiCyan + "go version" + ansiReset},
			without: []string{"`"},
		},
		{
			in:   "see [the docs](https://example.com) for more",
			want: []string{"the docs (https://example.com)"},
		},
		{
			in:      "# Heading\nbody",
			want:    []string{ansiBold + "Heading" + ansiReset, "body"},
			without: []string{"#"},
		},
	}
	for _, tc := range cases {
		got := renderMarkdown(tc.in)
		for _, want := range tc.want {
			if !strings.Contains(got, want) {
				t.Errorf("renderMarkdown(%q) = %q, missing %q", tc.in, got, want)
			}
		}
		for _, bad := range tc.without {
			if strings.Contains(got, bad) {
				t.Errorf("renderMarkdown(%q) = %q, kept %q", tc.in, got, bad)
			}
		}
	}
}

func TestRenderMarkdownCodeBlock(t *testing.T) {
	got := renderMarkdown("before\n```\nfmt.Println(\"hi\")\n```\nafter")
	if strings.Contains(got, "```") {
		t.Fatalf("fence left in output: %q", got)
	}
	if !strings.Contains(got, ansiCyan) {
		t.Fatalf("code block not colored: %q", got)
	}
}

func TestMimeFromExt(t *testing.T) {
	cases := map[string]string{
		"photo.PNG":  "image/png",
		"clip.jpeg":  "image/jpeg",
		"song.mp3":   "audio/mpeg",
		"voice.ogg":  "audio/ogg",
		"notes.md":   "text/plain",
		"paper.pdf":  "application/pdf",
		"data.blob":  "application/octet-stream",
		"no-ext":     "application/octet-stream",
	}
	for path, want := range cases {
		if got := mimeFromExt(path); got != want {
			t.Errorf("mimeFromExt(%q) = %q, want %q", path, got, want)
		}
	}
}
