package media

import (
	"testing"
	"time"
)

func TestCleanSubtitles(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", "", ""},
		{
			"headers",
			"WEBVTT\nKind: captions\nLanguage: en\n\n00:00:01.000 --> 00:00:03.000\nHello world",
			"Hello world",
		},
		{
			"markup and entities",
			"WEBVTT\n\n00:00:01.000 --> 00:00:03.000\n<font color=\"#ffffff\">Tom</font> &amp; <c>Jerry</c>",
			"Tom & Jerry",
		},
		{
			"karaoke timestamps",
			"WEBVTT\n\n00:00:01.000 --> 00:00:03.000\nisn't<00:00:01.500><c> that</c><00:00:02.000><c> hot?</c>",
			"isn't that hot?",
		},
		{
			"numbered cues",
			"WEBVTT\n\n1\n00:00:01.000 --> 00:00:03.000\nFirst line\n\n2\n00:00:03.000 --> 00:00:05.000\nSecond line",
			"First line Second line",
		},
		{
			"numeric caption text is kept",
			"WEBVTT\n\n00:00:01.000 --> 00:00:02.000\n42\n",
			"42",
		},
		{
			"cue settings",
			"WEBVTT\n\n00:00:01.000 --> 00:00:03.000 position:10% align:start\nHello world",
			"Hello world",
		},
		{
			"short timestamps",
			"WEBVTT\n\n00:01.000 --> 00:03.000\nHello",
			"Hello",
		},
		{
			"note and style blocks",
			"WEBVTT\n\nNOTE written by hand\nsecond note line\n\nSTYLE\n::cue { color: red }\n\n00:00:01.000 --> 00:00:02.000\nKept",
			"Kept",
		},
		{
			"srt",
			"1\r\n00:00:01,000 --> 00:00:02,500\r\nFirst\r\n\r\n2\r\n00:00:03,000 --> 00:00:04,000\r\nSecond\r\n",
			"First Second",
		},
		{
			"byte order mark",
			"\ufeffWEBVTT\n\n00:00:01.000 --> 00:00:02.000\nHi",
			"Hi",
		},
		{"plain text", "Just some plain text", "Just some plain text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanSubtitles(tt.raw); got != tt.want {
				t.Errorf("CleanSubtitles = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCleanSubtitles_RollingCaptions(t *testing.T) {
	raw := `WEBVTT

00:00:01.000 --> 00:00:03.000
Hello everyone welcome to the show

00:00:02.000 --> 00:00:05.000
Hello everyone welcome to the show

00:00:04.000 --> 00:00:07.000
today we are going to talk about birds

00:00:06.000 --> 00:00:09.000
today we are going to talk about birds

00:00:08.000 --> 00:00:11.000
and how many species fit in one shot`

	want := "Hello everyone welcome to the show today we are going to talk about birds and how many species fit in one shot"
	if got := CleanSubtitles(raw); got != want {
		t.Errorf("CleanSubtitles:\n got: %q\nwant: %q", got, want)
	}
}

func TestSubtitleParagraphs(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", "", ""},
		{
			"long pause splits",
			`WEBVTT

00:00:01.000 --> 00:00:03.000
First paragraph here

00:00:03.500 --> 00:00:05.000
still first paragraph

00:00:10.000 --> 00:00:12.000
Second paragraph after pause`,
			"First paragraph here still first paragraph\n\nSecond paragraph after pause",
		},
		{
			"short pause does not split",
			`WEBVTT

00:00:01.000 --> 00:00:03.000
Line one

00:00:04.000 --> 00:00:06.000
Line two`,
			"Line one Line two",
		},
		{
			"duplicates dropped",
			`WEBVTT

00:00:01.000 --> 00:00:03.000
Hello world

00:00:02.000 --> 00:00:04.000
Hello world

00:00:03.000 --> 00:00:05.000
Goodbye world`,
			"Hello world Goodbye world",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SubtitleParagraphs(tt.raw); got != tt.want {
				t.Errorf("SubtitleParagraphs:\n got: %q\nwant: %q", got, tt.want)
			}
		})
	}
}

func TestParseCueTime(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"00:00:00.000", 0},
		{"00:00:01.000", time.Second},
		{"00:01:00.000", time.Minute},
		{"01:00:00.000", time.Hour},
		{"01:23:45.678", time.Hour + 23*time.Minute + 45*time.Second + 678*time.Millisecond},
		{"02:03.250", 2*time.Minute + 3*time.Second + 250*time.Millisecond},
		{"00:00:01,500", 1500 * time.Millisecond},
		{"", 0},
		{"short", 0},
		{"aa:bb:cc.ddd", 0},
	}
	for _, tt := range tests {
		if got := parseCueTime(tt.input); got != tt.want {
			t.Errorf("parseCueTime(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseCues_Times(t *testing.T) {
	cues := parseCues("WEBVTT\n\n00:00:01.000 --> 00:00:02.500\nA\nB\n\n00:00:03.000 --> 00:00:04.000\nC")
	if len(cues) != 2 {
		t.Fatalf("len(cues) = %d, want 2", len(cues))
	}
	if cues[0].start != time.Second || cues[0].end != 2500*time.Millisecond {
		t.Errorf("cue 0 times = %v..%v", cues[0].start, cues[0].end)
	}
	if len(cues[0].lines) != 2 || cues[0].lines[1] != "B" {
		t.Errorf("cue 0 lines = %q", cues[0].lines)
	}
}
