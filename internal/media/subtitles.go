package media

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// paragraphGap is the pause between cues that starts a new paragraph.
const paragraphGap = 2 * time.Second

// cueTimingRe matches a cue timing line in WebVTT ("00:01.000",
// "00:00:01.000") or SRT ("00:00:01,000") form. Cue settings such as
// "position:10%" may follow the end time.
var cueTimingRe = regexp.MustCompile(`^\s*((?:\d+:)?\d{2}:\d{2}[.,]\d{3})\s*-->\s*((?:\d+:)?\d{2}:\d{2}[.,]\d{3})`)

// markupRe matches inline cue markup: <c>, <i>, <font ...>, and the
// karaoke timestamps YouTube embeds in auto captions (<00:00:01.500>).
var markupRe = regexp.MustCompile(`<[^>]+>`)

// cue is one timed block of subtitle text. Untimed text (plain
// transcripts) is kept as a cue with zero times.
type cue struct {
	start, end time.Duration
	lines      []string
}

// parseCues splits WebVTT or SRT content into cues. Headers, NOTE,
// STYLE and REGION blocks, and cue identifiers are dropped; markup is
// stripped from the text and entities decoded.
func parseCues(raw string) []cue {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.TrimPrefix(raw, "\ufeff")

	var (
		cues     []cue
		cur      *cue
		skipping bool // inside a block that carries no caption text
	)
	flush := func() {
		if cur != nil && len(cur.lines) > 0 {
			cues = append(cues, *cur)
		}
		cur = nil
	}

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			skipping = false
			// A blank line ends a timed cue; untimed text keeps flowing.
			if cur != nil && (cur.start != 0 || cur.end != 0) {
				flush()
			}
			continue
		}
		if skipping {
			continue
		}

		if m := cueTimingRe.FindStringSubmatch(trimmed); m != nil {
			flush()
			cur = &cue{start: parseCueTime(m[1]), end: parseCueTime(m[2])}
			continue
		}

		// Header lines and cue identifiers only appear between cues.
		if cur == nil {
			switch {
			case strings.HasPrefix(trimmed, "WEBVTT"):
				continue
			case strings.HasPrefix(trimmed, "NOTE"),
				strings.HasPrefix(trimmed, "STYLE"),
				strings.HasPrefix(trimmed, "REGION"):
				skipping = true
				continue
			case strings.HasPrefix(trimmed, "Kind:"), strings.HasPrefix(trimmed, "Language:"):
				continue
			case isCueID(trimmed):
				continue
			}
		}

		text := strings.TrimSpace(html.UnescapeString(markupRe.ReplaceAllString(trimmed, "")))
		if text == "" {
			continue
		}
		if cur == nil {
			cur = &cue{}
		}
		cur.lines = append(cur.lines, text)
	}
	flush()
	return cues
}

// isCueID reports whether s is a bare numeric cue identifier (SRT
// sequence numbers, numbered VTT cues).
func isCueID(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

// parseCueTime parses "[hh:]mm:ss.mmm" or "[hh:]mm:ss,mmm". Malformed
// input yields zero.
func parseCueTime(s string) time.Duration {
	s = strings.Replace(strings.TrimSpace(s), ",", ".", 1)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}

	secPart, msPart, ok := strings.Cut(parts[len(parts)-1], ".")
	if !ok {
		return 0
	}
	sec, err1 := strconv.Atoi(secPart)
	ms, err2 := strconv.Atoi(msPart)
	if err1 != nil || err2 != nil {
		return 0
	}

	minutes := 0
	for _, p := range parts[:len(parts)-1] {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0
		}
		minutes = minutes*60 + n
	}
	return time.Duration(minutes)*time.Minute +
		time.Duration(sec)*time.Second +
		time.Duration(ms)*time.Millisecond
}

// CleanSubtitles converts WebVTT or SRT content into plain running
// text. Rolling auto captions repeat each line across overlapping
// cues; consecutive duplicates are dropped.
func CleanSubtitles(raw string) string {
	return renderCues(parseCues(raw), 0)
}

// SubtitleParagraphs is like CleanSubtitles but starts a new paragraph
// wherever the pause between cues exceeds two seconds.
func SubtitleParagraphs(raw string) string {
	return renderCues(parseCues(raw), paragraphGap)
}

// renderCues joins cue text. A positive gap inserts a blank line where
// consecutive cues are further apart than gap.
func renderCues(cues []cue, gap time.Duration) string {
	var (
		paragraphs []string
		current    []string
		prev       string
		prevEnd    time.Duration
	)
	for i, c := range cues {
		if gap > 0 && i > 0 && prevEnd > 0 && c.start-prevEnd > gap && len(current) > 0 {
			paragraphs = append(paragraphs, strings.Join(current, " "))
			current = nil
		}
		if c.end > 0 {
			prevEnd = c.end
		}
		for _, line := range c.lines {
			if line == prev {
				continue
			}
			current = append(current, line)
			prev = line
		}
	}
	if len(current) > 0 {
		paragraphs = append(paragraphs, strings.Join(current, " "))
	}
	return strings.TrimSpace(strings.Join(paragraphs, "\n\n"))
}
