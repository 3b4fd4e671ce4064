package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Schema describes the JSON object a structured call must produce.
type Schema struct {
	Name        string
	Description string
	// JSON is the JSON Schema for the object.
	JSON map[string]any
}

// Instruction renders the schema as a system instruction.
func (s Schema) Instruction() string {
	body, err := json.MarshalIndent(s.JSON, "", "  ")
	if err != nil {
		body = []byte("{}")
	}
	var sb strings.Builder
	sb.WriteString("Respond only with a single JSON object")
	if s.Description != "" {
		fmt.Fprintf(&sb, " (%s)", s.Description)
	}
	sb.WriteString(" that conforms to this JSON Schema. Do not wrap it in markdown and do not add commentary.\n\n")
	sb.Write(body)
	return sb.String()
}

// DecodeError reports model output that does not decode into the
// requested schema.
type DecodeError struct {
	Schema string
	Raw    string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s output: %v (raw: %q)", e.Schema, e.Err, clip(e.Raw, 200))
}

func (e *DecodeError) Unwrap() error { return e.Err }

// clip shortens s to at most n bytes on a rune boundary.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

var errNoJSONObject = errors.New("no JSON object found")

// DecodeJSON extracts the first JSON object from model output and
// unmarshals it into out. It tolerates a leading <think> block,
// markdown code fences, and prose around the object.
func DecodeJSON(text string, out any) error {
	obj := ExtractJSONObject(text)
	if obj == "" {
		return errNoJSONObject
	}
	dec := json.NewDecoder(strings.NewReader(obj))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}

// ExtractJSONObject returns the first balanced {...} object in s, or ""
// if none is present.
func ExtractJSONObject(s string) string {
	t := strings.TrimSpace(s)

	if i := strings.Index(t, "</think>"); i != -1 && strings.HasPrefix(t, "<think>") {
		t = strings.TrimSpace(t[i+len("</think>"):])
	}

	// Strip code fences like ```json ... ```
	if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```")
		if idx := strings.IndexByte(t, '\n'); idx != -1 {
			t = t[idx+1:]
		}
		if j := strings.LastIndex(t, "```"); j != -1 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}

	start := strings.IndexByte(t, '{')
	for start != -1 {
		if end := matchBrace(t[start:]); end > 0 {
			candidate := t[start : start+end]
			if json.Valid([]byte(candidate)) {
				return compact(candidate)
			}
		}
		next := strings.IndexByte(t[start+1:], '{')
		if next == -1 {
			break
		}
		start += next + 1
	}
	return ""
}

// matchBrace returns the length of the balanced object starting at
// s[0] == '{', honoring string literals and escapes, or -1.
func matchBrace(s string) int {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

func compact(s string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return s
	}
	return buf.String()
}
