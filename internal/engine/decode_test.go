package engine

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"whitespace", "  {\n  \"a\": 1\n}\n", `{"a":1}`},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a":1}`},
		{"fenced no lang", "```\n{\"a\": 1}\n```", `{"a":1}`},
		{"prose around", `Sure! Here it is: {"a": {"b": 2}} Hope that helps.`, `{"a":{"b":2}}`},
		{"braces in strings", `{"s": "a } tricky { one"}`, `{"s":"a } tricky { one"}`},
		{"escaped quote", `{"s": "say \"hi\" }"}`, `{"s":"say \"hi\" }"}`},
		{"think block", "<think>maybe {x}</think>\n{\"ok\": true}", `{"ok":true}`},
		{"skips invalid candidate", `{not json} then {"a": 1}`, `{"a":1}`},
		{"none", "no json here", ""},
		{"unbalanced", `{"a": 1`, ""},
		{"array only", `[1, 2, 3]`, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractJSONObject(tc.in); got != tc.want {
				t.Errorf("ExtractJSONObject(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var plan struct {
		Steps   []string `json:"steps"`
		HasFile bool     `json:"has_file"`
	}
	err := DecodeJSON("```json\n{\"steps\": [\"a\", \"b\"], \"has_file\": true}\n```", &plan)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Steps) != 2 || !plan.HasFile {
		t.Errorf("plan = %+v", plan)
	}

	if err := DecodeJSON("nothing", &plan); !errors.Is(err, errNoJSONObject) {
		t.Errorf("err = %v, want errNoJSONObject", err)
	}

	var wrongType struct {
		Steps int `json:"steps"`
	}
	if err := DecodeJSON(`{"steps": ["a"]}`, &wrongType); err == nil {
		t.Error("type mismatch should fail")
	}
}

func TestDecodeError(t *testing.T) {
	err := &DecodeError{Schema: "plan", Raw: strings.Repeat("x", 500), Err: errNoJSONObject}
	msg := err.Error()
	if !strings.Contains(msg, "decode plan output") || len(msg) > 400 {
		t.Errorf("Error() = %q", msg)
	}
	if !errors.Is(err, errNoJSONObject) {
		t.Error("DecodeError must unwrap")
	}
}

func TestClip(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc..."},
		{"aé", 2, "a..."},
		{"日本語", 4, "日..."},
		{"日本語", 6, "日本..."},
	}
	for _, tt := range tests {
		got := clip(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("clip(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("clip(%q, %d) split a rune: %q", tt.in, tt.n, got)
		}
	}
}

func TestSchemaInstruction(t *testing.T) {
	s := Schema{Name: "plan", Description: "an ordered plan", JSON: map[string]any{"type": "object"}}
	got := s.Instruction()
	if !strings.Contains(got, "an ordered plan") || !strings.Contains(got, `"type": "object"`) {
		t.Errorf("Instruction() = %q", got)
	}
}
