package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nugget/smarty/internal/engine"
	"github.com/nugget/smarty/internal/llm"
	"github.com/nugget/smarty/internal/prompts"
)

var answerSchema = engine.Schema{
	Name:        "final_answer",
	Description: "the final answer",
	JSON: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"answer": map[string]any{
				"type":        "string",
				"description": "the final answer to the question",
			},
		},
		"required": []string{"answer"},
	},
}

// shortAnswerWords is the longest answer treated as already final.
const shortAnswerWords = 5

// listItemWords is the longest item of a comma-separated answer treated
// as already final.
const listItemWords = 3

// LLMFinalizer reduces a candidate answer to the bare final answer.
type LLMFinalizer struct {
	engine *engine.Engine
}

// NewFinalizer returns a finalizer backed by e.
func NewFinalizer(e *engine.Engine) *LLMFinalizer {
	return &LLMFinalizer{engine: e}
}

// Finalize returns the normalized answer to question. Answers that are
// already bare values skip the model call, so finalizing a finalized
// answer returns it unchanged.
func (f *LLMFinalizer) Finalize(ctx context.Context, question, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("no candidate answer")
	}
	if isBareValue(raw) {
		return NormalizeAnswer(raw), nil
	}

	msgs := []llm.Message{
		{Role: llm.RoleUser, Content: prompts.FinalAnswer(question, raw)},
	}
	var out struct {
		Answer json.RawMessage `json:"answer"`
	}
	if err := f.engine.Structured(ctx, msgs, answerSchema, &out); err != nil {
		return "", fmt.Errorf("finalize: %w", err)
	}
	answer := NormalizeAnswer(rawString(out.Answer))
	if answer == "" {
		return "", errors.New("finalize: model returned an empty answer")
	}
	return answer, nil
}

// rawString renders a JSON value as text; models sometimes answer a
// numeric question with a bare number.
func rawString(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(v))
}

// isBareValue reports whether raw needs no model call: a number, a
// single token, a short answer, or a list of short items that
// normalization leaves unchanged.
func isBareValue(raw string) bool {
	if isNumeric(raw) {
		return true
	}
	words := strings.Fields(raw)
	if len(words) == 1 {
		return true
	}
	if NormalizeAnswer(raw) != raw {
		return false
	}
	return len(words) <= shortAnswerWords || isShortList(raw)
}

// isShortList reports whether s is a comma-separated list whose items
// are a few words each with no sentence punctuation.
func isShortList(s string) bool {
	items := strings.Split(s, ",")
	if len(items) < 2 {
		return false
	}
	for _, item := range items {
		item = strings.TrimSpace(item)
		n := len(strings.Fields(item))
		if n == 0 || n > listItemWords || strings.ContainsAny(item, "!?;:") || strings.Contains(item+" ", ". ") {
			return false
		}
	}
	return true
}

func isNumeric(s string) bool {
	if strings.IndexFunc(s, unicode.IsDigit) < 0 {
		return false
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(s, "%")
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

var answerPrefixes = []string{"final answer:", "answer:"}

var quotePairs = [][2]string{
	{`"`, `"`},
	{"'", "'"},
	{"“", "”"},
	{"‘", "’"},
	{"`", "`"},
}

// NormalizeAnswer applies the deterministic clean-up every final answer
// gets. It is idempotent.
func NormalizeAnswer(s string) string {
	for {
		next := normalizeOnce(s)
		if next == s {
			return s
		}
		s = next
	}
}

func normalizeOnce(s string) string {
	s = strings.TrimSpace(s)

	lower := strings.ToLower(s)
	for _, p := range answerPrefixes {
		if strings.HasPrefix(lower, p) {
			return strings.TrimSpace(s[len(p):])
		}
	}

	for _, q := range quotePairs {
		if len(s) >= len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			inner := s[len(q[0]) : len(s)-len(q[1])]
			if !strings.Contains(inner, q[0]) && !strings.Contains(inner, q[1]) {
				return strings.TrimSpace(inner)
			}
		}
	}

	if strings.HasSuffix(s, ".") && !strings.HasSuffix(s, "..") && !endsWithAbbreviation(s) && len(strings.Fields(s)) <= shortAnswerWords {
		return strings.TrimSpace(strings.TrimSuffix(s, "."))
	}

	if r, size := utf8.DecodeRuneInString(s); unicode.IsLower(r) && !isNumeric(s) && !firstWordHasDigit(s) {
		return string(unicode.ToUpper(r)) + s[size:]
	}
	return s
}

// firstWordHasDigit keeps tokens such as chess moves ("e4") and
// ordinals ("3rd") in their original case.
func firstWordHasDigit(s string) bool {
	words := strings.Fields(s)
	if len(words) == 0 {
		return false
	}
	return strings.IndexFunc(words[0], unicode.IsDigit) >= 0
}

// endsWithAbbreviation reports whether the last word has a period
// before its final one, as in "D.C." or "U.S.".
func endsWithAbbreviation(s string) bool {
	words := strings.Fields(s)
	if len(words) == 0 {
		return false
	}
	last := strings.TrimSuffix(words[len(words)-1], ".")
	return strings.Contains(last, ".")
}
