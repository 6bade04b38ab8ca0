// Package extractor pulls a structured scorecard out of free-form model
// output.
package extractor

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"callscore-go/internal/types"
)

var fences = []string{"```json", "```JSON", "```"}

// JSON returns the JSON object embedded in s. It strips markdown fences and
// takes everything between the first '{' and the last '}'. When that span
// does not parse, the first balanced object is tried instead. No brace at
// all yields "".
func JSON(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	for _, f := range fences {
		s = strings.ReplaceAll(s, f, "")
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end < start {
		return ""
	}
	greedy := strings.TrimSpace(s[start : end+1])
	if json.Valid([]byte(greedy)) {
		return greedy
	}
	if balanced := firstBalanced(s[start:]); balanced != "" && json.Valid([]byte(balanced)) {
		return balanced
	}
	return greedy
}

// firstBalanced scans for the first brace-balanced object, ignoring braces
// inside string literals.
func firstBalanced(s string) string {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[:i+1])
			}
		}
	}
	return ""
}

// Decode turns model output into an AnalysisResult. Every criterion is
// present; missing or non-numeric values score 0 and values are clamped to
// their sign. Scores may be flat or nested under "scores". The error is
// non-nil only when the located object is not valid JSON.
func Decode(content string) (types.AnalysisResult, error) {
	obj := JSON(content)
	if obj == "" {
		obj = "{}"
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return types.AnalysisResult{}, fmt.Errorf("decode model output: %w", err)
	}

	scoreFields := fields
	if nested, ok := fields["scores"]; ok {
		var inner map[string]json.RawMessage
		if json.Unmarshal(nested, &inner) == nil {
			scoreFields = inner
		}
	}

	res := types.AnalysisResult{Scores: types.NewScorecard(), Category: types.CategoryOther}
	for _, c := range types.Criteria {
		if raw, ok := scoreFields[string(c)]; ok {
			res.Scores[c] = score(raw)
		}
	}
	res.Summary = strings.TrimSpace(stringField(fields, "summary"))
	res.Category = NormalizeCategory(stringField(fields, "category"))
	res.ManagerName = strings.TrimSpace(stringField(fields, "manager_name"))
	return res, nil
}

// NormalizeCategory maps a model label onto order, cooperation or other.
func NormalizeCategory(label string) string {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "order", "заказ":
		return types.CategoryOrder
	case "cooperation", "сотрудничество":
		return types.CategoryCooperation
	default:
		return types.CategoryOther
	}
}

func score(raw json.RawMessage) int {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	switch {
	case math.IsNaN(f) || f == 0:
		return 0
	case f > 0:
		return 1
	default:
		return -1
	}
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}
