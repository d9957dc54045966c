// Package extract parses free-form model output into a validated profile
// delta. Models return JSON wrapped in prose, code fences, or nothing at
// all; extraction tolerates all of these and validates every field before
// anything reaches the student record.
package extract

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrNoJSONFound means no parseable JSON object could be located anywhere
// in the model output. The raw text should be preserved for diagnosis.
var ErrNoJSONFound = errors.New("extract: no JSON object found in model output")

const (
	maxNameLen     = 50
	maxListItemLen = 100

	minAge   = 3
	maxAge   = 18
	minGrade = 1
	maxGrade = 12
)

// Profile is the validated subset of extracted fields. Nil pointers mean
// the model said nothing usable; list fields are always non-nil.
type Profile struct {
	FirstName           *string  `json:"first_name,omitempty"`
	LastName            *string  `json:"last_name,omitempty"`
	Age                 *int     `json:"age,omitempty"`
	Grade               *int     `json:"grade,omitempty"`
	Interests           []string `json:"interests"`
	LearningPreferences []string `json:"learning_preferences"`
	FavoriteSubjects    []string `json:"favorite_subjects"`
	ChallengingSubjects []string `json:"challenging_subjects"`
	Confidence          float64  `json:"confidence_score"`
	Source              string   `json:"source,omitempty"`
}

var fenceRE = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// sectionKeys are the wrapper objects some prompts elicit. When present,
// their contents are folded into one flat map before field extraction, so
// nested and flat responses go through identical validation.
var sectionKeys = []string{"student_info", "student", "profile", "preferences", "subjects", "assessment"}

// Extract parses raw model text into a Profile. It is a pure function:
// equal input always yields a value-equal result.
func Extract(raw string) (*Profile, error) {
	obj, err := locateJSON(raw)
	if err != nil {
		return nil, err
	}
	fields := flattenSections(obj)

	p := &Profile{
		Interests:           []string{},
		LearningPreferences: []string{},
		FavoriteSubjects:    []string{},
		ChallengingSubjects: []string{},
	}

	p.FirstName = cleanName(fields["first_name"], true)
	p.LastName = cleanName(fields["last_name"], false)
	if p.FirstName == nil {
		if full := cleanLegacyName(fields["name"]); full != "" {
			first, last := splitName(full)
			p.FirstName = cleanName(first, true)
			if p.LastName == nil && last != "" {
				p.LastName = cleanName(last, false)
			}
		}
	}

	p.Age = intInRange(fields["age"], minAge, maxAge)
	p.Grade = intInRange(fields["grade"], minGrade, maxGrade)

	p.Interests = stringList(fields["interests"])
	p.LearningPreferences = stringList(fields["learning_preferences"])
	p.FavoriteSubjects = stringList(fields["favorite_subjects"])
	p.ChallengingSubjects = stringList(fields["challenging_subjects"])

	p.Confidence = confidence(fields)
	if s, ok := fields["source"].(string); ok {
		p.Source = strings.TrimSpace(s)
	}
	return p, nil
}

// locateJSON finds the first parseable JSON object: the whole string,
// then each fenced code block in order, then the first balanced brace
// span embedded in prose.
func locateJSON(raw string) (map[string]any, error) {
	text := strings.TrimSpace(raw)
	if obj, ok := tryParse(text); ok {
		return obj, nil
	}
	for _, m := range fenceRE.FindAllStringSubmatch(text, -1) {
		if obj, ok := tryParse(strings.TrimSpace(m[1])); ok {
			return obj, nil
		}
	}
	if obj, ok := firstBraceSpan(text); ok {
		return obj, nil
	}
	return nil, ErrNoJSONFound
}

// firstBraceSpan decodes the first complete object starting at any "{"
// in the text. The decoder stops at the balanced closing brace, so
// trailing prose after the object, stray braces included, never breaks
// the parse.
func firstBraceSpan(text string) (map[string]any, bool) {
	for start := strings.Index(text, "{"); start >= 0; {
		var obj map[string]any
		dec := json.NewDecoder(strings.NewReader(text[start:]))
		if err := dec.Decode(&obj); err == nil && obj != nil {
			return obj, true
		}
		next := strings.Index(text[start+1:], "{")
		if next < 0 {
			break
		}
		start += 1 + next
	}
	return nil, false
}

func tryParse(text string) (map[string]any, bool) {
	if !strings.HasPrefix(text, "{") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// flattenSections resolves the nested-vs-flat response shapes once. Keys
// inside known wrapper sections win over top-level keys of the same name.
func flattenSections(obj map[string]any) map[string]any {
	flat := make(map[string]any, len(obj))
	for k, v := range obj {
		flat[k] = v
	}
	for _, key := range sectionKeys {
		section, ok := obj[key].(map[string]any)
		if !ok {
			continue
		}
		for k, v := range section {
			flat[k] = v
		}
	}
	return flat
}

var placeholderNames = map[string]bool{
	"": true, "unknown": true, "none": true, "null": true, "n/a": true,
}

// cleanName validates one name field. Placeholder values, illegal
// characters and over-long values all yield nil rather than an error.
func cleanName(v any, isFirst bool) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	if placeholderNames[lower] || (isFirst && lower == "student") {
		return nil
	}
	if utf8.RuneCountInString(s) > maxNameLen || !validNameChars(s) {
		return nil
	}
	return &s
}

func validNameChars(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || r == ' ' || r == '-' || r == '\'' {
			continue
		}
		return false
	}
	return true
}

func cleanLegacyName(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// splitName splits a legacy full-name field on the first whitespace run.
func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// intInRange parses v as an integer and drops it when out of range.
// Out-of-range values are discarded, never clamped.
func intInRange(v any, lo, hi int) *int {
	var n int
	switch t := v.(type) {
	case float64:
		n = int(t)
		if float64(n) != t {
			return nil
		}
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return nil
		}
		n = parsed
	default:
		return nil
	}
	if n < lo || n > hi {
		return nil
	}
	return &n
}

// stringList keeps only non-empty strings up to the item length cap.
// Anything that is not a list yields an empty slice, never nil.
func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" || utf8.RuneCountInString(s) > maxListItemLen {
			continue
		}
		out = append(out, s)
	}
	return out
}

// confidence coerces the score to a float and resets anything outside
// [0,1] to 0.0.
func confidence(fields map[string]any) float64 {
	v, ok := fields["confidence_score"]
	if !ok {
		v = fields["confidence"]
	}
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0.0
		}
		f = parsed
	default:
		return 0.0
	}
	if f < 0 || f > 1 {
		return 0.0
	}
	return f
}
