package extract

import (
	"errors"
	"reflect"
	"testing"
)

func TestExtractFencedRoundTrip(t *testing.T) {
	raw := "Here is the analysis you asked for:\n```json\n{\"first_name\":\"Emma\",\"age\":9,\"interests\":[\"math\"]}\n```\nLet me know if you need anything else."

	p, err := Extract(raw)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if p.FirstName == nil || *p.FirstName != "Emma" {
		t.Fatalf("first name: %v", p.FirstName)
	}
	if p.LastName != nil {
		t.Fatalf("last name should be absent, got %q", *p.LastName)
	}
	if p.Age == nil || *p.Age != 9 {
		t.Fatalf("age: %v", p.Age)
	}
	if p.Grade != nil {
		t.Fatalf("grade should be absent, got %d", *p.Grade)
	}
	if !reflect.DeepEqual(p.Interests, []string{"math"}) {
		t.Fatalf("interests: %v", p.Interests)
	}
	for name, list := range map[string][]string{
		"learning_preferences": p.LearningPreferences,
		"favorite_subjects":    p.FavoriteSubjects,
		"challenging_subjects": p.ChallengingSubjects,
	} {
		if list == nil || len(list) != 0 {
			t.Fatalf("%s should be empty non-nil, got %v", name, list)
		}
	}
}

func TestExtractLocationOrder(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare object", `{"first_name": "Liam"}`, "Liam"},
		{"plain fence", "```\n{\"first_name\": \"Liam\"}\n```", "Liam"},
		{"json fence with prose", "Sure!\n```json\n{\"first_name\": \"Liam\"}\n```", "Liam"},
		{"brace span in prose", `The student's details follow: {"first_name": "Liam"} as requested.`, "Liam"},
		{"second fence parses", "```\nnot json\n```\n```json\n{\"first_name\": \"Liam\"}\n```", "Liam"},
		{"stray brace after object", `{"first_name": "Liam"} and note the {placeholder} syntax above.`, "Liam"},
		{"unparseable brace before object", `Use {name: value} pairs, e.g. {"first_name": "Liam"}.`, "Liam"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Extract(tt.raw)
			if err != nil {
				t.Fatalf("extract: %v", err)
			}
			if p.FirstName == nil || *p.FirstName != tt.want {
				t.Fatalf("first name: %v", p.FirstName)
			}
		})
	}
}

func TestExtractObjectWithBraceBearingTrailer(t *testing.T) {
	raw := `Here is the profile: {"first_name": "Emma", "age": 9} — let me know if you want the fields in {name: value} style.`

	p, err := Extract(raw)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if p.FirstName == nil || *p.FirstName != "Emma" {
		t.Fatalf("first name: %v", p.FirstName)
	}
	if p.Age == nil || *p.Age != 9 {
		t.Fatalf("age: %v", p.Age)
	}
}

func TestExtractNoJSON(t *testing.T) {
	for _, raw := range []string{"", "I could not analyze this session.", "```\nstill not json\n```", "[1,2,3]"} {
		if _, err := Extract(raw); !errors.Is(err, ErrNoJSONFound) {
			t.Fatalf("raw %q: expected ErrNoJSONFound, got %v", raw, err)
		}
	}
}

func TestExtractNestedSections(t *testing.T) {
	raw := `{"student_info": {"first_name": "Ava", "age": 11}, "preferences": {"learning_preferences": ["visual examples"]}, "confidence_score": 0.8}`

	p, err := Extract(raw)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if p.FirstName == nil || *p.FirstName != "Ava" {
		t.Fatalf("first name: %v", p.FirstName)
	}
	if p.Age == nil || *p.Age != 11 {
		t.Fatalf("age: %v", p.Age)
	}
	if !reflect.DeepEqual(p.LearningPreferences, []string{"visual examples"}) {
		t.Fatalf("learning preferences: %v", p.LearningPreferences)
	}
	if p.Confidence != 0.8 {
		t.Fatalf("confidence: %v", p.Confidence)
	}
}

func TestExtractNameValidation(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		first *string
		last  *string
	}{
		{"placeholder unknown", `{"first_name": "Unknown"}`, nil, nil},
		{"placeholder student first-name only", `{"first_name": "Student", "last_name": "Student"}`, nil, strPtr("Student")},
		{"placeholder null string", `{"first_name": "null"}`, nil, nil},
		{"digits rejected", `{"first_name": "Emma2"}`, nil, nil},
		{"hyphen and apostrophe kept", `{"first_name": "Mary-Jane", "last_name": "O'Brien"}`, strPtr("Mary-Jane"), strPtr("O'Brien")},
		{"legacy name split", `{"name": "Sarah Anne Wilson"}`, strPtr("Sarah"), strPtr("Anne Wilson")},
		{"explicit last name wins over legacy", `{"name": "Sarah Wilson", "last_name": "Nguyen"}`, strPtr("Sarah"), strPtr("Nguyen")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Extract(tt.raw)
			if err != nil {
				t.Fatalf("extract: %v", err)
			}
			checkStrPtr(t, "first_name", p.FirstName, tt.first)
			checkStrPtr(t, "last_name", p.LastName, tt.last)
		})
	}
}

func TestExtractLegacyNameUsedOnlyWithoutFirstName(t *testing.T) {
	p, err := Extract(`{"first_name": "Emma", "name": "Someone Else"}`)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if p.FirstName == nil || *p.FirstName != "Emma" {
		t.Fatalf("first name: %v", p.FirstName)
	}
	if p.LastName != nil {
		t.Fatalf("legacy name leaked into last name: %q", *p.LastName)
	}
}

func TestExtractRanges(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		age   *int
		grade *int
	}{
		{"age out of range dropped", `{"age": 25}`, nil, nil},
		{"age below range dropped", `{"age": 2}`, nil, nil},
		{"age boundary kept", `{"age": 18, "grade": 12}`, intPtr(18), intPtr(12)},
		{"grade zero dropped", `{"grade": 0}`, nil, nil},
		{"string numeric accepted", `{"age": "9", "grade": "4"}`, intPtr(9), intPtr(4)},
		{"non-numeric dropped", `{"age": "nine"}`, nil, nil},
		{"fractional dropped", `{"age": 9.5}`, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Extract(tt.raw)
			if err != nil {
				t.Fatalf("extract: %v", err)
			}
			checkIntPtr(t, "age", p.Age, tt.age)
			checkIntPtr(t, "grade", p.Grade, tt.grade)
		})
	}
}

func TestExtractLists(t *testing.T) {
	p, err := Extract(`{"interests": ["math", "", 42, "  soccer  "], "favorite_subjects": "not a list"}`)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !reflect.DeepEqual(p.Interests, []string{"math", "soccer"}) {
		t.Fatalf("interests: %v", p.Interests)
	}
	if p.FavoriteSubjects == nil || len(p.FavoriteSubjects) != 0 {
		t.Fatalf("non-list input must yield empty list, got %v", p.FavoriteSubjects)
	}
}

func TestExtractConfidence(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{`{"confidence_score": 0.85}`, 0.85},
		{`{"confidence": 0.4}`, 0.4},
		{`{"confidence_score": 1.5}`, 0.0},
		{`{"confidence_score": -0.1}`, 0.0},
		{`{"confidence_score": "0.7"}`, 0.7},
		{`{}`, 0.0},
	}
	for _, tt := range tests {
		p, err := Extract(tt.raw)
		if err != nil {
			t.Fatalf("extract %q: %v", tt.raw, err)
		}
		if p.Confidence != tt.want {
			t.Fatalf("raw %q: confidence %v, want %v", tt.raw, p.Confidence, tt.want)
		}
	}
}

func TestExtractPure(t *testing.T) {
	raw := "```json\n{\"first_name\":\"Emma\",\"age\":9,\"interests\":[\"math\"],\"confidence_score\":0.9}\n```"
	a, err := Extract(raw)
	if err != nil {
		t.Fatalf("first extract: %v", err)
	}
	b, err := Extract(raw)
	if err != nil {
		t.Fatalf("second extract: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("extract is not pure: %+v vs %+v", a, b)
	}
}

func strPtr(s string) *string { return &s }
func intPtr(v int) *int       { return &v }

func checkStrPtr(t *testing.T, field string, got, want *string) {
	t.Helper()
	switch {
	case want == nil && got != nil:
		t.Fatalf("%s: expected absent, got %q", field, *got)
	case want != nil && got == nil:
		t.Fatalf("%s: expected %q, got absent", field, *want)
	case want != nil && *got != *want:
		t.Fatalf("%s: got %q, want %q", field, *got, *want)
	}
}

func checkIntPtr(t *testing.T, field string, got, want *int) {
	t.Helper()
	switch {
	case want == nil && got != nil:
		t.Fatalf("%s: expected absent, got %d", field, *got)
	case want != nil && got == nil:
		t.Fatalf("%s: expected %d, got absent", field, *want)
	case want != nil && *got != *want:
		t.Fatalf("%s: got %d, want %d", field, *got, *want)
	}
}
