package services

import (
	"encoding/json"
	"strconv"
	"strings"

	"gorm.io/datatypes"
)

// ===== QUESTION TYPE SPECIFIC GRADING =====

// gradeMultipleChoice compares choice keys exactly, trimmed but
// case-sensitive: keys are identifiers, "a" and "A" are different
// choices.
func (s *gradingService) gradeMultipleChoice(canonical, submitted datatypes.JSON) bool {
	want, ok := decodeScalar(canonical)
	if !ok {
		return false
	}
	got, ok := decodeScalar(submitted)
	if !ok {
		return false
	}
	return compareStrings(want, got, true)
}

// gradeTrueFalse normalizes both sides to "true"/"false" so a JSON
// boolean and its string form grade identically.
func (s *gradingService) gradeTrueFalse(canonical, submitted datatypes.JSON) bool {
	want, ok := decodeScalar(canonical)
	if !ok {
		return false
	}
	got, ok := decodeScalar(submitted)
	if !ok {
		return false
	}
	return compareStrings(want, got, true)
}

// gradeShortAnswer matches case-insensitively against the canonical
// answer, which may be a single string or a list of accepted strings.
func (s *gradingService) gradeShortAnswer(canonical, submitted datatypes.JSON) bool {
	got, ok := decodeScalar(submitted)
	if !ok {
		return false
	}

	var accepted []string
	if err := json.Unmarshal(canonical, &accepted); err != nil {
		single, ok := decodeScalar(canonical)
		if !ok {
			return false
		}
		accepted = []string{single}
	}

	for _, want := range accepted {
		if compareStrings(want, got, false) {
			return true
		}
	}
	return false
}

// decodeScalar decodes a JSON string or boolean into its string form.
func decodeScalar(raw datatypes.JSON) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, true
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b), true
	}

	return "", false
}

func compareStrings(s1, s2 string, caseSensitive bool) bool {
	if !caseSensitive {
		s1 = strings.ToLower(strings.TrimSpace(s1))
		s2 = strings.ToLower(strings.TrimSpace(s2))
	} else {
		s1 = strings.TrimSpace(s1)
		s2 = strings.TrimSpace(s2)
	}
	return s1 == s2
}
