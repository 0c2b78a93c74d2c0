// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"strings"
	"testing"
)

func TestValidateSubjectID(t *testing.T) {
	tests := []struct {
		name      string
		subjectID string
		wantErr   bool
	}{
		// Valid identifiers
		{"simple", "ranker", false},
		{"single char", "a", false},
		{"with digits", "model2", false},
		{"dotted", "search.ranker", false},
		{"hyphenated", "search-ranker-v2", false},
		{"underscored", "search_ranker", false},
		{"max length", strings.Repeat("a", 128), false},

		// Invalid identifiers
		{"empty", "", true},
		{"slash breaks key prefix", "ranker/extra", true},
		{"injection attempt", `ranker"; drop`, true},
		{"newline", "ranker\nextra", true},
		{"too long", strings.Repeat("a", 129), true},
		{"spaces", "search ranker", true},
		{"starts with dot", ".ranker", true},
		{"starts with hyphen", "-ranker", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSubjectID(tt.subjectID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSubjectID(%q) error = %v, wantErr %v", tt.subjectID, err, tt.wantErr)
			}
		})
	}
}

func TestValidateConfigHash(t *testing.T) {
	tests := []struct {
		name    string
		hash    string
		wantErr bool
	}{
		{"hex digest", "3b5d5c3712955042", false},
		{"tag", "release-2025.08", false},
		{"empty", "", true},
		{"slash", "abc/def", true},
		{"special chars", "abc$def", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfigHash(tt.hash)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfigHash(%q) error = %v, wantErr %v", tt.hash, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeSubjectID(t *testing.T) {
	tests := []struct {
		name      string
		subjectID string
		want      string
		wantErr   bool
	}{
		{"clean passthrough", "ranker", "ranker", false},
		{"spaces trimmed", "  ranker  ", "ranker", false},
		{"invalid rejected", "bad id!", "", true},
		{"whitespace only", "   ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeSubjectID(tt.subjectID)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SanitizeSubjectID(%q) error = %v, wantErr %v", tt.subjectID, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("SanitizeSubjectID(%q) = %q, want %q", tt.subjectID, got, tt.want)
			}
		})
	}
}
