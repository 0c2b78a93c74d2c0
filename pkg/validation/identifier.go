// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided identifiers that end up
// in storage key prefixes and log lines. Using these validators prevents key
// collisions and injection through crafted identifiers.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// subjectIDPattern matches valid subject identifiers.
// Allows: letters, digits, dots, hyphens, underscores.
// Max length: 128 characters.
var subjectIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,127}$`)

// configHashPattern matches valid configuration hashes: hex digests or
// short opaque tags produced by a build system.
var configHashPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,127}$`)

// ValidateSubjectID validates a subject identifier before it is used in a
// storage key.
//
// Valid subject IDs:
//   - 1-128 characters
//   - Letters A-Z, a-z and digits 0-9
//   - Dots (.), underscores (_) and hyphens (-) after the first character
//
// Returns an error if the identifier is invalid. Slashes are rejected in
// particular because subject IDs form storage key prefixes.
func ValidateSubjectID(subjectID string) error {
	if subjectID == "" {
		return fmt.Errorf("subject id cannot be empty")
	}

	if !subjectIDPattern.MatchString(subjectID) {
		return fmt.Errorf("invalid subject id format: %q (must be 1-128 alphanumeric chars, dots, underscores, or hyphens)", subjectID)
	}

	return nil
}

// ValidateConfigHash validates a configuration hash.
// The same character rules apply as for subject IDs.
func ValidateConfigHash(hash string) error {
	if hash == "" {
		return fmt.Errorf("config hash cannot be empty")
	}

	if !configHashPattern.MatchString(hash) {
		return fmt.Errorf("invalid config hash format: %q", hash)
	}

	return nil
}

// SanitizeSubjectID normalizes and validates a subject identifier.
// Returns the trimmed identifier if valid, or an error if invalid.
//
// Use this when accepting identifiers from an HTTP request:
//
//	safeID, err := validation.SanitizeSubjectID(req.SubjectID)
//	if err != nil {
//	    return err
//	}
//	// safeID is trimmed and validated
func SanitizeSubjectID(subjectID string) (string, error) {
	normalized := strings.TrimSpace(subjectID)
	if err := ValidateSubjectID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
