package service

import (
	"regexp"
	"strings"
	"unicode"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const minPasswordLength = 8

// validateRegistration returns per-field validation messages for the
// register payload, or nil when everything is well-formed. The confirm
// check is client-input equality only, not a security boundary.
func validateRegistration(email, password, confirmPassword string) map[string][]string {
	fields := make(map[string][]string)

	if strings.TrimSpace(email) == "" {
		fields["email"] = append(fields["email"], "Email is required.")
	} else if !emailPattern.MatchString(strings.TrimSpace(email)) {
		fields["email"] = append(fields["email"], "Email is not well-formed.")
	}

	fields["password"] = append(fields["password"], passwordIssues(password)...)
	if len(fields["password"]) == 0 {
		delete(fields, "password")
	}

	if confirmPassword != password {
		fields["confirmPassword"] = append(fields["confirmPassword"], "Passwords do not match.")
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}

// passwordIssues enforces the password policy: at least eight characters
// containing both a letter and a digit.
func passwordIssues(password string) []string {
	var issues []string
	if len(password) < minPasswordLength {
		issues = append(issues, "Password must be at least 8 characters long.")
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		issues = append(issues, "Password must contain both a letter and a digit.")
	}
	return issues
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
