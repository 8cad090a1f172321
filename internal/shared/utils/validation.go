package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Size limits (in bytes)
const (
	MaxCommandLength = 4 * 1024 // single forwarded command line
	MaxValueSize     = 64 * 1024
)

// String length limits
const (
	MaxIDLength       = 128
	MaxScopeLength    = 64
	MaxTypeNameLength = 128
	MaxTitleLength    = 256
)

// Regular expressions for validation
var (
	// SafeIDPattern allows alphanumeric, hyphens, underscores
	SafeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	// ScopePattern allows an identifier starting with a letter
	ScopePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)
	// TypeNamePattern allows dotted or slash separated runtime type names
	TypeNamePattern = regexp.MustCompile(`^[a-zA-Z0-9._/-]+$`)
)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil // Optional field, empty is OK
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}

// ValidateID validates an ID field
func ValidateID(id, fieldName string, required bool) error {
	if err := ValidateString(id, fieldName, 1, MaxIDLength, required); err != nil {
		return err
	}

	if id != "" && !SafeIDPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (only alphanumeric, hyphens, and underscores allowed)", fieldName)
	}

	return nil
}

// ValidateClientID validates a secondary-view client id. Empty is allowed
// and means "no client".
func ValidateClientID(clientID string) error {
	return ValidateID(clientID, "client id", false)
}

// ValidateScope validates a scope name
func ValidateScope(scope string) error {
	if err := ValidateString(scope, "scope", 1, MaxScopeLength, true); err != nil {
		return err
	}
	if !ScopePattern.MatchString(scope) {
		return fmt.Errorf("scope %q must start with a letter and contain only letters and digits", scope)
	}
	return nil
}

// ValidateTypeName validates a widget runtime type name
func ValidateTypeName(name string) error {
	if err := ValidateString(name, "type name", 1, MaxTypeNameLength, true); err != nil {
		return err
	}
	if !TypeNamePattern.MatchString(name) {
		return fmt.Errorf("type name %q contains invalid characters", name)
	}
	return nil
}

// ValidateCommand validates a forwarded command line.
// Commands are single-line UTF-8 text no longer than MaxCommandLength.
func ValidateCommand(command string) error {
	if len(command) > MaxCommandLength {
		return fmt.Errorf("command exceeds %d bytes", MaxCommandLength)
	}
	if !utf8.ValidString(command) {
		return fmt.Errorf("command is not valid UTF-8")
	}
	if strings.ContainsAny(command, "\r\n\x00") {
		return fmt.Errorf("command contains line breaks or null bytes")
	}
	return nil
}

// SanitizeString removes potentially dangerous characters
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}
