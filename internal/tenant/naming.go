package tenant

import (
	"regexp"
	"strconv"
	"strings"
)

const maxIdentifierLength = 63

var (
	slugPattern         = regexp.MustCompile(`^[a-z0-9-]+$`)
	databaseNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
)

// NormalizeSlug trims and lowercases a slug
func NormalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

// NormalizeDatabaseName trims and lowercases a database name. Database names
// compare case-insensitively, so the lowercase form is the one stored.
func NormalizeDatabaseName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateSlug checks a normalized slug
func ValidateSlug(slug string) error {
	if slug == "" {
		return &ValidationError{Field: "slug", Message: "is required"}
	}
	if len(slug) > maxIdentifierLength {
		return &ValidationError{Field: "slug", Message: "must be at most 63 characters"}
	}
	if !slugPattern.MatchString(slug) || strings.HasPrefix(slug, "-") || strings.HasSuffix(slug, "-") {
		return &ValidationError{Field: "slug", Message: "must contain only a-z, 0-9 and inner hyphens"}
	}
	return nil
}

// ValidateDatabaseName checks a normalized database name. The pattern is kept
// to what every supported engine accepts as an unquoted identifier.
func ValidateDatabaseName(name string) error {
	if name == "" {
		return &ValidationError{Field: "database_name", Message: "is required"}
	}
	if len(name) > maxIdentifierLength {
		return &ValidationError{Field: "database_name", Message: "must be at most 63 characters"}
	}
	if !databaseNamePattern.MatchString(name) {
		return &ValidationError{Field: "database_name", Message: "must match [a-z_][a-z0-9_]*"}
	}
	return nil
}

// DeriveDatabaseName builds the default database name for a slug. For a valid
// slug and prefix the result passes ValidateDatabaseName: it is cut to the
// identifier limit and gets a leading underscore instead of a leading digit.
func DeriveDatabaseName(prefix, slug string) string {
	name := NormalizeDatabaseName(prefix + strings.ReplaceAll(slug, "-", "_"))
	if name != "" && name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return truncateIdentifier(name, maxIdentifierLength)
}

// DatabaseNameCandidate returns the attempt-th name to try for base: base
// itself, then base_2, base_3 and so on. Base is shortened so the suffix
// always fits.
func DatabaseNameCandidate(base string, attempt int) string {
	if attempt <= 1 {
		return truncateIdentifier(base, maxIdentifierLength)
	}
	suffix := "_" + strconv.Itoa(attempt)
	return truncateIdentifier(base, maxIdentifierLength-len(suffix)) + suffix
}

// truncateIdentifier cuts name to n bytes. Valid identifiers are ASCII.
func truncateIdentifier(name string, n int) string {
	if len(name) > n {
		return name[:n]
	}
	return name
}
