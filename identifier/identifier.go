// Package identifier turns arbitrary project names into bounded SQL identifiers.
package identifier

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	// CatalogMaxLength bounds the short catalog name used for tenant databases.
	CatalogMaxLength = 10

	// DatabaseMaxLength bounds a full database name (SQL Server sysname length).
	DatabaseMaxLength = 128

	// DefaultPrefix is prepended to names that would start with a digit.
	DefaultPrefix = "db_"

	// DefaultFallback is returned when nothing usable remains.
	DefaultFallback = "tenant_db"
)

var (
	defaultInvalid = regexp.MustCompile(`[^A-Za-z0-9_]`)
	underscoreRuns = regexp.MustCompile(`_{2,}`)
	validName      = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Sanitizer rewrites candidates into identifiers safe to interpolate into DDL.
// The zero value is not usable; construct with New.
type Sanitizer struct {
	// MaxLength is the maximum number of characters in the result.
	MaxLength int

	// Prefix is prepended when the result would start with a digit.
	Prefix string

	// Fallback is returned for blank input or when nothing survives sanitizing.
	Fallback string

	// Invalid matches every character that must be replaced with an underscore.
	Invalid *regexp.Regexp
}

var (
	// Catalog produces short catalog names (at most 10 characters).
	Catalog = New(CatalogMaxLength)

	// Database produces full database names (at most 128 characters).
	Database = New(DatabaseMaxLength)
)

// New returns a Sanitizer with the default pattern, prefix and fallback.
func New(maxLength int) Sanitizer {
	return Sanitizer{
		MaxLength: maxLength,
		Prefix:    DefaultPrefix,
		Fallback:  DefaultFallback,
		Invalid:   defaultInvalid,
	}
}

// Sanitize never fails. The result matches Valid for the default pattern and
// is never longer than MaxLength.
func (s Sanitizer) Sanitize(candidate string) string {
	fallback := s.fallback()
	if strings.TrimSpace(candidate) == "" {
		return fallback
	}

	invalid := s.Invalid
	if invalid == nil {
		invalid = defaultInvalid
	}

	name := invalid.ReplaceAllString(candidate, "_")
	name = underscoreRuns.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return fallback
	}

	// Checked after trimming so "_1abc" cannot surface a leading digit.
	if startsWithDigit(name) {
		name = s.Prefix + name
		name = underscoreRuns.ReplaceAllString(name, "_")
	}

	name = truncate(name, s.MaxLength)
	if name == "" {
		return fallback
	}
	return name
}

func (s Sanitizer) fallback() string {
	if s.Fallback == "" {
		return truncate(DefaultFallback, s.MaxLength)
	}
	return truncate(s.Fallback, s.MaxLength)
}

// Valid reports whether name is a plain identifier of at most DatabaseMaxLength characters.
func Valid(name string) bool {
	return len(name) <= DatabaseMaxLength && validName.MatchString(name)
}

func startsWithDigit(s string) bool {
	for _, r := range s {
		return unicode.IsDigit(r)
	}
	return false
}

func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
