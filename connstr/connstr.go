// Package connstr manipulates ADO-style "key=value;" connection strings as
// accepted by the SQL Server driver.
package connstr

import (
	"regexp"
	"strings"
)

const (
	// KeyUserID is the canonical username key.
	KeyUserID = "User ID"

	// KeyPassword is the canonical password key.
	KeyPassword = "Password"

	// KeyDatabase is the canonical database key.
	KeyDatabase = "Database"
)

// aliases rewrites alternate key spellings at the start of a field, with
// optional surrounding whitespace.
var aliases = []struct {
	pattern   *regexp.Regexp
	canonical string
}{
	{regexp.MustCompile(`(?i)^(\s*)(?:username|user)(\s*)=`), KeyUserID},
	{regexp.MustCompile(`(?i)^(\s*)pwd(\s*)=`), KeyPassword},
}

// Normalize rewrites username=, user= and pwd= keys to their canonical form.
// The rest of the string, quoted values included, is left untouched.
// Normalize is idempotent.
func Normalize(raw string) string {
	parts := split(raw)
	for i, part := range parts {
		for _, a := range aliases {
			part = a.pattern.ReplaceAllString(part, "${1}"+a.canonical+"${2}=")
		}
		parts[i] = part
	}
	return strings.Join(parts, ";")
}

// Field is one key/value pair of a connection string.
type Field struct {
	Key   string
	Value string
}

// Fields is an ordered connection string.
type Fields []Field

// Parse splits raw on ';' into fields. Empty segments are dropped and
// segments without '=' are kept with an empty value. A value wrapped in
// double or single quotes may contain ';'; the quotes are kept.
func Parse(raw string) Fields {
	var fields Fields
	for _, part := range split(raw) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		fields = append(fields, Field{Key: strings.TrimSpace(key), Value: strings.TrimSpace(value)})
	}
	return fields
}

// Get returns the value of key, compared case-insensitively.
func (f Fields) Get(key string) (string, bool) {
	for _, field := range f {
		if strings.EqualFold(field.Key, key) {
			return field.Value, true
		}
	}
	return "", false
}

// Set replaces every key in keys with a single key=value pair, kept at the
// position of the first match or appended.
func (f Fields) Set(key, value string, keys ...string) Fields {
	match := append([]string{key}, keys...)
	out := make(Fields, 0, len(f)+1)
	placed := false
	for _, field := range f {
		if !equalsAny(field.Key, match) {
			out = append(out, field)
			continue
		}
		if !placed {
			out = append(out, Field{Key: key, Value: value})
			placed = true
		}
	}
	if !placed {
		out = append(out, Field{Key: key, Value: value})
	}
	return out
}

// String joins the fields back into "key=value;" form.
func (f Fields) String() string {
	var b strings.Builder
	for _, field := range f {
		b.WriteString(field.Key)
		b.WriteByte('=')
		b.WriteString(field.Value)
		b.WriteByte(';')
	}
	return b.String()
}

// WithDatabase returns raw scoped to database. Both Database and Initial
// Catalog keys are replaced. The result is normalized.
func WithDatabase(raw, database string) string {
	return Parse(Normalize(raw)).Set(KeyDatabase, database, "Initial Catalog").String()
}

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Expand substitutes {name} placeholders in template with vars, matched
// case-insensitively, in a single pass: substituted values are never
// expanded again. Values that would break the key=value;... form are quoted
// with Quote. Unknown placeholders are left in place.
func Expand(template string, vars map[string]string) string {
	lookup := make(map[string]string, len(vars))
	for name, value := range vars {
		lookup[strings.ToLower(name)] = value
	}

	return placeholder.ReplaceAllStringFunc(template, func(match string) string {
		value, ok := lookup[strings.ToLower(match[1:len(match)-1])]
		if !ok {
			return match
		}
		return Quote(value)
	})
}

// Quote returns value wrapped in double quotes, with inner double quotes
// doubled, when it contains ';', a quote character or surrounding
// whitespace. Other values are returned unchanged.
func Quote(value string) string {
	if !strings.ContainsAny(value, `;"'`) && value == strings.TrimSpace(value) {
		return value
	}
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

// split cuts raw on ';' outside quoted values. A value is quoted when its
// first non-space character after '=' is a quote; a doubled quote inside it
// is an escaped quote.
func split(raw string) []string {
	var parts []string
	start := 0
	inValue := false
	var quote byte

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case quote != 0:
			if c == quote {
				if i+1 < len(raw) && raw[i+1] == quote {
					i++
					continue
				}
				quote = 0
			}
		case c == ';':
			parts = append(parts, raw[start:i])
			start = i + 1
			inValue = false
		case c == '=' && !inValue:
			inValue = true
			j := i + 1
			for j < len(raw) && (raw[j] == ' ' || raw[j] == '\t') {
				j++
			}
			if j < len(raw) && (raw[j] == '"' || raw[j] == '\'') {
				quote = raw[j]
				i = j
			}
		}
	}
	return append(parts, raw[start:])
}

func equalsAny(key string, candidates []string) bool {
	for _, c := range candidates {
		if strings.EqualFold(key, c) {
			return true
		}
	}
	return false
}
