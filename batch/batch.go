// Package batch splits SQL scripts into independently executable batches.
package batch

import (
	"bufio"
	"strings"
)

// DefaultSeparator is the sqlcmd batch separator.
const DefaultSeparator = "GO"

// Split splits script on lines equal to GO, ignoring case and surrounding
// whitespace. Batches are trimmed and returned in source order; empty batches
// are dropped. A script without a separator yields one batch.
func Split(script string) []string {
	return SplitWith(script, DefaultSeparator)
}

// SplitWith is Split with a custom separator keyword.
func SplitWith(script, separator string) []string {
	batches := []string{}
	var current strings.Builder

	flush := func() {
		if b := strings.TrimSpace(current.String()); b != "" {
			batches = append(batches, b)
		}
		current.Reset()
	}

	scanner := bufio.NewScanner(strings.NewReader(script))
	scanner.Buffer(make([]byte, 0, 64*1024), len(script)+1)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.EqualFold(strings.TrimSpace(line), separator) {
			flush()
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	flush()

	return batches
}

// FromMarker returns the batches starting at the first one that contains
// marker, compared case-insensitively. It reports false when no batch does.
func FromMarker(batches []string, marker string) ([]string, bool) {
	needle := strings.ToLower(marker)
	for i, b := range batches {
		if strings.Contains(strings.ToLower(b), needle) {
			return batches[i:], true
		}
	}
	return nil, false
}
