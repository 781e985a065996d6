// Package format renders outbound text within platform constraints.
package format

import (
	"fmt"
	"strings"
)

// MaxMessageLength is the platform's hard cap on a single message.
const MaxMessageLength = 4096

// Split partitions text into consecutive chunks of at most maxLen
// characters. Boundaries are purely positional; no attempt is made to
// break on words.
func Split(text string, maxLen int) []string {
	// A non-positive length cannot partition anything.
	if maxLen <= 0 {
		return []string{text}
	}

	runes := []rune(text)
	if len(runes) <= maxLen {
		return []string{text}
	}

	chunks := make([]string, 0, (len(runes)+maxLen-1)/maxLen)
	for start := 0; start < len(runes); start += maxLen {
		end := min(start+maxLen, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

var markupEscaper = strings.NewReplacer(
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
)

// EscapeMarkup backslash-prefixes the platform's reserved markup
// characters, leaving everything else unchanged.
func EscapeMarkup(text string) string {
	return markupEscaper.Replace(text)
}

// Code wraps code in a language-tagged fence, embedding it unmodified.
func Code(code, language string) string {
	return fmt.Sprintf("```%s\n%s\n```", language, code)
}

// List renders items one per line, numbered as "1. item" or bulleted as
// "• item", in input order.
func List(items []string, numbered bool) string {
	lines := make([]string, len(items))
	for i, item := range items {
		if numbered {
			lines[i] = fmt.Sprintf("%d. %s", i+1, item)
		} else {
			lines[i] = "• " + item
		}
	}
	return strings.Join(lines, "\n")
}
