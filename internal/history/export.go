// ABOUTME: Renders the selection history as a Markdown report
// ABOUTME: HTML output is the same report converted with goldmark

package history

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/yuin/goldmark"

	"github.com/2389/spinwheel/internal/participants"
)

const timestampLayout = "2006-01-02 15:04:05 UTC"

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"`", "\\`",
	"*", `\*`,
	"_", `\_`,
	"[", `\[`,
	"]", `\]`,
	"<", `\<`,
	">", `\>`,
	"#", `\#`,
	"|", `\|`,
)

// escapeMarkdown keeps a name inline: control characters, line breaks
// included, become spaces and markdown punctuation is escaped.
func escapeMarkdown(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	return markdownEscaper.Replace(s)
}

// Markdown renders entries newest first.
func Markdown(entries []Entry) string {
	var b strings.Builder
	b.WriteString("# Selection history\n\n")

	if len(entries) == 0 {
		b.WriteString("_No selections yet._\n")
		return b.String()
	}

	for i, e := range entries {
		when := time.UnixMilli(e.Timestamp).UTC().Format(timestampLayout)
		fmt.Fprintf(&b, "%d. **%s** won from %d participants (%s)\n",
			i+1, escapeMarkdown(e.Winner.Name), len(e.Participants), when)
		if len(e.Participants) > 0 {
			fmt.Fprintf(&b, "   Participants: %s\n", joinNames(e.Participants))
		}
	}
	return b.String()
}

func joinNames(ps []participants.Participant) string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = escapeMarkdown(p.Name)
	}
	return strings.Join(names, ", ")
}

// HTML renders entries as an HTML fragment.
func HTML(entries []Entry) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(Markdown(entries)), &buf); err != nil {
		return "", fmt.Errorf("rendering history html: %w", err)
	}
	return buf.String(), nil
}

// Markdown renders the ledger's current history.
func (l *Ledger) Markdown() string {
	return Markdown(l.History())
}

// HTML renders the ledger's current history as HTML.
func (l *Ledger) HTML() (string, error) {
	return HTML(l.History())
}
