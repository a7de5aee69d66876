package facts

import "strings"

// Render formats facts as "category - value" lines wrapped in newlines so the
// block can be spliced into a sentence. An empty store renders as "\n\n".
func Render(s *Store) string {
	var entries []Entry
	if s != nil {
		entries = s.Entries()
	}
	return RenderEntries(entries)
}

// RenderEntries renders an already captured snapshot of facts.
func RenderEntries(entries []Entry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Category+" - "+e.Value)
	}
	var b strings.Builder
	b.WriteByte('\n')
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteByte('\n')
	return b.String()
}
