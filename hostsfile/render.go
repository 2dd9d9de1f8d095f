package hostsfile

import (
	"strings"
)

// RenderEntry renders a single entry as one line, without the newline.
func RenderEntry(e Entry) string {
	if e.Type == TypeComment {
		return e.Text
	}
	line := e.Address + " " + strings.Join(e.Names, " ")
	if e.Comment != "" {
		line += " # " + e.Comment
	}
	return line
}

func renderLines(b *strings.Builder, entries []Entry, origin Origin) (n int) {
	for _, e := range entries {
		if e.Origin != origin {
			continue
		}
		b.WriteString(RenderEntry(e))
		b.WriteByte('\n')
		n++
	}
	return n
}

// Render produces the whole file: outer entries first, then the managed
// block between markers. No markers are written when nothing is managed.
// entries is not modified.
func Render(entries []Entry, markers Markers) string {
	var b strings.Builder
	renderLines(&b, entries, Outer)

	var managed strings.Builder
	if renderLines(&managed, entries, Managed) == 0 {
		return b.String()
	}
	b.WriteByte('\n')
	b.WriteString(markers.Begin)
	b.WriteByte('\n')
	b.WriteString(managed.String())
	b.WriteByte('\n')
	b.WriteString(markers.End)
	b.WriteByte('\n')
	return b.String()
}
