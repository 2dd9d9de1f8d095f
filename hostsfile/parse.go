package hostsfile

import (
	"strings"
)

// Markers are the comment lines bounding the managed block. They must match
// a whole line, byte for byte, to be recognised.
type Markers struct {
	Begin string
	End   string
}

// DefaultMarkers are the markers written by earlier cluster tooling, kept so
// existing hosts files keep parsing.
var DefaultMarkers = Markers{
	Begin: "# NTSG BEGIN записи узлов NTSG кластера",
	End:   "#  NTSG END",
}

// SkippedLine is a line that is neither a comment nor an address record.
type SkippedLine struct {
	Number int
	Text   string
}

type lineClass int

const (
	lineBlank lineClass = iota
	lineComment
	lineAddress
	lineUnknown
)

func classify(line string) (lineClass, AddressKind) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return lineBlank, KindUnknown
	}
	if trimmed[0] == '#' {
		return lineComment, KindUnknown
	}
	if kind, ok := KindOf(strings.Fields(trimmed)[0]); ok {
		return lineAddress, kind
	}
	return lineUnknown, KindUnknown
}

// ParseLine parses one line into an untagged entry. ok is false for blank
// and unrecognised lines.
func ParseLine(line string) (e Entry, ok bool) {
	line = strings.ReplaceAll(strings.TrimRight(line, "\n"), "\r", "")
	class, kind := classify(line)
	switch class {
	case lineComment:
		return Entry{Type: TypeComment, Text: line}, true
	case lineAddress:
		data, comment, found := strings.Cut(line, "#")
		fields := strings.Fields(data)
		if len(fields) < 2 {
			return Entry{}, false
		}
		e = Entry{
			Type:    TypeAddress,
			Address: fields[0],
			Kind:    kind,
			Names:   fields[1:],
		}
		if found {
			e.Comment = strings.TrimSpace(comment)
		}
		return e, true
	}
	return Entry{}, false
}

// Parse reads a whole hosts file. Entries between the markers are tagged
// Managed, everything else Outer; the marker lines themselves are not kept.
// A begin marker without an end marker makes the rest of the file managed.
func Parse(contents string, markers Markers) (entries []Entry, skipped []SkippedLine) {
	origin := Outer
	for i, line := range strings.Split(contents, "\n") {
		line = strings.ReplaceAll(line, "\r", "")
		if strings.TrimSpace(line) == "" {
			continue
		}

		e, ok := ParseLine(line)
		if !ok {
			skipped = append(skipped, SkippedLine{Number: i + 1, Text: line})
			continue
		}
		if e.Type == TypeComment {
			switch e.Text {
			case markers.Begin:
				origin = Managed
				continue
			case markers.End:
				origin = Outer
				continue
			}
		}
		e.Origin = origin
		entries = append(entries, e)
	}
	return entries, skipped
}
