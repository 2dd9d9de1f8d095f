// Package hostsfile manages a delimited block of entries inside a hosts file.
//
// A hosts file is split into outer entries, owned by whoever else edits the
// file, and a single managed block bounded by two marker comments. Outer
// entries keep their relative order across a load/write cycle; the managed
// block is rewritten as a whole on every write.
package hostsfile

import (
	"net/netip"
	"slices"
	"strings"
)

type EntryType int

const (
	TypeComment EntryType = iota
	TypeAddress
)

// Origin records whether an entry was found inside the managed block.
type Origin int

const (
	Outer Origin = iota
	Managed
)

func (o Origin) String() string {
	if o == Managed {
		return "managed"
	}
	return "outer"
}

type AddressKind int

const (
	KindUnknown AddressKind = iota
	KindV4
	KindV6
)

func (k AddressKind) String() string {
	switch k {
	case KindV4:
		return "v4"
	case KindV6:
		return "v6"
	}
	return "unknown"
}

// KindOf classifies an address literal. ok is false if it is neither.
func KindOf(address string) (kind AddressKind, ok bool) {
	addr, err := netip.ParseAddr(address)
	if err != nil {
		return KindUnknown, false
	}
	if addr.Is4() {
		return KindV4, true
	}
	return KindV6, true
}

// Entry is one line of a hosts file.
//
// Comment entries only use Text, which holds the whole line including the
// leading '#'. Address entries use Address, Kind, Names and the optional
// trailing Comment.
type Entry struct {
	Type   EntryType
	Origin Origin

	Text string

	Address string
	Kind    AddressKind
	Names   []string
	Comment string
}

// NewRecord builds an address entry. The kind is taken from the literal and
// falls back to v4 when the literal does not parse.
func NewRecord(address string, names ...string) Entry {
	kind, ok := KindOf(address)
	if !ok {
		kind = KindV4
	}
	return Entry{
		Type:    TypeAddress,
		Address: address,
		Kind:    kind,
		Names:   slices.Clone(names),
	}
}

func NewComment(text string) Entry {
	if !strings.HasPrefix(strings.TrimSpace(text), "#") {
		text = "# " + text
	}
	return Entry{Type: TypeComment, Text: text}
}

func (e Entry) IsComment() bool { return e.Type == TypeComment }
func (e Entry) IsManaged() bool { return e.Origin == Managed }

// Name returns the canonical name.
func (e Entry) Name() string {
	if len(e.Names) == 0 {
		return ""
	}
	return e.Names[0]
}

func (e Entry) HasName(name string) bool {
	return slices.Contains(e.Names, name)
}

func (e Entry) Clone() Entry {
	e.Names = slices.Clone(e.Names)
	return e
}

func (e Entry) String() string {
	return RenderEntry(e)
}

// withoutName returns the entry minus name and whether anything is left of it.
// Comments are always kept.
func (e Entry) withoutName(name string) (Entry, bool) {
	if e.Type != TypeAddress || !e.HasName(name) {
		return e, true
	}
	names := slices.DeleteFunc(slices.Clone(e.Names), func(n string) bool {
		return n == name
	})
	if len(names) == 0 {
		return e, false
	}
	e.Names = names
	return e, true
}
