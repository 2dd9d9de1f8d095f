package hostsfile

import (
	"slices"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Sink receives a rendered hosts file.
type Sink interface {
	Write(contents string) error
	Location() string
}

// Persister stores the rendered hosts file and reads it back. Write must
// replace what Read returns; appending sinks are only usable with WriteTo.
type Persister interface {
	Sink
	Read() (string, error)
}

// Scope selects which entries an operation looks at.
type Scope int

const (
	ManagedOnly Scope = iota
	AllEntries
)

func (s Scope) includes(e Entry) bool {
	return s == AllEntries || e.Origin == Managed
}

// Hosts is an in-memory hosts file bound to a persister. It is not safe for
// concurrent use. Nothing guards against another process editing the file
// between Load and Write; the last writer wins.
type Hosts struct {
	persister Persister
	markers   Markers
	logger    zerolog.Logger

	entries []Entry
	skipped []SkippedLine
}

type Option func(*Hosts)

func WithMarkers(m Markers) Option {
	return func(h *Hosts) { h.markers = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(h *Hosts) { h.logger = l }
}

// New returns an empty collection. Call Load to read the persister.
func New(p Persister, opts ...Option) *Hosts {
	h := &Hosts{
		persister: p,
		markers:   DefaultMarkers,
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hosts) Markers() Markers { return h.markers }

// Load replaces the in-memory entries with the persister's contents. On
// failure it returns an *UnreadableError and leaves the entries alone.
func (h *Hosts) Load() error {
	contents, err := h.persister.Read()
	if err != nil {
		return errors.WithStack(&UnreadableError{Location: h.persister.Location(), Err: err})
	}
	h.LoadString(contents)
	return nil
}

// LoadString is Load from an in-memory source.
func (h *Hosts) LoadString(contents string) {
	h.entries, h.skipped = Parse(contents, h.markers)
	for _, s := range h.skipped {
		h.logger.Warn().
			Str("location", h.location()).
			Int("line", s.Number).
			Str("text", s.Text).
			Msg("skipping unrecognised hosts line")
	}
	h.logger.Debug().
		Str("location", h.location()).
		Int("entries", len(h.entries)).
		Int("managed", h.countManaged()).
		Msg("loaded hosts file")
}

func (h *Hosts) location() string {
	if h.persister == nil {
		return ""
	}
	return h.persister.Location()
}

func (h *Hosts) countManaged() (n int) {
	for _, e := range h.entries {
		if e.Origin == Managed {
			n++
		}
	}
	return n
}

// Skipped returns the lines dropped by the last load.
func (h *Hosts) Skipped() []SkippedLine {
	return slices.Clone(h.skipped)
}

// Write renders the collection to the bound persister.
func (h *Hosts) Write() error {
	return h.WriteTo(h.persister)
}

// WriteTo renders the collection to p. The in-memory entries are unchanged.
func (h *Hosts) WriteTo(p Sink) error {
	if err := p.Write(h.String()); err != nil {
		return errors.Wrapf(err, "cannot write: %s", p.Location())
	}
	h.logger.Debug().
		Str("location", p.Location()).
		Int("managed", h.countManaged()).
		Msg("wrote hosts file")
	return nil
}

func (h *Hosts) String() string {
	return Render(h.entries, h.markers)
}

func (h *Hosts) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// Entries returns a copy of the entries in memory order.
func (h *Hosts) Entries() []Entry {
	out := make([]Entry, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.Clone()
	}
	return out
}

func (h *Hosts) Len() int { return len(h.entries) }

// Add inserts e as a managed entry. Each of its names is first stripped from
// every other entry, managed or not; entries left without names are dropped.
// The new entry is always appended, even if the same pair already existed.
// An explicit Kind must agree with the address literal when it parses.
func (h *Hosts) Add(e Entry) error {
	if e.Type != TypeAddress || e.Address == "" || len(e.Names) == 0 {
		return ErrInvalidRecord
	}
	if kind, ok := KindOf(e.Address); ok && e.Kind != KindUnknown && e.Kind != kind {
		return errors.Wrapf(ErrKindMismatch, "%s is %s, not %s", e.Address, kind, e.Kind)
	}
	for _, name := range e.Names {
		h.removeName(name, AllEntries)
	}
	e = e.Clone()
	e.Origin = Managed
	if e.Kind == KindUnknown {
		e.Kind = NewRecord(e.Address).Kind
	}
	h.entries = append(h.entries, e)
	return nil
}

// AddPair adds a single name for address.
func (h *Hosts) AddPair(address, name string) error {
	return h.Add(NewRecord(address, name))
}

// AddPairKind adds a single name for address with an explicit kind.
func (h *Hosts) AddPairKind(address, name string, kind AddressKind) error {
	e := NewRecord(address, name)
	e.Kind = kind
	return h.Add(e)
}

// Remove strips name from every entry in scope, dropping entries left
// without names. Removing an unknown name does nothing.
func (h *Hosts) Remove(name string, scope Scope) {
	h.removeName(name, scope)
}

func (h *Hosts) removeName(name string, scope Scope) {
	kept := h.entries[:0]
	for _, e := range h.entries {
		if scope.includes(e) {
			var ok bool
			if e, ok = e.withoutName(name); !ok {
				continue
			}
		}
		kept = append(kept, e)
	}
	clear(h.entries[len(kept):])
	h.entries = kept
}

// Clear drops every entry in scope.
func (h *Hosts) Clear(scope Scope) {
	if scope == AllEntries {
		h.entries = nil
		return
	}
	h.entries = slices.DeleteFunc(h.entries, func(e Entry) bool {
		return e.Origin == Managed
	})
}
