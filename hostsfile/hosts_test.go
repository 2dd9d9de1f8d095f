package hostsfile

import (
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type memPersister struct {
	contents string
	readErr  error
	writeErr error
	writes   int
}

func (m *memPersister) Read() (string, error) {
	if m.readErr != nil {
		return "", m.readErr
	}
	return m.contents, nil
}

func (m *memPersister) Write(contents string) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.contents = contents
	m.writes++
	return nil
}

func (m *memPersister) Location() string { return "memory" }

func newTestHosts(t *testing.T, contents string) (*Hosts, *memPersister) {
	t.Helper()

	p := &memPersister{contents: contents}
	h := New(p, WithMarkers(testMarkers), WithLogger(zerolog.New(io.Discard)))
	if err := h.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return h, p
}

type nameOwner struct {
	Address string
	Origin  Origin
}

func owners(h *Hosts, name string) []nameOwner {
	var out []nameOwner
	for _, e := range h.Entries() {
		if e.HasName(name) {
			out = append(out, nameOwner{e.Address, e.Origin})
		}
	}
	return out
}

const sampleHosts = `# static
127.0.0.1 localhost
10.9.9.9 shared legacy # set by hand

# BEGIN cluster
10.0.0.1 node-1
10.0.0.2 node-2 node-2.cluster

# END cluster
`

func TestAddThenShadow(t *testing.T) {
	t.Parallel()

	h, _ := newTestHosts(t, "")
	if err := h.AddPair("10.0.0.1", "a"); err != nil {
		t.Fatal(err)
	}
	if err := h.AddPair("10.0.0.2", "a"); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"10.0.0.2"}, h.AddressesByName("a", ManagedOnly)); diff != "" {
		t.Errorf("AddressesByName mismatch (-want +got):\n%s", diff)
	}
	if h.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (emptied record must be dropped)", h.Len())
	}
}

func TestAddPartialShadow(t *testing.T) {
	t.Parallel()

	h, _ := newTestHosts(t, "")
	if err := h.Add(NewRecord("10.0.0.1", "a", "b")); err != nil {
		t.Fatal(err)
	}
	if err := h.AddPair("10.0.0.2", "b"); err != nil {
		t.Fatal(err)
	}

	want := []Entry{
		{Type: TypeAddress, Origin: Managed, Address: "10.0.0.1", Kind: KindV4, Names: []string{"a"}},
		{Type: TypeAddress, Origin: Managed, Address: "10.0.0.2", Kind: KindV4, Names: []string{"b"}},
	}
	if diff := cmp.Diff(want, h.Entries()); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestAddEvictsFromOuterEntries(t *testing.T) {
	t.Parallel()

	h, _ := newTestHosts(t, sampleHosts)
	if err := h.AddPair("10.0.0.5", "shared"); err != nil {
		t.Fatal(err)
	}

	want := []nameOwner{{"10.0.0.5", Managed}}
	if diff := cmp.Diff(want, owners(h, "shared")); diff != "" {
		t.Errorf("owners mismatch (-want +got):\n%s", diff)
	}
	// The outer record keeps its other name and its provenance.
	if diff := cmp.Diff([]nameOwner{{"10.9.9.9", Outer}}, owners(h, "legacy")); diff != "" {
		t.Errorf("legacy owners mismatch (-want +got):\n%s", diff)
	}
}

func TestAddForcesDuplicatePair(t *testing.T) {
	t.Parallel()

	h, _ := newTestHosts(t, sampleHosts)
	before := h.Len()
	if err := h.AddPair("10.0.0.1", "node-1"); err != nil {
		t.Fatal(err)
	}
	if h.Len() != before {
		t.Errorf("Len() = %d, want %d", h.Len(), before)
	}
	entries := h.Entries()
	last := entries[len(entries)-1]
	if last.Name() != "node-1" || last.Origin != Managed {
		t.Errorf("last entry = %+v, want re-added node-1", last)
	}
}

func TestAddInfersKind(t *testing.T) {
	t.Parallel()

	h, _ := newTestHosts(t, "")
	if err := h.Add(Entry{Type: TypeAddress, Address: "fd00::10", Names: []string{"v6-node"}}); err != nil {
		t.Fatal(err)
	}
	if got := h.Entries()[0].Kind; got != KindV6 {
		t.Errorf("Kind = %s, want v6", got)
	}
}

func TestAddRejectsInvalidRecords(t *testing.T) {
	t.Parallel()

	h, _ := newTestHosts(t, "")
	for _, e := range []Entry{
		NewComment("just a comment"),
		NewRecord("10.0.0.1"),
		{Type: TypeAddress, Names: []string{"nameless"}},
	} {
		if err := h.Add(e); !errors.Is(err, ErrInvalidRecord) {
			t.Errorf("Add(%+v) error = %v, want ErrInvalidRecord", e, err)
		}
	}
	if h.Len() != 0 {
		t.Errorf("Len() = %d, want 0", h.Len())
	}
}

func TestAddChecksExplicitKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		address string
		kind    AddressKind
		wantErr bool
	}{
		{name: "v4 as v4", address: "10.0.0.1", kind: KindV4},
		{name: "v6 as v6", address: "fd00::1", kind: KindV6},
		{name: "unknown is inferred", address: "fd00::2", kind: KindUnknown},
		{name: "v4 claimed as v6", address: "10.0.0.3", kind: KindV6, wantErr: true},
		{name: "v6 claimed as v4", address: "fd00::4", kind: KindV4, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h, _ := newTestHosts(t, "")
			err := h.AddPairKind(tt.address, "node", tt.kind)
			if tt.wantErr {
				if !errors.Is(err, ErrKindMismatch) {
					t.Fatalf("AddPairKind() error = %v, want ErrKindMismatch", err)
				}
				if h.Len() != 0 {
					t.Errorf("Len() = %d after a rejected add", h.Len())
				}
				return
			}
			if err != nil {
				t.Fatalf("AddPairKind() error = %v", err)
			}
			want, _ := KindOf(tt.address)
			if got := h.Entries()[0].Kind; got != want {
				t.Errorf("Kind = %s, want %s", got, want)
			}
		})
	}
}

func TestAddDoesNotAliasCallerNames(t *testing.T) {
	t.Parallel()

	h, _ := newTestHosts(t, "")
	e := NewRecord("10.0.0.1", "a", "b")
	if err := h.Add(e); err != nil {
		t.Fatal(err)
	}
	e.Names[0] = "mutated"
	if h.Has("mutated") || !h.Has("a") {
		t.Errorf("collection shares the caller's name slice")
	}
}

func TestNamesUniqueAfterAdds(t *testing.T) {
	t.Parallel()

	h, _ := newTestHosts(t, sampleHosts)
	names := []string{"a", "b", "c", "node-1", "shared", "localhost"}
	for i := 0; i < 40; i++ {
		addr := fmt.Sprintf("10.1.%d.%d", i/7, i%7)
		if i%3 == 0 {
			if err := h.Add(NewRecord(addr, names[i%len(names)], names[(i+1)%len(names)])); err != nil {
				t.Fatal(err)
			}
			continue
		}
		if err := h.AddPair(addr, names[(i*5)%len(names)]); err != nil {
			t.Fatal(err)
		}
	}

	seen := map[string]int{}
	for _, e := range h.Entries() {
		for _, n := range e.Names {
			seen[n]++
		}
	}
	for n, c := range seen {
		if c > 1 {
			t.Errorf("name %q owned by %d entries", n, c)
		}
	}
}

func TestRemoveScoping(t *testing.T) {
	t.Parallel()

	h, _ := newTestHosts(t, sampleHosts+"10.9.9.8 outer-dup\n")
	// Put the same name into both classes without going through Add.
	h.entries = append(h.entries, Entry{Type: TypeAddress, Origin: Managed, Address: "10.0.0.8", Kind: KindV4, Names: []string{"outer-dup", "extra"}})

	h.Remove("outer-dup", ManagedOnly)
	if diff := cmp.Diff([]nameOwner{{"10.9.9.8", Outer}}, owners(h, "outer-dup")); diff != "" {
		t.Errorf("default scope touched outer entries (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"10.0.0.8"}, h.AddressesByName("extra", ManagedOnly)); diff != "" {
		t.Errorf("managed entry should shrink, not vanish (-want +got):\n%s", diff)
	}

	h.Remove("outer-dup", AllEntries)
	if got := owners(h, "outer-dup"); len(got) != 0 {
		t.Errorf("outer-dup still owned by %v", got)
	}

	before := h.Entries()
	h.Remove("does-not-exist", AllEntries)
	if diff := cmp.Diff(before, h.Entries()); diff != "" {
		t.Errorf("removing an unknown name changed the collection:\n%s", diff)
	}
}

func TestRemoveShrinksMultiNameEntry(t *testing.T) {
	t.Parallel()

	h, _ := newTestHosts(t, sampleHosts)
	h.Remove("node-2", ManagedOnly)
	if diff := cmp.Diff([]string{"node-2.cluster"}, h.NamesByAddress("10.0.0.2", ManagedOnly)); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	h, _ := newTestHosts(t, sampleHosts)
	outer := h.Len() - 2

	h.Clear(ManagedOnly)
	once := h.Entries()
	if len(once) != outer {
		t.Fatalf("after Clear(ManagedOnly) Len() = %d, want %d", len(once), outer)
	}
	if h.Contains(Query{}, ManagedOnly) {
		t.Errorf("managed scope still non-empty")
	}

	h.Clear(ManagedOnly)
	if diff := cmp.Diff(once, h.Entries()); diff != "" {
		t.Errorf("second Clear changed the collection:\n%s", diff)
	}

	h.Clear(AllEntries)
	if h.Len() != 0 {
		t.Errorf("Clear(AllEntries) left %d entries", h.Len())
	}
	h.Clear(AllEntries)
	if h.Len() != 0 {
		t.Errorf("second Clear(AllEntries) left %d entries", h.Len())
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	h, p := newTestHosts(t, sampleHosts)
	if err := h.AddPair("fd00::7", "v6-node"); err != nil {
		t.Fatal(err)
	}
	if err := h.Write(); err != nil {
		t.Fatal(err)
	}

	reloaded := New(p, WithMarkers(testMarkers), WithLogger(zerolog.New(io.Discard)))
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}

	byOrigin := func(entries []Entry, o Origin) (out []Entry) {
		for _, e := range entries {
			if e.Origin == o {
				out = append(out, e)
			}
		}
		return out
	}
	for _, o := range []Origin{Outer, Managed} {
		if diff := cmp.Diff(byOrigin(h.Entries(), o), byOrigin(reloaded.Entries(), o)); diff != "" {
			t.Errorf("%s entries differ after round trip (-written +reloaded):\n%s", o, diff)
		}
	}
	if got := strings.Count(p.contents, testMarkers.Begin); got != 1 {
		t.Errorf("begin marker written %d times", got)
	}
}

func TestWriteLeavesCollectionIntact(t *testing.T) {
	t.Parallel()

	h, p := newTestHosts(t, sampleHosts)
	before := h.Entries()
	if err := h.Write(); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(before, h.Entries()); diff != "" {
		t.Errorf("Write changed the collection (-before +after):\n%s", diff)
	}
	if p.writes != 1 {
		t.Errorf("writes = %d, want 1", p.writes)
	}
}

func TestWriteWithoutManagedEntries(t *testing.T) {
	t.Parallel()

	h, p := newTestHosts(t, sampleHosts)
	h.Clear(ManagedOnly)
	if err := h.Write(); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(p.contents, testMarkers.Begin) || strings.Contains(p.contents, testMarkers.End) {
		t.Errorf("markers written for an empty managed block:\n%s", p.contents)
	}
}

func TestWriteTo(t *testing.T) {
	t.Parallel()

	h, p := newTestHosts(t, sampleHosts)
	other := &memPersister{}
	if err := h.WriteTo(other); err != nil {
		t.Fatal(err)
	}
	if other.contents != h.String() {
		t.Errorf("WriteTo wrote %q, want %q", other.contents, h.String())
	}
	if p.writes != 0 {
		t.Errorf("bound persister written %d times", p.writes)
	}

	failing := &memPersister{writeErr: os.ErrPermission}
	if err := h.WriteTo(failing); !errors.Is(err, os.ErrPermission) {
		t.Errorf("WriteTo error = %v, want wrapped ErrPermission", err)
	}
}

func TestLoadUnreadable(t *testing.T) {
	t.Parallel()

	h, p := newTestHosts(t, sampleHosts)
	before := h.Entries()

	p.readErr = os.ErrNotExist
	err := h.Load()

	var unreadable *UnreadableError
	if !errors.As(err, &unreadable) {
		t.Fatalf("Load() error = %v, want *UnreadableError", err)
	}
	if unreadable.Location != "memory" || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("unexpected error details: %v", err)
	}
	if diff := cmp.Diff(before, h.Entries()); diff != "" {
		t.Errorf("failed Load changed the collection:\n%s", diff)
	}
}

func TestLoadReportsSkippedLines(t *testing.T) {
	t.Parallel()

	h, _ := newTestHosts(t, "garbage line\n127.0.0.1 localhost\n")
	if diff := cmp.Diff([]SkippedLine{{Number: 1, Text: "garbage line"}}, h.Skipped()); diff != "" {
		t.Errorf("Skipped mismatch (-want +got):\n%s", diff)
	}

	h.LoadString("127.0.0.1 localhost\n")
	if len(h.Skipped()) != 0 {
		t.Errorf("Skipped not reset by a fresh load: %v", h.Skipped())
	}
}
