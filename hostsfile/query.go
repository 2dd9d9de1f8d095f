package hostsfile

import (
	"github.com/dlclark/regexp2"
	"github.com/pkg/errors"
)

// Query filters entries for Contains. Empty fields match anything.
type Query struct {
	Name    string
	Address string
}

func (q Query) matches(e Entry) bool {
	if q.Name != "" && !e.HasName(q.Name) {
		return false
	}
	if q.Address != "" && e.Address != q.Address {
		return false
	}
	return true
}

func (h *Hosts) scan(scope Scope, fn func(e Entry) bool) {
	for _, e := range h.entries {
		if e.Type != TypeAddress || !scope.includes(e) {
			continue
		}
		if !fn(e) {
			return
		}
	}
}

// NamesByAddress returns the names of every entry for address, in order.
func (h *Hosts) NamesByAddress(address string, scope Scope) []string {
	var names []string
	h.scan(scope, func(e Entry) bool {
		if e.Address == address {
			names = append(names, e.Names...)
		}
		return true
	})
	return names
}

func (h *Hosts) AddressesByName(name string, scope Scope) []string {
	var addrs []string
	h.scan(scope, func(e Entry) bool {
		if e.HasName(name) {
			addrs = append(addrs, e.Address)
		}
		return true
	})
	return addrs
}

// AddressesByPattern returns the address of every entry with at least one
// name matched in full by pattern.
func (h *Hosts) AddressesByPattern(pattern string, scope Scope) ([]string, error) {
	// Compile alone first: an unbalanced pattern could otherwise close the
	// anchoring group and match a prefix.
	if _, err := regexp2.Compile(pattern, regexp2.None); err != nil {
		return nil, errors.Wrapf(err, "invalid name pattern %q", pattern)
	}
	re, err := regexp2.Compile(`\A(?:`+pattern+`)\z`, regexp2.None)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid name pattern %q", pattern)
	}

	var addrs []string
	h.scan(scope, func(e Entry) bool {
		for _, name := range e.Names {
			ok, merr := re.MatchString(name)
			if merr != nil {
				err = errors.Wrapf(merr, "matching %q", name)
				return false
			}
			if ok {
				addrs = append(addrs, e.Address)
				break
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return addrs, nil
}

// Contains reports whether an entry in scope satisfies every filter of q.
// An empty query asks whether the scope holds any entry at all.
func (h *Hosts) Contains(q Query, scope Scope) bool {
	if q == (Query{}) {
		for _, e := range h.entries {
			if scope.includes(e) {
				return true
			}
		}
		return false
	}

	found := false
	h.scan(scope, func(e Entry) bool {
		found = q.matches(e)
		return !found
	})
	return found
}

// Has reports whether name is in the managed block.
func (h *Hosts) Has(name string) bool {
	return h.Contains(Query{Name: name}, ManagedOnly)
}
