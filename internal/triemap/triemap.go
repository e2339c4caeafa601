// Package triemap implements a map keyed by network prefixes, with
// longest-prefix-match lookup over individual addresses.
package triemap

import "net/netip"

// TrieMap maps netip.Prefix keys to values. IPv4 and IPv6 prefixes live in
// separate tries; IPv4-mapped IPv6 addresses are unmapped before lookup.
type TrieMap[T any] struct {
	v4 *node[T]
	v6 *node[T]
}

type node[T any] struct {
	children [2]*node[T]
	value    *T
}

// New creates an empty TrieMap.
func New[T any]() *TrieMap[T] {
	return &TrieMap[T]{v4: &node[T]{}, v6: &node[T]{}}
}

// Insert adds a value for the given prefix, replacing any existing value
// for the same prefix.
func (m *TrieMap[T]) Insert(prefix netip.Prefix, value T) {
	prefix = prefix.Masked()
	addr := prefix.Addr()
	bits := prefix.Bits()

	// An IPv4-mapped prefix covering at least the mapping prefix itself is
	// really an IPv4 prefix; narrower mapped prefixes stay in 16-byte form.
	if addr.Is4In6() && bits >= 96 {
		addr = addr.Unmap()
		bits -= 96
	}

	n := m.root(addr)
	bytes := addr.AsSlice()
	for i := 0; i < bits; i++ {
		bit := (bytes[i/8] >> (7 - i%8)) & 1
		if n.children[bit] == nil {
			n.children[bit] = &node[T]{}
		}
		n = n.children[bit]
	}

	n.value = &value
}

// Get returns the value of the longest prefix containing addr, reporting
// whether any prefix matched.
func (m *TrieMap[T]) Get(addr netip.Addr) (T, bool) {
	addr = addr.Unmap()

	n := m.root(addr)
	best := n.value
	bytes := addr.AsSlice()
	for i := 0; i < len(bytes)*8; i++ {
		bit := (bytes[i/8] >> (7 - i%8)) & 1
		n = n.children[bit]
		if n == nil {
			break
		}
		if n.value != nil {
			best = n.value
		}
	}

	if best == nil {
		var zero T
		return zero, false
	}
	return *best, true
}

func (m *TrieMap[T]) root(addr netip.Addr) *node[T] {
	if addr.Is4() {
		return m.v4
	}
	return m.v6
}
