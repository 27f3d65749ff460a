package prefixutil

import (
	"net/netip"

	"github.com/gaissmai/bart"
)

// Index is a longest-prefix-match table. The health checker uses it to map
// every node's announced prefixes back to that node's name, so it can
// confirm an address is still owned by the node it is about to ping and
// flag two nodes claiming an overlapping prefix, grounded on
// core/router.go's use of bart.Table for the forwarding table.
type Index[V any] struct {
	table bart.Table[V]
}

func NewIndex[V any]() *Index[V] {
	return &Index[V]{}
}

func (idx *Index[V]) Insert(prefix netip.Prefix, value V) {
	idx.table.Insert(prefix, value)
}

func (idx *Index[V]) Delete(prefix netip.Prefix) {
	idx.table.Delete(prefix)
}

// Lookup returns the most specific registered prefix covering addr, if any.
func (idx *Index[V]) Lookup(addr netip.Addr) (V, bool) {
	return idx.table.Lookup(addr)
}
