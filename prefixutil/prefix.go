// Package prefixutil implements the small CIDR-arithmetic library the
// specification's Glossary treats as an external contract: nth_prefix,
// mask-to-length, and loopback-address derivation. Set arithmetic
// (coalescing/subtracting prefixes) is grounded on state/config.go's use of
// github.com/cilium/cilium/pkg/ip, and is used by the health checker to
// aggregate a node's announced prefixes before deriving a ping target and
// before indexing them (index.go) for prefix-ownership lookups, the same
// family of table the teacher uses for its own forwarding table
// (core/router.go).
package prefixutil

import (
	"fmt"
	"net/netip"

	"github.com/cilium/cilium/pkg/ip"
)

// NthPrefix returns the i-th sub-prefix of length allocLen carved from seed,
// by placing i's binary value into the bits between seed's prefix length and
// allocLen.
func NthPrefix(seed netip.Prefix, allocLen int, i uint64) (netip.Prefix, error) {
	if !seed.IsValid() {
		return netip.Prefix{}, fmt.Errorf("nth_prefix: invalid seed prefix")
	}
	seed = seed.Masked()
	addr := seed.Addr()
	bitLen := addr.BitLen()
	if allocLen <= seed.Bits() {
		return netip.Prefix{}, fmt.Errorf("nth_prefix: alloc_len %d must be greater than seed prefix length %d", allocLen, seed.Bits())
	}
	if allocLen > bitLen {
		return netip.Prefix{}, fmt.Errorf("nth_prefix: alloc_len %d exceeds address width %d", allocLen, bitLen)
	}
	avail := allocLen - seed.Bits()
	if avail < 64 && i>>uint(avail) != 0 {
		return netip.Prefix{}, fmt.Errorf("nth_prefix: index %d does not fit in %d available bits", i, avail)
	}

	bytes := addr.AsSlice()
	// Write i's bits into [seed.Bits(), allocLen), most-significant-first,
	// immediately after the seed's own prefix bits.
	for bit := 0; bit < avail; bit++ {
		pos := seed.Bits() + bit
		byteIdx := pos / 8
		bitInByte := 7 - uint(pos%8)
		// value of i's bit, counting from the most significant available bit
		srcBit := (i >> uint(avail-1-bit)) & 1
		if srcBit == 1 {
			bytes[byteIdx] |= 1 << bitInByte
		} else {
			bytes[byteIdx] &^= 1 << bitInByte
		}
	}

	newAddr, ok := netip.AddrFromSlice(bytes)
	if !ok {
		return netip.Prefix{}, fmt.Errorf("nth_prefix: failed to rebuild address")
	}
	if addr.Is4In6() {
		newAddr = newAddr.Unmap()
	}
	return netip.PrefixFrom(newAddr, allocLen), nil
}

// MaskToLength counts the set bits of a contiguous, left-justified bitmask.
// Behavior on non-contiguous masks is undefined per the Glossary; callers
// must not supply them.
func MaskToLength(mask []byte) int {
	count := 0
	for _, b := range mask {
		for bit := 7; bit >= 0; bit-- {
			if b&(1<<uint(bit)) != 0 {
				count++
			} else {
				return count
			}
		}
	}
	return count
}

// LoopbackAddress returns the network address of prefix if it is a host
// route, else the network address plus one.
func LoopbackAddress(prefix netip.Prefix) netip.Addr {
	base := prefix.Masked().Addr()
	if prefix.Bits() == base.BitLen() {
		return base
	}
	next := base.Next()
	return next
}

// CoalescePrefixes merges adjacent/overlapping prefixes, delegating to
// cilium/pkg/ip's CIDR coalescing as the teacher does in state/config.go.
func CoalescePrefixes(prefixes []netip.Prefix) []netip.Prefix {
	ipv4, ipv6 := ip.CoalesceCIDRs(toIPNets(prefixes))
	return fromIPNets(append(ipv4, ipv6...))
}

// SubtractPrefixes removes excludes from includes.
func SubtractPrefixes(includes, excludes []netip.Prefix) []netip.Prefix {
	result := ip.RemoveCIDRs(toIPNets(includes), toIPNets(excludes))
	ipv4, ipv6 := ip.CoalesceCIDRs(result)
	return fromIPNets(append(ipv4, ipv6...))
}
