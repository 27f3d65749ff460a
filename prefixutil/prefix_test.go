package prefixutil

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNthPrefixIPv6(t *testing.T) {
	seed := netip.MustParsePrefix("face:b00c::/32")
	got, err := NthPrefix(seed, 37, 0)
	require.NoError(t, err)
	assert.Equal(t, netip.MustParsePrefix("face:b00c::/37"), got)
}

func TestNthPrefixIPv4(t *testing.T) {
	seed := netip.MustParsePrefix("10.1.0.0/16")
	got, err := NthPrefix(seed, 24, 110)
	require.NoError(t, err)
	assert.Equal(t, netip.MustParsePrefix("10.1.110.0/24"), got)
}

func TestNthPrefixOutOfRange(t *testing.T) {
	seed := netip.MustParsePrefix("10.1.0.0/16")
	_, err := NthPrefix(seed, 24, 256)
	assert.Error(t, err)
}

func TestNthPrefixAllocLenTooSmall(t *testing.T) {
	seed := netip.MustParsePrefix("10.1.0.0/16")
	_, err := NthPrefix(seed, 16, 0)
	assert.Error(t, err)
	_, err = NthPrefix(seed, 8, 0)
	assert.Error(t, err)
}

func TestMaskToLength(t *testing.T) {
	assert.Equal(t, 24, MaskToLength([]byte{0xff, 0xff, 0xff, 0x00}))
	assert.Equal(t, 0, MaskToLength([]byte{0x00, 0x00, 0x00, 0x00}))
	assert.Equal(t, 32, MaskToLength([]byte{0xff, 0xff, 0xff, 0xff}))
}

func TestLoopbackAddress(t *testing.T) {
	host := netip.MustParsePrefix("10.0.0.5/32")
	assert.Equal(t, netip.MustParseAddr("10.0.0.5"), LoopbackAddress(host))

	network := netip.MustParsePrefix("10.0.0.0/24")
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), LoopbackAddress(network))
}

func TestCoalescePrefixesMergesAdjacent(t *testing.T) {
	got := CoalescePrefixes([]netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/25"),
		netip.MustParsePrefix("10.0.0.128/25"),
	})
	assert.Equal(t, []netip.Prefix{netip.MustParsePrefix("10.0.0.0/24")}, got)
}

func TestCoalescePrefixesLeavesUnalignedPairApart(t *testing.T) {
	got := CoalescePrefixes([]netip.Prefix{
		netip.MustParsePrefix("face:b00c::1/128"),
		netip.MustParsePrefix("face:b00c::2/128"),
	})
	assert.ElementsMatch(t, []netip.Prefix{
		netip.MustParsePrefix("face:b00c::1/128"),
		netip.MustParsePrefix("face:b00c::2/128"),
	}, got)
}

func TestSubtractPrefixes(t *testing.T) {
	got := SubtractPrefixes(
		[]netip.Prefix{netip.MustParsePrefix("10.0.0.0/24")},
		[]netip.Prefix{netip.MustParsePrefix("10.0.0.128/25")},
	)
	assert.Equal(t, []netip.Prefix{netip.MustParsePrefix("10.0.0.0/25")}, got)
}

func TestIndexLookup(t *testing.T) {
	idx := NewIndex[string]()
	idx.Insert(netip.MustParsePrefix("10.0.0.0/8"), "a")
	idx.Insert(netip.MustParsePrefix("10.1.0.0/16"), "b")

	v, ok := idx.Lookup(netip.MustParseAddr("10.1.2.3"))
	require.True(t, ok)
	assert.Equal(t, "b", v)

	v, ok = idx.Lookup(netip.MustParseAddr("10.9.9.9"))
	require.True(t, ok)
	assert.Equal(t, "a", v)

	_, ok = idx.Lookup(netip.MustParseAddr("192.168.0.1"))
	assert.False(t, ok)
}
