package dns

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSameServers(t *testing.T) {
	a := netip.MustParseAddr("10.64.0.1")
	b := netip.MustParseAddr("10.64.0.2")

	assert.True(t, sameServers(nil, nil))
	assert.True(t, sameServers([]netip.Addr{a, b}, []netip.Addr{a, b}))
	assert.False(t, sameServers([]netip.Addr{a, b}, []netip.Addr{b, a}))
	assert.False(t, sameServers([]netip.Addr{a}, []netip.Addr{a, b}))
}

func TestConfigureWithoutServersIsNoop(t *testing.T) {
	m := NewManager()
	assert.NoError(t, m.Configure("tun0", nil))
	assert.Empty(t, m.Servers())
	assert.NoError(t, m.Reset())
}

func TestServerStrings(t *testing.T) {
	got := serverStrings([]netip.Addr{netip.MustParseAddr("10.64.0.1"), netip.MustParseAddr("fd00::1")})
	assert.Equal(t, []string{"10.64.0.1", "fd00::1"}, got)
}
