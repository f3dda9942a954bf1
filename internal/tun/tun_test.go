package tun

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func prefixes(ss ...string) []netip.Prefix {
	out := make([]netip.Prefix, len(ss))
	for i, s := range ss {
		out[i] = netip.MustParsePrefix(s)
	}
	return out
}

func TestSplitDefault(t *testing.T) {
	tests := []struct {
		name string
		in   []netip.Prefix
		want []netip.Prefix
	}{
		{"empty", nil, prefixes()},
		{"specific", prefixes("1.2.3.4/32", "10.0.0.1/8"), prefixes("1.2.3.4/32", "10.0.0.0/8")},
		{"v4 default", prefixes("0.0.0.0/0"), prefixes("0.0.0.0/1", "128.0.0.0/1")},
		{"v6 default", prefixes("::/0"), prefixes("::/1", "8000::/1")},
		{"dedup", prefixes("10.0.0.0/8", "10.1.0.0/8", "0.0.0.0/0", "0.0.0.0/1"), prefixes("10.0.0.0/8", "0.0.0.0/1", "128.0.0.0/1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitDefault(tt.in))
		})
	}
}

func TestCovers(t *testing.T) {
	routes := prefixes("0.0.0.0/1", "128.0.0.0/1")
	assert.True(t, Covers(routes, netip.MustParseAddr("5.6.7.8")))
	assert.False(t, Covers(routes, netip.MustParseAddr("2001:db8::1")))
	assert.False(t, Covers(nil, netip.MustParseAddr("5.6.7.8")))
}

func TestNew_Defaults(t *testing.T) {
	a := New(Config{})
	assert.Equal(t, 1420, a.MTU())
	assert.Equal(t, 5, a.metric)
	assert.NotEmpty(t, a.Name())
	assert.False(t, a.IsUp())
	assert.Nil(t, a.Device())

	assert.ErrorIs(t, a.Configure(prefixes("10.64.0.2/32")), ErrNotCreated)
	assert.ErrorIs(t, a.SetRoutes(prefixes("0.0.0.0/0")), ErrNotCreated)
	assert.NoError(t, a.Close())
}
