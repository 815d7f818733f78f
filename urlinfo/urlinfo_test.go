package urlinfo

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	addrs map[string][]netip.Addr
	cname map[string]string
	ptr   map[string][]string
}

func (f fakeResolver) LookupNetIP(_ context.Context, _, host string) ([]netip.Addr, error) {
	if a, ok := f.addrs[host]; ok {
		return a, nil
	}
	return nil, errors.New("no such host")
}

func (f fakeResolver) LookupCNAME(_ context.Context, host string) (string, error) {
	if c, ok := f.cname[host]; ok {
		return c, nil
	}
	return host + ".", nil
}

func (f fakeResolver) LookupAddr(_ context.Context, addr string) ([]string, error) {
	return f.ptr[addr], nil
}

func TestParse(t *testing.T) {
	cases := []struct {
		raw    string
		scheme string
		host   string
		port   int
		path   string
	}{
		{"https://example.com/a/b", "https", "example.com", 443, "/a/b"},
		{"http://example.com:8080", "http", "example.com", 8080, ""},
		{"ssh://[::1]", "ssh", "::1", 22, ""},
		{"example.com:7", "", "example.com", 7, ""},
		{"example.com/index", "", "example.com", 0, "/index"},
		{"127.0.0.1", "", "127.0.0.1", 0, ""},
	}
	for _, c := range cases {
		info, err := Parse(c.raw)
		require.NoError(t, err, c.raw)
		assert.Equal(t, c.scheme, info.Scheme, c.raw)
		assert.Equal(t, c.host, info.Host, c.raw)
		assert.Equal(t, c.port, info.Port, c.raw)
		assert.Equal(t, c.path, info.Path, c.raw)
	}

	_, err := Parse("  ")
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = Parse("example.com:99999")
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	r := fakeResolver{
		addrs: map[string][]netip.Addr{
			"www.example.com": {
				netip.MustParseAddr("93.184.216.34"),
				netip.MustParseAddr("2606:2800:220:1::248"),
				netip.MustParseAddr("93.184.216.34"),
			},
		},
		cname: map[string]string{"www.example.com": "edge.example.net."},
		ptr:   map[string][]string{"93.184.216.34": {"edge.example.net.", "origin.example.org."}},
	}
	info, err := Resolve(context.Background(), r, "https://www.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "edge.example.net", info.Canonical)
	assert.Len(t, info.Addrs, 2)
	assert.Equal(t, FamilyMixed, info.Family)
	assert.Equal(t, []string{"www.example.com", "origin.example.org"}, info.Aliases)
	assert.Equal(t, netip.MustParseAddrPort("93.184.216.34:443"), info.AddrPorts()[0])

	_, err = Resolve(context.Background(), r, "missing.example.com")
	assert.Error(t, err)
}

func TestResolveLiteral(t *testing.T) {
	info, err := Resolve(context.Background(), fakeResolver{}, "http://[::1]:8080")
	require.NoError(t, err)
	assert.Equal(t, FamilyIPv6, info.Family)
	assert.Equal(t, "::1", info.Canonical)
	assert.Empty(t, info.Aliases)
	assert.Equal(t, 8080, info.Port)
}
