// Package urlinfo 将 URL 或主机名解析为主机信息：规范名、别名、地址列表、地址类型与端口。
package urlinfo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/legamerdc/sockd/internal/netutil"
)

var (
	ErrEmpty   = errors.New("urlinfo: empty input")
	ErrNoAddrs = errors.New("urlinfo: host has no addresses")
)

// Family 为地址类型
type Family string

const (
	FamilyIPv4  Family = "ipv4"
	FamilyIPv6  Family = "ipv6"
	FamilyMixed Family = "mixed"
)

// Resolver 为解析所需的 DNS 查询，*net.Resolver 满足该接口
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// Info 为解析结果
type Info struct {
	Raw       string
	Scheme    string
	Host      string
	Port      int
	Path      string
	Canonical string
	Aliases   []string
	Addrs     []netip.Addr
	Family    Family
}

// AddrPorts 返回每个地址与端口的组合
func (i *Info) AddrPorts() []netip.AddrPort {
	out := make([]netip.AddrPort, 0, len(i.Addrs))
	for _, a := range i.Addrs {
		out = append(out, netip.AddrPortFrom(a, uint16(i.Port)))
	}
	return out
}

// Parse 只做语法解析，不查询 DNS
func Parse(raw string) (*Info, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmpty
	}
	info := &Info{Raw: raw}
	hostport := raw
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("urlinfo: %w", err)
		}
		info.Scheme = strings.ToLower(u.Scheme)
		info.Path = u.EscapedPath()
		hostport = u.Host
	} else if i := strings.IndexByte(raw, '/'); i >= 0 {
		hostport, info.Path = raw[:i], raw[i:]
	}

	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		// 无端口
		host = strings.Trim(hostport, "[]")
		port = ""
	}
	if host == "" {
		return nil, fmt.Errorf("urlinfo: %q has no host", raw)
	}
	info.Host = host
	if port != "" {
		p, err := strconv.Atoi(port)
		if err != nil || p < 0 || p > 65535 {
			return nil, fmt.Errorf("urlinfo: invalid port %q", port)
		}
		info.Port = p
	} else {
		info.Port = netutil.PortForScheme(info.Scheme)
	}
	return info, nil
}

// Resolve 解析并查询 DNS；r 为 nil 时使用 net.DefaultResolver
func Resolve(ctx context.Context, r Resolver, raw string) (*Info, error) {
	info, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if r == nil {
		r = net.DefaultResolver
	}
	if ip, err := netip.ParseAddr(info.Host); err == nil {
		info.Canonical = ip.String()
		info.Addrs = []netip.Addr{ip.Unmap()}
	} else {
		addrs, err := r.LookupNetIP(ctx, "ip", info.Host)
		if err != nil {
			return nil, fmt.Errorf("urlinfo: lookup %s: %w", info.Host, err)
		}
		for _, a := range addrs {
			a = a.Unmap()
			if !slices.Contains(info.Addrs, a) {
				info.Addrs = append(info.Addrs, a)
			}
		}
		info.Canonical = info.Host
		if cname, err := r.LookupCNAME(ctx, info.Host); err == nil && cname != "" {
			info.Canonical = strings.TrimSuffix(cname, ".")
		}
	}
	if len(info.Addrs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoAddrs, info.Host)
	}
	info.Family = family(info.Addrs)
	info.Aliases = aliases(ctx, r, info)
	return info, nil
}

func family(addrs []netip.Addr) Family {
	var v4, v6 bool
	for _, a := range addrs {
		if a.Is4() {
			v4 = true
		} else {
			v6 = true
		}
	}
	switch {
	case v4 && v6:
		return FamilyMixed
	case v6:
		return FamilyIPv6
	}
	return FamilyIPv4
}

// aliases 收集主机名与反查名中不同于规范名的部分，查询失败时忽略
func aliases(ctx context.Context, r Resolver, info *Info) []string {
	var out []string
	add := func(name string) {
		name = strings.TrimSuffix(name, ".")
		if name == "" || strings.EqualFold(name, info.Canonical) || slices.Contains(out, name) {
			return
		}
		out = append(out, name)
	}
	if _, err := netip.ParseAddr(info.Host); err != nil {
		add(info.Host)
	}
	names, err := r.LookupAddr(ctx, info.Addrs[0].String())
	if err == nil {
		for _, n := range names {
			add(n)
		}
	}
	return out
}
