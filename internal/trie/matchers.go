package trie

import (
	"net"
	"strings"
)

type cidrNet struct {
	net *net.IPNet
}

func parseCIDR(s string) (cidrNet, bool) {
	_, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		// Accept a bare IP as a /32 (or /128) CIDR for convenience.
		ip := net.ParseIP(s)
		if ip == nil {
			return cidrNet{}, false
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		_, ipnet, err = net.ParseCIDR(s + "/" + itoa(bits))
		if err != nil {
			return cidrNet{}, false
		}
	}
	return cidrNet{net: ipnet}, true
}

func itoa(n int) string {
	if n == 32 {
		return "32"
	}
	return "128"
}

func (c cidrNet) contains(ip net.IP) bool {
	if ip == nil || c.net == nil {
		return false
	}
	return c.net.Contains(ip)
}

func parseHostPattern(h string) hostPattern {
	if strings.HasPrefix(h, "*.") {
		return hostPattern{wildcard: true, suffix: h[1:]} // keep the leading "."
	}
	return hostPattern{suffix: h}
}

func (p hostPattern) matches(host string) bool {
	// Strip a port if present, mirroring how an incoming Host header is
	// normally presented to route matching.
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	if p.wildcard {
		return strings.HasSuffix(host, p.suffix) && len(host) > len(p.suffix)-1
	}
	return host == p.suffix
}

// splitPath breaks a URI path into segments, dropping any query string
// and leading/trailing slashes.
func splitPath(uri string) []string {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		uri = uri[:i]
	}
	uri = strings.Trim(uri, "/")
	if uri == "" {
		return nil
	}
	return strings.Split(uri, "/")
}

// splitPattern breaks a configured path pattern into segments, the same
// way, so pattern segments and request segments compare directly.
func splitPattern(pattern string) []string {
	return splitPath(pattern)
}

func isParamSegment(seg string) bool {
	return strings.HasPrefix(seg, ":") && len(seg) > 1
}
